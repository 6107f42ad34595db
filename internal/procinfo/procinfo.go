// Package procinfo samples process CPU time for startup/shutdown reporting.
package procinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
)

// TimeSample is an immutable snapshot of cumulative CPU times in seconds.
// Two samples taken at different points are diffed for reporting.
type TimeSample struct {
	User   float64
	System float64
	Idle   float64
}

// Total returns the total time covered by the sample.
func (t TimeSample) Total() float64 {
	return t.User + t.System + t.Idle
}

// Sub returns the component-wise difference t - o.
func (t TimeSample) Sub(o TimeSample) TimeSample {
	return TimeSample{
		User:   t.User - o.User,
		System: t.System - o.System,
		Idle:   t.Idle - o.Idle,
	}
}

// Sample reads the current aggregate CPU times.
func Sample() (TimeSample, error) {
	stats, err := cpu.Times(false)
	if err != nil {
		return TimeSample{}, fmt.Errorf("read cpu times: %w", err)
	}
	if len(stats) == 0 {
		return TimeSample{}, fmt.Errorf("no cpu time stats available")
	}
	return TimeSample{
		User:   stats[0].User,
		System: stats[0].System,
		Idle:   stats[0].Idle,
	}, nil
}
