// Package progress extracts structured progress counters from the free-text
// log output of the external transform program. The rest of the worker only
// ever consumes the typed Counts, never raw log text.
package progress

import (
	"regexp"
	"strconv"
)

var (
	totalEventsRe     = regexp.MustCompile(`Processing events \d+-(\d+)`)
	eventsProcessedRe = regexp.MustCompile(`Processed (\d+) events`)
)

// Counts holds the progress counters scraped from one transform run.
type Counts struct {
	// TotalEvents is the bound announced by the transform, 0 if no total
	// was announced yet.
	TotalEvents int64

	// EventsProcessed is the value of the last progress marker, 0 if the
	// transform never reported progress.
	EventsProcessed int64
}

// Parse scans log text for progress markers. The first total-marker match
// wins; the last processed-marker match wins (the transform logs progress
// monotonically). Absent markers leave the corresponding field at zero.
func Parse(text string) Counts {
	var c Counts

	if m := totalEventsRe.FindStringSubmatch(text); m != nil {
		c.TotalEvents = parseInt(m[1])
	}

	for _, m := range eventsProcessedRe.FindAllStringSubmatch(text, -1) {
		c.EventsProcessed = parseInt(m[1])
	}

	return c
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
