// Package worker drives one transform job from receipt to terminal outcome:
// bounded-retry execution of the external transform, streaming conversion,
// artifact upload, and status reporting.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/withObsrvr/transform-worker/internal/convert"
	"github.com/withObsrvr/transform-worker/internal/logging"
	"github.com/withObsrvr/transform-worker/internal/metrics"
	"github.com/withObsrvr/transform-worker/internal/report"
	"github.com/withObsrvr/transform-worker/internal/storage"
)

// MaxRetries bounds the number of transform attempts per job.
const MaxRetries = 3

// maxErrorInfoLen caps the error text carried on a retry status update.
const maxErrorInfoLen = 1024

// state of the per-job machine. Retrying loops back to Running; Succeeded
// and Failed are terminal.
type state int

const (
	statePending state = iota
	stateRunning
	stateRetrying
	stateSucceeded
	stateFailed
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRunning:
		return "running"
	case stateRetrying:
		return "retrying"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransformRunner runs the external transform for one attempt.
type TransformRunner interface {
	Run(inputPath, outputPath string) error
}

// Converter streams a completed output file to the configured sink.
type Converter interface {
	Convert(ctx context.Context, requestID, path string, chunkSize int) (convert.Stats, error)
}

// Uploader stores the local output artifact.
type Uploader interface {
	UploadFile(ctx context.Context, requestID, name, localPath string) error
}

// DeadLetter records permanently failed jobs for later inspection.
type DeadLetter interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Config holds executor behavior switches.
type Config struct {
	ScratchDir string

	// LocalOnly skips the streaming conversion: the transform output is
	// kept as a local artifact (and uploaded, when an uploader is set).
	LocalOnly bool
}

// Executor composes the runner and converter into one per-file job with the
// bounded-retry policy and status reporting.
type Executor struct {
	cfg       Config
	runner    TransformRunner
	conv      Converter
	uploader  Uploader // nil when no object store is configured
	dead      DeadLetter
	reporters report.Factory
	log       *slog.Logger
}

func NewExecutor(cfg Config, runner TransformRunner, conv Converter, uploader Uploader, dead DeadLetter, reporters report.Factory) *Executor {
	return &Executor{
		cfg:       cfg,
		runner:    runner,
		conv:      conv,
		uploader:  uploader,
		dead:      dead,
		reporters: reporters,
		log:       logging.Component("executor"),
	}
}

// Execute runs one job to a terminal state. All per-attempt errors are
// contained here; the returned Outcome is the only way failure escapes.
//
// The machine is Pending -> Running -> {Succeeded, Retrying, Failed}, with
// Retrying re-entering Running immediately (no backoff).
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	log := logging.JobLogger(req.RequestID, req.FileID)
	rep := e.reporters(req.ServiceEndpoint)

	outputName := storage.NormalizeName(req.FilePath)
	outputPath := filepath.Join(e.cfg.ScratchDir, outputName)
	log.Info("processing", "file_path", req.FilePath, "output", outputPath)

	e.postStatus(ctx, rep, req.FileID, report.StatusStart, "transform worker", log)

	start := time.Now()
	attempts := 0
	var lastErr error
	var lastStats convert.Stats

	st := transition(log, statePending, stateRunning)
	for st == stateRunning {
		attempts++
		metrics.Get().IncJobAttempts()

		stats, err := e.runAttempt(ctx, req, outputName, outputPath)
		if err == nil {
			lastStats = stats
			st = transition(log, st, stateSucceeded)
			break
		}
		lastErr = err
		log.Error("attempt failed", "attempt", attempts, "error", err)

		if attempts >= MaxRetries {
			st = transition(log, st, stateFailed)
			break
		}

		st = transition(log, st, stateRetrying)
		metrics.Get().IncRetryAttempts()
		info := fmt.Sprintf("Try: %d error: %s", attempts, truncate(err.Error(), maxErrorInfoLen))
		e.postStatus(ctx, rep, req.FileID, report.StatusRetry, info, log)
		st = transition(log, st, stateRunning)
	}

	elapsed := round2(time.Since(start).Seconds())

	switch st {
	case stateSucceeded:
		e.postStatus(ctx, rep, req.FileID, report.StatusComplete,
			fmt.Sprintf("Total time %v", elapsed), log)

		// Event/byte counters are deliberately zeroed in the completion
		// record; the real numbers are exported as metrics instead.
		e.putComplete(ctx, rep, report.FileCompleteRecord{
			FilePath:  req.FilePath,
			FileID:    req.FileID,
			Status:    report.FileSuccess,
			TotalTime: elapsed,
		}, log)

		log.Info("job succeeded", "attempts", attempts, "elapsed_seconds", elapsed)
		metrics.Get().IncJobsCompleted(string(StatusSucceeded))
		return Outcome{
			Status:          StatusSucceeded,
			Attempts:        attempts,
			ElapsedSeconds:  elapsed,
			EventsProcessed: lastStats.Rows,
			BytesWritten:    lastStats.Bytes,
		}

	default: // stateFailed
		e.publishDeadLetter(ctx, req, lastErr, log)

		e.putComplete(ctx, rep, report.FileCompleteRecord{
			FilePath: req.FilePath,
			FileID:   req.FileID,
			Status:   report.FileFailure,
		}, log)

		e.postStatus(ctx, rep, req.FileID, report.StatusFailure,
			fmt.Sprintf("error: %v", lastErr), log)

		log.Error("job failed permanently", "attempts", attempts, "error", lastErr)
		metrics.Get().IncJobsCompleted(string(StatusFailed))
		return Outcome{
			Status:         StatusFailed,
			Attempts:       attempts,
			ElapsedSeconds: elapsed,
			Err:            lastErr,
		}
	}
}

// runAttempt is one pass through Running: transform, convert, upload.
// Any error aborts the attempt; the whole attempt re-runs on retry.
func (e *Executor) runAttempt(ctx context.Context, req Request, outputName, outputPath string) (convert.Stats, error) {
	var stats convert.Stats

	if err := e.runner.Run(req.FilePath, outputPath); err != nil {
		return stats, err
	}

	if !e.cfg.LocalOnly {
		s, err := e.conv.Convert(ctx, req.RequestID, outputPath, req.ChunkSize)
		if err != nil {
			return stats, err
		}
		stats = s
	}

	if e.uploader != nil {
		start := time.Now()
		if err := e.uploader.UploadFile(ctx, req.RequestID, outputName, outputPath); err != nil {
			return stats, err
		}
		metrics.Get().ObserveUploadDuration(time.Since(start).Seconds())

		if err := os.Remove(outputPath); err != nil {
			e.log.Warn("remove scratch artifact", "path", outputPath, "error", err)
		}
	}

	return stats, nil
}

// deadLetterBody is the original request augmented with the final error.
type deadLetterBody struct {
	Request
	Error string `json:"error"`
}

func (e *Executor) publishDeadLetter(ctx context.Context, req Request, jobErr error, log *slog.Logger) {
	if e.dead == nil {
		return
	}
	body, err := json.Marshal(deadLetterBody{Request: req, Error: jobErr.Error()})
	if err != nil {
		log.Error("marshal dead letter", "error", err)
		return
	}

	key := req.RequestID + "_errors"
	if err := e.dead.Publish(ctx, key, body); err != nil {
		log.Error("publish dead letter", "routing_key", key, "error", err)
		return
	}
	metrics.Get().IncDeadLetters()
}

// postStatus reports a lifecycle update. Reporting failures are logged and
// swallowed: status posts are observability, not part of the job's outcome.
func (e *Executor) postStatus(ctx context.Context, rep report.Reporter, fileID string, code report.StatusCode, info string, log *slog.Logger) {
	if rep == nil {
		return
	}
	if err := rep.PostStatusUpdate(ctx, fileID, code, info); err != nil {
		log.Warn("post status update", "status", string(code), "error", err)
	}
}

func (e *Executor) putComplete(ctx context.Context, rep report.Reporter, rec report.FileCompleteRecord, log *slog.Logger) {
	if rep == nil {
		return
	}
	if err := rep.PutFileComplete(ctx, rec); err != nil {
		log.Warn("put file complete", "status", rec.Status, "error", err)
	}
}

// transition records a state change so the per-job lifecycle can be traced
// from logs.
func transition(log *slog.Logger, from, to state) state {
	log.Debug("state transition", "from", from.String(), "to", to.String())
	return to
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
