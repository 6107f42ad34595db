// Package runner invokes the external transform program as a scoped
// subprocess. The program is opaque: success or failure is communicated only
// through its exit status and the log text it writes.
package runner

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/withObsrvr/transform-worker/internal/logging"
	"github.com/withObsrvr/transform-worker/internal/metrics"
	"github.com/withObsrvr/transform-worker/internal/progress"
)

// Config describes how to invoke the external transform.
type Config struct {
	Program string // interpreter, e.g. "bash"
	Script  string // transform entry point, e.g. "/generated/runner.sh"
	Workdir string
	LogPath string // log artifact path; a later attempt overwrites the prior one
}

// TransformError is a classified failure of one transform invocation. It
// carries the captured log text verbatim so diagnostics are never lost.
type TransformError struct {
	Reason string
	Log    string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("failed to transform input file: %s -- errors: %s", e.Reason, e.Log)
}

// CompileError is a failure of the one-time compile step. It is fatal: a
// worker with no compiled transform cannot do any work.
type CompileError struct {
	Reason string
	Log    string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("unable to compile the transform: %s -- errors: %s", e.Reason, e.Log)
}

// Runner drives the external transform program.
type Runner struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Runner {
	return &Runner{
		cfg: cfg,
		log: logging.Component("runner"),
	}
}

// Run transforms inputPath into outputPath. On return with a nil error the
// output path exists and is a regular file. On failure the returned error is
// a *TransformError carrying the exit reason and the captured log.
//
// A zero-byte output that exited cleanly is accepted as success; it is
// logged at Warn so operators can spot it.
func (r *Runner) Run(inputPath, outputPath string) error {
	r.log.Info("transforming single file", "input", inputPath, "output", outputPath)

	start := time.Now()
	runErr, logText := r.invoke("-r", "-d", inputPath, "-o", outputPath)
	metrics.Get().ObserveTransformDuration(time.Since(start).Seconds())

	counts := progress.Parse(logText)
	r.log.Info("events processed",
		"processed", counts.EventsProcessed,
		"total", counts.TotalEvents,
	)
	metrics.Get().RecordProgress(counts.EventsProcessed, counts.TotalEvents)

	reason := ""
	if runErr != nil {
		reason = fmt.Sprintf("error return from transformer: %v", runErr)
	}
	if reason == "" {
		st, err := os.Stat(outputPath)
		switch {
		case err != nil:
			reason = fmt.Sprintf("output file %s was not found", outputPath)
		case !st.Mode().IsRegular():
			reason = fmt.Sprintf("output path %s is not a regular file", outputPath)
		case st.Size() == 0:
			r.log.Warn("transform exited cleanly but wrote an empty output", "output", outputPath)
		default:
			r.log.Info("wrote output file", "bytes", st.Size(), "input", inputPath)
		}
	}

	if reason != "" {
		r.log.Error("transform failed", "input", inputPath, "reason", reason)
		return &TransformError{Reason: reason, Log: logText}
	}
	return nil
}

// Compile runs the transform's one-time compile step.
func (r *Runner) Compile() error {
	r.log.Info("compiling transform", "script", r.cfg.Script)

	runErr, logText := r.invoke("-c")
	if runErr != nil {
		return &CompileError{
			Reason: fmt.Sprintf("error return from compile step: %v", runErr),
			Log:    logText,
		}
	}
	return nil
}

// invoke runs the transform program with the given arguments, capturing
// combined stdout/stderr to the log artifact. The artifact is truncated at
// the start of each invocation and synced to durable storage before it is
// read back, so the failure path never inspects buffered-but-unflushed text.
func (r *Runner) invoke(args ...string) (error, string) {
	logPath := r.logPath()

	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create log artifact %s: %w", logPath, err), ""
	}

	argv := append([]string{r.cfg.Script}, args...)
	cmd := exec.Command(r.cfg.Program, argv...)
	cmd.Dir = r.cfg.Workdir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	runErr := cmd.Run()

	if err := logFile.Sync(); err != nil {
		r.log.Warn("sync log artifact", "error", err)
	}
	logFile.Close()

	text, err := os.ReadFile(logPath)
	if err != nil {
		r.log.Warn("read log artifact", "error", err)
	}
	return runErr, string(text)
}

func (r *Runner) logPath() string {
	if filepath.IsAbs(r.cfg.LogPath) || r.cfg.Workdir == "" {
		return r.cfg.LogPath
	}
	return filepath.Join(r.cfg.Workdir, r.cfg.LogPath)
}
