package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/withObsrvr/transform-worker/internal/config"
	"github.com/withObsrvr/transform-worker/internal/convert"
	"github.com/withObsrvr/transform-worker/internal/logging"
	"github.com/withObsrvr/transform-worker/internal/metrics"
	"github.com/withObsrvr/transform-worker/internal/procinfo"
	"github.com/withObsrvr/transform-worker/internal/queue"
	"github.com/withObsrvr/transform-worker/internal/report"
	"github.com/withObsrvr/transform-worker/internal/runner"
	"github.com/withObsrvr/transform-worker/internal/sink"
	"github.com/withObsrvr/transform-worker/internal/storage"
	"github.com/withObsrvr/transform-worker/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file")
		filePath   = flag.String("file", "", "transform a single local file and exit (no queue)")
		outputDir  = flag.String("output-dir", "", "override the scratch directory")
		chunkSize  = flag.Int("chunk-size", 1000, "rows per batch in single-file mode")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Result.ScratchDir = *outputDir
	}

	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("main")

	metrics.Init("transform_worker")
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server", "error", err)
			}
		}()
	}

	startSample, err := procinfo.Sample()
	if err != nil {
		log.Warn("cpu time sample unavailable", "error", err)
	}
	startTime := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	run := runner.New(runner.Config{
		Program: cfg.Runner.Program,
		Script:  cfg.Runner.Script,
		Workdir: cfg.Runner.Workdir,
		LogPath: cfg.Runner.LogPath,
	})

	// A transform that cannot compile will fail every job it is handed,
	// so refuse to start.
	if err := run.Compile(); err != nil {
		log.Error("transform compile failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Result.ScratchDir, 0o755); err != nil {
		log.Error("create scratch dir", "path", cfg.Result.ScratchDir, "error", err)
		os.Exit(1)
	}

	exec, closers, err := buildExecutor(ctx, cfg, run)
	if err != nil {
		log.Error("wire executor", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("close", "error", err)
			}
		}
	}()

	if *filePath != "" {
		runSingleFile(ctx, exec, *filePath, *chunkSize, log)
	} else {
		consumer, err := queue.NewConsumer(queue.Config{
			Brokers:   cfg.Queue.Brokers,
			Topic:     cfg.Queue.Topic,
			GroupID:   cfg.Queue.GroupID,
			Version:   cfg.Queue.Version,
			StartFrom: cfg.Queue.StartFrom,
		}, exec)
		if err != nil {
			log.Error("create consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		log.Info("consuming transform requests",
			"topic", cfg.Queue.Topic,
			"group", cfg.Queue.GroupID,
			"instance", logging.InstanceName())

		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("consumer stopped", "error", err)
			os.Exit(1)
		}
	}

	if endSample, err := procinfo.Sample(); err == nil {
		d := endSample.Sub(startSample)
		log.Info("process time summary",
			"user", d.User,
			"system", d.System,
			"idle", d.Idle,
			"total", d.Total(),
			"running_seconds", time.Since(startTime).Seconds())
	}
	log.Info("transform worker stopped")
}

// buildExecutor wires the sink, store, dead-letter publisher, and reporter
// factory selected by configuration into a job executor.
func buildExecutor(ctx context.Context, cfg config.Config, run *runner.Runner) (*worker.Executor, []interface{ Close() error }, error) {
	var (
		closers  []interface{ Close() error }
		conv     worker.Converter
		uploader worker.Uploader
		local    bool
	)

	switch cfg.Result.Destination {
	case config.DestObjectStore:
		store, err := storage.New(ctx, storage.Config{
			Backend:    cfg.Storage.Backend,
			LocalDir:   cfg.Storage.LocalDir,
			Bucket:     cfg.Storage.Bucket,
			S3Endpoint: cfg.Storage.S3Endpoint,
			S3Region:   cfg.Storage.S3Region,
			Prefix:     cfg.Storage.Prefix,
			Compress:   cfg.Storage.Compress,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open object store: %w", err)
		}
		closers = append(closers, store)
		conv = convert.New(sink.NewObjectStoreSink(store))
		uploader = store

	case config.DestTopic:
		ks, err := sink.NewKafkaSink(cfg.Queue.Brokers)
		if err != nil {
			return nil, nil, fmt.Errorf("open kafka sink: %w", err)
		}
		closers = append(closers, ks)
		conv = convert.New(ks)

	case config.DestLocal:
		// Transform output stays in the scratch dir.
		local = true
	}

	var dead worker.DeadLetter
	if len(cfg.Queue.Brokers) > 0 {
		pub, err := queue.NewDeadLetterPublisher(cfg.Queue.Brokers, cfg.Queue.DeadLetterTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("open dead letter publisher: %w", err)
		}
		closers = append(closers, pub)
		dead = pub
	}

	exec := worker.NewExecutor(
		worker.Config{ScratchDir: cfg.Result.ScratchDir, LocalOnly: local},
		run,
		conv,
		uploader,
		dead,
		func(endpoint string) report.Reporter {
			if endpoint == "" {
				return nil
			}
			return report.NewClient(endpoint)
		},
	)
	return exec, closers, nil
}

// runSingleFile drives one job outside the queue with status reporting
// disabled. Useful for smoke-testing a transform script against one input.
func runSingleFile(ctx context.Context, exec *worker.Executor, path string, chunkSize int, log *slog.Logger) {
	out := exec.Execute(ctx, worker.Request{
		RequestID:       "single-file",
		FilePath:        path,
		FileID:          path,
		ServiceEndpoint: "",
		ChunkSize:       chunkSize,
	})
	log.Info("single file processed",
		"file", path,
		"status", string(out.Status),
		"attempts", out.Attempts,
		"events", out.EventsProcessed,
		"bytes", out.BytesWritten)
	if out.Err != nil {
		log.Error("single file failed", "error", out.Err)
		os.Exit(1)
	}
}
