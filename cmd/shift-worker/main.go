// The shift-worker binary drains the delayed job queue: SMS wave sends and
// outbound offer calls. It shares its wiring with the API binary so both
// sides agree on queue keys and payloads.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dajobrague/au-call-system-sub004/cmd/mainconfig"
	"github.com/dajobrague/au-call-system-sub004/internal/app/bootstrap"
	appconfig "github.com/dajobrague/au-call-system-sub004/internal/config"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting shift coverage worker",
		"env", cfg.Env,
		"workers", cfg.WorkerCount,
	)

	if cfg.UseMemoryQueue {
		logger.Error("USE_MEMORY_QUEUE is set; the API binary runs jobs inline and a separate worker would see an empty queue")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Run blocks until the context is cancelled and every worker has
	// finished its in-flight job.
	app.Queue.Run(ctx, cfg.WorkerCount, app.JobHandler())

	logger.Info("worker stopped")
}
