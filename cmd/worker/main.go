package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchengine/internal/app"
	"matchengine/internal/config"
	"matchengine/internal/logging"
	"matchengine/internal/supervisor"
	"matchengine/internal/worker"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	workerID := cfg.Worker.ID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = host + "-" + uuid.NewString()[:8]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init container")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("cleanup error")
		}
	}()

	migCtx, migCancel := context.WithTimeout(ctx, 2*time.Minute)
	err = c.Migrate(migCtx)
	migCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	tree := supervisor.NewTree("matchengine-worker", logging.Component(logger, "supervisor"), supervisor.TreeConfig{})

	w := worker.New(c.Queue, c.NewProcessor(), worker.Config{
		ID:           workerID,
		LockDuration: c.Queue.Options().LockDuration,
	}, logging.Component(logger, "worker"))
	tree.AddWork(w)
	tree.AddWork(worker.NewSweeper(c.Queue, c.Queue.Options().StalledInterval, logging.Component(logger, "sweeper")))

	if cfg.App.OpsPort != "" {
		opsAddr, err := app.ListenAddr(cfg.App.OpsPort)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid ops port")
		}
		tree.AddAPI(supervisor.NewHTTPService("ops-server", &http.Server{
			Addr:              opsAddr,
			Handler:           app.NewOpsMux(nil, nil, c),
			ReadHeaderTimeout: 5 * time.Second,
		}, 10*time.Second))
	}

	logger.Info().Str("worker_id", workerID).Str("queue", c.Queue.Name()).Msg("worker starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("worker stopped")
}
