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
	"matchengine/internal/scheduler"
	"matchengine/internal/supervisor"
	"matchengine/internal/ws"

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

	if err := cfg.RequireJWT(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
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

	apiAddr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid HTTP port")
	}
	opsAddr, err := app.ListenAddr(cfg.App.OpsPort)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid ops port")
	}

	tree := supervisor.NewTree("matchengine-server", logging.Component(logger, "supervisor"), supervisor.TreeConfig{})

	hub := ws.NewHub(logging.Component(logger, "ws"))
	tree.AddWork(hub)
	if c.Events != nil {
		tree.AddWork(supervisor.NewEventRelay(c.Events, hub.NotifyJobEvent))
	}

	if cfg.Scheduler.Enabled {
		tree.AddWork(scheduler.NewRescan(c.Profiles, c.Queue, scheduler.Config{
			Cron:      cfg.Scheduler.Cron,
			BatchSize: cfg.Scheduler.BatchSize,
			Cooldown:  cfg.Matching.ScanCooldown,
		}, logging.Component(logger, "scheduler")))
	}

	tree.AddAPI(supervisor.NewFiberService(app.NewAPI(c), apiAddr, 10*time.Second))
	tree.AddAPI(supervisor.NewHTTPService("ops-server", &http.Server{
		Addr:              opsAddr,
		Handler:           app.NewOpsMux(hub, cfg.App.WSOrigins, c),
		ReadHeaderTimeout: 5 * time.Second,
	}, 10*time.Second))

	logger.Info().Str("api", apiAddr).Str("ops", opsAddr).Msg("server starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("server stopped")
}
