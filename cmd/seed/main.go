package main

import (
	"context"
	"os"
	"time"

	"matchengine/internal/config"
	"matchengine/internal/database/migration"
	dbpostgres "matchengine/internal/database/postgres"
	"matchengine/internal/database/seeder"
	"matchengine/internal/logging"

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database, logging.Component(logger, "postgres"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer func() {
		_ = db.Close()
	}()

	if err := (migration.Runner{Logger: logging.Component(logger, "migration")}).Run(ctx, db.SQLDB()); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	r := seeder.Runner{Seeders: seeder.Defaults(), Logger: logging.Component(logger, "seeder")}
	if err := r.Run(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
	logger.Info().Msg("seed completed")
}
