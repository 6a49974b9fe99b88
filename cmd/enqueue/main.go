package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"matchengine/internal/app"
	"matchengine/internal/config"
	"matchengine/internal/logging"
	"matchengine/internal/scheduler"
	"matchengine/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	target := flag.String("target", "", "target user id")
	matchmaker := flag.String("matchmaker", scheduler.SystemMatchmakerID, "matchmaker id recorded on the job")
	jobID := flag.String("job-id", "", "job id (generated when empty)")
	force := flag.Bool("force", false, "ignore the scan cooldown")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	if strings.TrimSpace(*target) == "" {
		logger.Fatal().Msg("provide -target")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init container")
	}
	defer func() {
		_ = c.Close()
	}()

	uc := usecase.NewMatchingJobUsecase(c.Queue, c.Users, c.Runs, c.Publisher(), logging.Component(logger, "matching-jobs"))
	res, err := uc.Enqueue(ctx, usecase.EnqueueInput{
		JobID:        *jobID,
		TargetUserID: *target,
		MatchmakerID: *matchmaker,
		ForceRefresh: *force,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("enqueue failed")
	}
	logger.Info().Str("job_id", res.JobID).Bool("duplicate", res.Duplicate).Msg("matching job enqueued")
}
