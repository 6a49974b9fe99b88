// Package scheduler periodically queues matching runs for targets whose
// last scan is older than the cooldown.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchengine/internal/domain/job"
	"matchengine/internal/queue"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// SystemMatchmakerID marks jobs queued by the scheduler rather than a
// person.
const SystemMatchmakerID = "system"

type StaleTargetLister interface {
	ListStaleTargets(ctx context.Context, scannedBefore time.Time, limit int) ([]string, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, data job.MatchingJobData) (queue.EnqueueResult, error)
}

type Config struct {
	Cron      string
	BatchSize int
	Cooldown  time.Duration
}

type RunSummary struct {
	Listed    int
	Enqueued  int
	Duplicate int
	Failed    int
}

type Rescan struct {
	targets StaleTargetLister
	queue   Enqueuer
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

func NewRescan(targets StaleTargetLister, q Enqueuer, cfg Config, logger zerolog.Logger) *Rescan {
	if cfg.Cron == "" {
		cfg.Cron = "0 3 * * *"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 7 * 24 * time.Hour
	}
	return &Rescan{targets: targets, queue: q, cfg: cfg, logger: logger, now: time.Now}
}

func (r *Rescan) String() string { return "rescan-scheduler" }

// JobID is stable for a target within one UTC day, so overlapping runs
// collapse into one queued job.
func JobID(targetUserID string, at time.Time) string {
	return fmt.Sprintf("scheduled-%s-%s", targetUserID, at.UTC().Format("20060102"))
}

// Serve registers the cron job and blocks until ctx is cancelled.
func (r *Rescan) Serve(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.CronJob(r.cfg.Cron, false),
		gocron.NewTask(func() {
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error().Err(err).Msg("rescan run failed")
			}
		}),
		gocron.WithName("rescan-stale-targets"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("register rescan job: %w", err)
	}

	sched.Start()
	r.logger.Info().Str("cron", r.cfg.Cron).Int("batch_size", r.cfg.BatchSize).Msg("rescan scheduler started")

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		r.logger.Warn().Err(err).Msg("scheduler shutdown")
	}
	return ctx.Err()
}

// RunOnce queues one batch of stale targets. A broker outage stops the batch
// early since every later enqueue would fail the same way.
func (r *Rescan) RunOnce(ctx context.Context) (RunSummary, error) {
	var sum RunSummary
	now := r.now().UTC()

	ids, err := r.targets.ListStaleTargets(ctx, now.Add(-r.cfg.Cooldown), r.cfg.BatchSize)
	if err != nil {
		return sum, fmt.Errorf("list stale targets: %w", err)
	}
	sum.Listed = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		res, err := r.queue.Enqueue(ctx, job.MatchingJobData{
			JobID:        JobID(id, now),
			TargetUserID: id,
			MatchmakerID: SystemMatchmakerID,
		})
		if err != nil {
			sum.Failed++
			if errors.Is(err, queue.ErrBrokerUnavailable) {
				r.logger.Error().Err(err).Int("enqueued", sum.Enqueued).Msg("rescan stopped, broker unavailable")
				return sum, err
			}
			r.logger.Warn().Err(err).Str("target_user_id", id).Msg("rescan enqueue failed")
			continue
		}
		if res.Duplicate {
			sum.Duplicate++
			continue
		}
		sum.Enqueued++
	}

	r.logger.Info().
		Int("listed", sum.Listed).
		Int("enqueued", sum.Enqueued).
		Int("duplicate", sum.Duplicate).
		Int("failed", sum.Failed).
		Msg("rescan batch queued")
	return sum, nil
}
