package worker

import (
	"context"
	"time"

	"matchengine/internal/domain/job"
	"matchengine/internal/metrics"
	"matchengine/internal/queue"

	"github.com/rs/zerolog"
)

type StalledSource interface {
	SweepStalled(ctx context.Context) (queue.SweepResult, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Sweeper periodically releases jobs whose lock expired and refreshes the
// queue depth gauges.
type Sweeper struct {
	source   StalledSource
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(source StalledSource, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = queue.DefaultOptions().StalledInterval
	}
	return &Sweeper{source: source, interval: interval, logger: logger}
}

func (s *Sweeper) String() string { return "stalled-sweeper" }

func (s *Sweeper) Serve(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) queue.SweepResult {
	res, err := s.source.SweepStalled(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("stalled sweep failed")
		}
		return queue.SweepResult{}
	}
	if res.Requeued > 0 || res.Failed > 0 {
		s.logger.Warn().Int("requeued", res.Requeued).Int("failed", res.Failed).Msg("stalled jobs released")
		metrics.StalledJobs.WithLabelValues("requeued").Add(float64(res.Requeued))
		metrics.StalledJobs.WithLabelValues("failed").Add(float64(res.Failed))
	}

	stats, err := s.source.Stats(ctx)
	if err != nil {
		return res
	}
	for status, n := range map[job.Status]int64{
		job.StatusWaiting:   stats.Waiting,
		job.StatusActive:    stats.Active,
		job.StatusDelayed:   stats.Delayed,
		job.StatusCompleted: stats.Completed,
		job.StatusFailed:    stats.Failed,
	} {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
	s.logger.Debug().Int64("waiting", stats.Waiting).Int64("active", stats.Active).Msg("queue depth refreshed")
	return res
}
