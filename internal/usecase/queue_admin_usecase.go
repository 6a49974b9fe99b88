package usecase

import (
	"context"
	"time"

	"matchengine/internal/domain/job"
	"matchengine/internal/queue"

	"github.com/rs/zerolog"
)

type QueueOps interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Empty(ctx context.Context) (int, error)
	Clean(ctx context.Context, status job.Status, grace time.Duration, limit int) (int, error)
}

type QueueAdminUsecase interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Empty(ctx context.Context) (int, error)
	Clean(ctx context.Context, status string, grace time.Duration, limit int) (int, error)
}

type QueueAdmin struct {
	queue  QueueOps
	logger zerolog.Logger
}

func NewQueueAdminUsecase(q QueueOps, logger zerolog.Logger) *QueueAdmin {
	return &QueueAdmin{queue: q, logger: logger}
}

func (u *QueueAdmin) Stats(ctx context.Context) (queue.Stats, error) {
	s, err := u.queue.Stats(ctx)
	if err != nil {
		u.logger.Error().Err(err).Msg("read queue stats")
		return queue.Stats{}, ErrQueueUnavailable
	}
	return s, nil
}

func (u *QueueAdmin) Empty(ctx context.Context) (int, error) {
	n, err := u.queue.Empty(ctx)
	if err != nil {
		u.logger.Error().Err(err).Msg("empty queue")
		return 0, ErrQueueUnavailable
	}
	u.logger.Warn().Int("removed", n).Msg("queue emptied")
	return n, nil
}

func (u *QueueAdmin) Clean(ctx context.Context, status string, grace time.Duration, limit int) (int, error) {
	st := job.Status(status)
	if st != job.StatusCompleted && st != job.StatusFailed {
		return 0, ErrInvalidInput
	}
	if grace < 0 || limit < 0 {
		return 0, ErrInvalidInput
	}
	n, err := u.queue.Clean(ctx, st, grace, limit)
	if err != nil {
		u.logger.Error().Err(err).Str("status", status).Msg("clean queue")
		return 0, ErrQueueUnavailable
	}
	u.logger.Info().Str("status", status).Dur("grace", grace).Int("removed", n).Msg("queue cleaned")
	return n, nil
}
