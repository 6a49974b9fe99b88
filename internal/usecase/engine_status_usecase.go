package usecase

import (
	"context"
	"sync"
	"time"

	"matchengine/internal/domain"
	"matchengine/internal/queue"

	"github.com/rs/zerolog"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatsReader interface {
	Name() string
	Stats(ctx context.Context) (queue.Stats, error)
	Ping(ctx context.Context) error
}

type EventsState interface {
	Connected() bool
}

type EngineStatusUsecase interface {
	GetStatus(ctx context.Context) domain.EngineStatus
}

type EngineStatus struct {
	db     Pinger
	queue  StatsReader
	events EventsState
	logger zerolog.Logger
}

func NewEngineStatusUsecase(db Pinger, q StatsReader, events EventsState, logger zerolog.Logger) *EngineStatus {
	return &EngineStatus{db: db, queue: q, events: events, logger: logger}
}

// GetStatus probes every dependency concurrently. Failed probes are logged
// and reported as unhealthy; the call itself never fails.
func (u *EngineStatus) GetStatus(ctx context.Context) domain.EngineStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out := domain.EngineStatus{ServerTime: time.Now().UTC()}
	if u.events != nil {
		out.EventsConnected = u.events.Connected()
	}

	var (
		wg       sync.WaitGroup
		dbErr    error
		redisErr error
		stats    queue.Stats
		statsErr error
	)

	if u.db != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dbErr = u.db.Ping(ctx)
		}()
	}
	if u.queue != nil {
		out.QueueName = u.queue.Name()
		wg.Add(2)
		go func() {
			defer wg.Done()
			redisErr = u.queue.Ping(ctx)
		}()
		go func() {
			defer wg.Done()
			stats, statsErr = u.queue.Stats(ctx)
		}()
	}
	wg.Wait()

	out.DatabaseHealthy = u.db != nil && dbErr == nil
	out.RedisHealthy = u.queue != nil && redisErr == nil
	if dbErr != nil {
		u.logger.Warn().Err(dbErr).Msg("database probe failed")
	}
	if redisErr != nil {
		u.logger.Warn().Err(redisErr).Msg("redis probe failed")
	}
	if u.queue != nil && statsErr == nil {
		out.Queue = &domain.QueueDepth{
			Waiting:   stats.Waiting,
			Active:    stats.Active,
			Delayed:   stats.Delayed,
			Completed: stats.Completed,
			Failed:    stats.Failed,
		}
	}
	return out
}
