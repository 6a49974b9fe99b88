package app

import (
	"context"
	"fmt"
	"time"

	"matchengine/internal/config"
	"matchengine/internal/database"
	"matchengine/internal/database/migration"
	dbpostgres "matchengine/internal/database/postgres"
	"matchengine/internal/domain/matching"
	"matchengine/internal/infrastructure/cache"
	"matchengine/internal/infrastructure/persistence/postgres"
	"matchengine/internal/logging"
	"matchengine/internal/messaging"
	"matchengine/internal/queue"
	"matchengine/internal/repository"
	"matchengine/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Container owns the shared connections and repositories of one process.
type Container struct {
	Config config.Config
	Logger zerolog.Logger

	DB     database.DB
	Redis  *redis.Client
	Cache  *cache.Redis
	Queue  *queue.Queue
	Events *messaging.Client

	Users    *postgres.UserRepository
	Profiles *repository.PostgresProfileRepository
	Scans    *repository.PostgresScanHistoryRepository
	Matches  *repository.PostgresPotentialMatchRepository
	Runs     *repository.PostgresMatchingJobRepository
}

func NewContainer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Container, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(connectCtx, cfg.Database, logging.Component(logger, "postgres"))
	if err != nil {
		return nil, err
	}

	rdb, err := cache.NewClient(connectCtx, cfg.Redis, logging.Component(logger, "redis"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Redis:  rdb,
		Cache:  cache.NewRedis(rdb, cfg.App.AppName+":", logging.Component(logger, "cache")),
		Queue:  queue.New(rdb, cfg.Queue.Name, QueueOptions(cfg.Queue), logging.Component(logger, "queue")),

		Users:    postgres.NewUserRepository(db),
		Profiles: repository.NewPostgresProfileRepository(db),
		Scans:    repository.NewPostgresScanHistoryRepository(db),
		Matches:  repository.NewPostgresPotentialMatchRepository(db),
		Runs:     repository.NewPostgresMatchingJobRepository(db),
	}

	if cfg.NATS.URL != "" {
		nc, err := messaging.Connect(messaging.Config{URL: cfg.NATS.URL, Name: cfg.NATS.Name}, logging.Component(logger, "nats"))
		if err != nil {
			logger.Warn().Err(err).Msg("job events disabled")
		} else {
			c.Events = nc
		}
	}

	return c, nil
}

// Publisher returns the job event bus, or a discarding publisher when NATS is
// not configured.
func (c *Container) Publisher() messaging.Publisher {
	if c.Events == nil {
		return messaging.Discard
	}
	return c.Events
}

func (c *Container) Migrate(ctx context.Context) error {
	r := migration.Runner{Logger: logging.Component(c.Logger, "migration")}
	if err := r.Run(ctx, c.DB.SQLDB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (c *Container) NewProcessor() *worker.MatchingProcessor {
	return worker.NewMatchingProcessor(worker.ProcessorDeps{
		Profiles: c.Profiles,
		Scans:    c.Scans,
		Matches:  c.Matches,
		Runs:     c.Runs,
		Engine:   matching.NewEngine(),
		Events:   c.Publisher(),
		Cache:    c.Cache,
	}, worker.ProcessorConfig{
		ScanCooldown: c.Config.Matching.ScanCooldown,
		MinScore:     c.Config.Matching.MinScore,
		MaxPoolSize:  c.Config.Matching.MaxPoolSize,
	}, logging.Component(c.Logger, "processor"))
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	c.Events.Close()

	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func QueueOptions(cfg config.QueueConfig) queue.Options {
	return queue.Options{
		Attempts:         cfg.Attempts,
		BackoffDelay:     cfg.BackoffDelay,
		KeepCompleted:    cfg.KeepCompleted,
		KeepFailed:       cfg.KeepFailed,
		LockDuration:     cfg.LockDuration,
		StalledInterval:  cfg.StalledInterval,
		DrainDelay:       cfg.DrainDelay,
		BreakerFailures:  cfg.BreakerFailures,
		BreakerOpenDelay: cfg.BreakerOpenDelay,
	}
}
