// Package worker consumes matching jobs from the queue one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"matchengine/internal/domain/matching"
	"matchengine/internal/metrics"
	"matchengine/internal/queue"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// JobSource is the part of the queue the worker loop needs.
type JobSource interface {
	PromoteDelayed(ctx context.Context) (int, error)
	Fetch(ctx context.Context) (*queue.Job, error)
	ExtendLock(ctx context.Context, j *queue.Job) error
	Complete(ctx context.Context, j *queue.Job, returnValue string) error
	Fail(ctx context.Context, j *queue.Job, cause error) (bool, error)
	Release(ctx context.Context, j *queue.Job) error
}

type Processor interface {
	Process(ctx context.Context, j *queue.Job) (Result, error)
	Completed(j *queue.Job, res Result)
	Finalize(ctx context.Context, j *queue.Job, cause error, retried bool)
}

type Config struct {
	ID           string
	LockDuration time.Duration
	// ErrorBackoff is the pause after the broker fails a fetch.
	ErrorBackoff time.Duration
}

type Worker struct {
	source JobSource
	proc   Processor
	cfg    Config
	logger zerolog.Logger
}

func New(source JobSource, proc Processor, cfg Config, logger zerolog.Logger) *Worker {
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = queue.DefaultOptions().LockDuration
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.ID != "" {
		logger = logger.With().Str("worker_id", cfg.ID).Logger()
	}
	return &Worker{source: source, proc: proc, cfg: cfg, logger: logger}
}

func (w *Worker) String() string { return "matching-worker" }

// Serve runs the fetch loop until ctx is cancelled.
func (w *Worker) Serve(ctx context.Context) error {
	w.logger.Info().Dur("lock_duration", w.cfg.LockDuration).Msg("worker started")
	defer w.logger.Info().Msg("worker stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker iteration failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.ErrorBackoff):
			}
		}
	}
}

// RunOnce promotes due retries, then fetches and handles at most one job.
// It reports whether a job was handled. Job failures are settled on the
// queue and are not returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if n, err := w.source.PromoteDelayed(ctx); err != nil {
		return false, fmt.Errorf("promote delayed: %w", err)
	} else if n > 0 {
		w.logger.Debug().Int("promoted", n).Msg("delayed jobs promoted")
	}

	j, err := w.source.Fetch(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}
	if j == nil {
		return false, nil
	}

	w.handle(ctx, j)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, j *queue.Job) {
	log := w.logger.With().Str("job_id", j.ID).Int("attempt", j.AttemptsMade).Logger()
	start := time.Now()

	jobCtx, cancel := context.WithCancel(ctx)
	lockLost := make(chan struct{})
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		w.renewLock(jobCtx, j, log, func() {
			close(lockLost)
			cancel()
		})
	}()

	res, err := w.process(jobCtx, j)
	cancel()
	<-renewDone
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	select {
	case <-lockLost:
		metrics.JobsProcessed.WithLabelValues("lock_lost").Inc()
		log.Warn().Msg("job lock lost, leaving it to the stalled sweep")
		return
	default:
	}

	// Settle on a context that survives shutdown so a finished job is not
	// left active until the sweep.
	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer settleCancel()

	if err == nil {
		rv, mErr := json.Marshal(res)
		if mErr != nil {
			rv = []byte("{}")
		}
		if cErr := w.source.Complete(settleCtx, j, string(rv)); cErr != nil {
			log.Error().Err(cErr).Msg("complete job")
			return
		}
		metrics.JobsProcessed.WithLabelValues("completed").Inc()
		w.proc.Completed(j, res)
		return
	}

	// Shutdown is not a job failure: hand the job back with its attempt.
	if ctx.Err() != nil && !queue.IsPermanent(err) {
		if rErr := w.source.Release(settleCtx, j); rErr != nil {
			log.Error().Err(rErr).AnErr("cause", err).Msg("release job")
			return
		}
		metrics.JobsProcessed.WithLabelValues("released").Inc()
		log.Warn().Msg("job interrupted by shutdown, released to the queue")
		return
	}

	retried, fErr := w.source.Fail(settleCtx, j, err)
	if fErr != nil {
		log.Error().Err(fErr).AnErr("cause", err).Msg("fail job")
		return
	}

	ev := log.Error()
	outcome := "failed"
	if retried {
		ev = log.Warn()
		outcome = "retried"
	}
	var me *matching.MatchingError
	if errors.As(err, &me) {
		ev = ev.Str("error_kind", string(me.Kind))
	}
	ev.Err(err).Bool("retried", retried).Msg("job attempt failed")
	metrics.JobsProcessed.WithLabelValues(outcome).Inc()

	w.proc.Finalize(settleCtx, j, err, retried)
}

// process runs the processor and turns a panic into a computation error so
// the loop keeps going.
func (w *Worker) process(ctx context.Context, j *queue.Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("job_id", j.ID).
				Str("stack", string(debug.Stack())).
				Msgf("panic in job processing: %v", r)
			res = Result{}
			err = &matching.MatchingError{
				Kind: matching.KindComputation,
				Msg:  "panic during processing",
				Err:  fmt.Errorf("%v", r),
			}
		}
	}()
	return w.proc.Process(ctx, j)
}

func (w *Worker) renewLock(ctx context.Context, j *queue.Job, log zerolog.Logger, onLost func()) {
	interval := w.cfg.LockDuration / 2
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := w.source.ExtendLock(ctx, j)
			if err == nil {
				continue
			}
			if errors.Is(err, queue.ErrLockLost) {
				onLost()
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("extend job lock")
		}
	}
}
