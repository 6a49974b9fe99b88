package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"matchengine/internal/domain/job"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

type Options struct {
	Attempts        int
	BackoffDelay    time.Duration
	KeepCompleted   int
	KeepFailed      int
	LockDuration    time.Duration
	StalledInterval time.Duration
	DrainDelay      time.Duration

	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Attempts:         2,
		BackoffDelay:     5 * time.Second,
		KeepCompleted:    100,
		KeepFailed:       50,
		LockDuration:     10 * time.Minute,
		StalledInterval:  60 * time.Second,
		DrainDelay:       5 * time.Second,
		BreakerFailures:  5,
		BreakerOpenDelay: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.BackoffDelay <= 0 {
		o.BackoffDelay = d.BackoffDelay
	}
	// Zero keeps the default; a negative count keeps every record.
	if o.KeepCompleted == 0 {
		o.KeepCompleted = d.KeepCompleted
	}
	if o.KeepFailed == 0 {
		o.KeepFailed = d.KeepFailed
	}
	if o.LockDuration <= 0 {
		o.LockDuration = d.LockDuration
	}
	if o.StalledInterval <= 0 {
		o.StalledInterval = d.StalledInterval
	}
	if o.DrainDelay <= 0 {
		o.DrainDelay = d.DrainDelay
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = d.BreakerFailures
	}
	if o.BreakerOpenDelay <= 0 {
		o.BreakerOpenDelay = d.BreakerOpenDelay
	}
	return o
}

// Backoff returns the delay before the retry that follows attempt n
// (1-based): BackoffDelay doubled for every earlier attempt.
func (o Options) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := o.BackoffDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

const promoteBatch = 100

// Queue is a durable job queue on Redis: a wait list, an active list, a
// delayed set for backoff, finished sets, a hash per job and a lock key per
// active job.
type Queue struct {
	rdb     redis.UniversalClient
	name    string
	prefix  string
	opts    Options
	breaker *gobreaker.CircuitBreaker[EnqueueResult]
	logger  zerolog.Logger
	now     func() time.Time
}

func New(rdb redis.UniversalClient, name string, opts Options, logger zerolog.Logger) *Queue {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "matching"
	}
	opts = opts.withDefaults()

	q := &Queue{
		rdb:    rdb,
		name:   name,
		prefix: "mq:" + name + ":",
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}

	q.breaker = gobreaker.NewCircuitBreaker[EnqueueResult](gobreaker.Settings{
		Name:    "queue-" + name,
		Timeout: opts.BreakerOpenDelay,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("queue breaker state changed")
		},
	})

	return q
}

func (q *Queue) Name() string     { return q.name }
func (q *Queue) Options() Options { return q.opts }

func (q *Queue) key(k string) string      { return q.prefix + k }
func (q *Queue) jobKey(id string) string  { return q.prefix + "job:" + id }
func (q *Queue) lockKey(id string) string { return q.prefix + "lock:" + id }

func (q *Queue) nowMs() int64 { return q.now().UnixMilli() }

// Enqueue adds a job under its own id. While a job with that id is waiting,
// delayed or active the call only reports Duplicate. Any broker failure is
// returned wrapped in ErrBrokerUnavailable.
func (q *Queue) Enqueue(ctx context.Context, data job.MatchingJobData) (EnqueueResult, error) {
	payload, err := job.Encode(data)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	id := strings.TrimSpace(data.JobID)

	res, err := q.breaker.Execute(func() (EnqueueResult, error) {
		n, err := addJobScript.Run(ctx, q.rdb,
			[]string{q.jobKey(id), q.key("wait"), q.key("marker"), q.key("completed"), q.key("failed")},
			id, string(payload), q.opts.Attempts, q.nowMs(),
		).Int()
		if err != nil {
			return EnqueueResult{}, err
		}
		return EnqueueResult{JobID: id, Duplicate: n == 0}, nil
	})
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	q.logger.Debug().Str("job_id", id).Bool("duplicate", res.Duplicate).Msg("job enqueued")
	return res, nil
}

// Fetch moves the oldest waiting job to active and locks it. When the queue
// is empty it waits up to DrainDelay for a signal and returns nil, nil if
// nothing arrived.
func (q *Queue) Fetch(ctx context.Context) (*Job, error) {
	j, err := q.moveToActive(ctx)
	if err != nil || j != nil {
		return j, err
	}

	err = q.rdb.BLPop(ctx, q.opts.DrainDelay, q.key("marker")).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return q.moveToActive(ctx)
}

func (q *Queue) moveToActive(ctx context.Context) (*Job, error) {
	for {
		token := uuid.NewString()
		vals, err := moveToActiveScript.Run(ctx, q.rdb,
			[]string{q.key("wait"), q.key("active")},
			q.prefix, token, q.opts.LockDuration.Milliseconds(), q.nowMs(),
		).StringSlice()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if len(vals) < 6 || vals[1] == "" {
			q.logger.Warn().Strs("vals", vals).Msg("dropped orphaned queue entry")
			continue
		}

		processed := q.now().UTC()
		return &Job{
			ID:           vals[0],
			Payload:      []byte(vals[1]),
			Status:       job.StatusActive,
			AttemptsMade: atoi(vals[2]),
			MaxAttempts:  atoi(vals[3]),
			CreatedAt:    msTime(vals[4]),
			StalledCount: atoi(vals[5]),
			ProcessedAt:  &processed,
			token:        token,
		}, nil
	}
}

// ExtendLock pushes the job's lock expiry another LockDuration forward.
func (q *Queue) ExtendLock(ctx context.Context, j *Job) error {
	n, err := extendLockScript.Run(ctx, q.rdb, []string{q.lockKey(j.ID)}, j.token, q.opts.LockDuration.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Complete moves an active job to the completed set and trims old records.
func (q *Queue) Complete(ctx context.Context, j *Job, returnValue string) error {
	n, err := completeScript.Run(ctx, q.rdb,
		[]string{q.jobKey(j.ID), q.key("active"), q.key("completed"), q.lockKey(j.ID)},
		j.ID, j.token, q.nowMs(), returnValue, q.opts.KeepCompleted, q.prefix,
	).Int()
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrLockLost
	}
	j.Status = job.StatusCompleted
	return nil
}

// Fail records cause on the job. It is retried after backoff when attempts
// remain and cause is not permanent; otherwise it moves to the failed set.
func (q *Queue) Fail(ctx context.Context, j *Job, cause error) (retried bool, err error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	retry := !IsPermanent(cause) && j.AttemptsMade < j.MaxAttempts
	backoff := q.opts.Backoff(j.AttemptsMade)

	flag := "0"
	if retry {
		flag = "1"
	}

	n, err := failScript.Run(ctx, q.rdb,
		[]string{q.jobKey(j.ID), q.key("active"), q.key("failed"), q.lockKey(j.ID), q.key("delayed")},
		j.ID, j.token, q.nowMs(), reason, flag, backoff.Milliseconds(), q.opts.KeepFailed, q.prefix,
	).Int()
	if err != nil {
		return false, err
	}
	if n < 0 {
		return false, ErrLockLost
	}

	j.FailedReason = reason
	if retry {
		j.Status = job.StatusDelayed
		return true, nil
	}
	j.Status = job.StatusFailed
	return false, nil
}

// Release hands an active job back without counting the attempt: the lock
// is dropped and the job goes to the head of the wait list. Used when the
// worker stops mid-job.
func (q *Queue) Release(ctx context.Context, j *Job) error {
	n, err := releaseScript.Run(ctx, q.rdb,
		[]string{q.jobKey(j.ID), q.key("active"), q.lockKey(j.ID), q.key("wait"), q.key("marker")},
		j.ID, j.token,
	).Int()
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrLockLost
	}
	j.AttemptsMade = n
	j.Status = job.StatusWaiting
	return nil
}

// PromoteDelayed moves delayed jobs whose backoff has elapsed to waiting.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	return promoteDelayedScript.Run(ctx, q.rdb,
		[]string{q.key("delayed"), q.key("wait"), q.key("marker")},
		q.nowMs(), q.prefix, promoteBatch,
	).Int()
}

// SweepStalled releases active jobs whose lock expired: they are re-queued
// while attempts remain and failed otherwise.
func (q *Queue) SweepStalled(ctx context.Context) (SweepResult, error) {
	vals, err := sweepStalledScript.Run(ctx, q.rdb,
		[]string{q.key("active"), q.key("wait"), q.key("failed"), q.key("marker")},
		q.prefix, q.nowMs(), q.opts.KeepFailed,
	).Int64Slice()
	if err != nil {
		return SweepResult{}, err
	}
	if len(vals) != 2 {
		return SweepResult{}, fmt.Errorf("unexpected sweep reply: %v", vals)
	}
	return SweepResult{Requeued: int(vals[0]), Failed: int(vals[1])}, nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key("wait"))
	active := pipe.LLen(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	m, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrJobNotFound
	}
	return jobFromHash(m), nil
}

// Empty removes every waiting and delayed job. Active jobs are left to
// finish.
func (q *Queue) Empty(ctx context.Context) (int, error) {
	return emptyScript.Run(ctx, q.rdb, []string{q.key("wait"), q.key("delayed")}, q.prefix).Int()
}

// Clean removes up to limit completed or failed records that finished more
// than grace ago.
func (q *Queue) Clean(ctx context.Context, status job.Status, grace time.Duration, limit int) (int, error) {
	var set string
	switch status {
	case job.StatusCompleted:
		set = q.key("completed")
	case job.StatusFailed:
		set = q.key("failed")
	default:
		return 0, fmt.Errorf("%w: cannot clean status %q", ErrInvalidData, status)
	}
	if limit <= 0 {
		limit = 1000
	}
	if grace < 0 {
		grace = 0
	}
	maxScore := strconv.FormatInt(q.now().Add(-grace).UnixMilli(), 10)
	return cleanScript.Run(ctx, q.rdb, []string{set}, q.prefix, maxScore, limit).Int()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
