package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"matchengine/internal/domain/job"
	"matchengine/internal/domain/user"
	"matchengine/internal/messaging"
	"matchengine/internal/metrics"
	"matchengine/internal/queue"
	"matchengine/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EnqueueInput struct {
	JobID        string
	TargetUserID string
	MatchmakerID string
	ForceRefresh bool
}

// JobView merges the live queue record with the durable run record. Either
// side may be missing: the queue trims finished jobs and the run record is
// written once a worker picks the job up.
type JobView struct {
	ID           string
	Status       job.Status
	Data         *job.MatchingJobData
	AttemptsMade int
	MaxAttempts  int
	FailedReason string
	ReturnValue  string
	CreatedAt    *time.Time
	ProcessedAt  *time.Time
	FinishedAt   *time.Time
	Run          *job.Run
}

type JobQueue interface {
	Enqueue(ctx context.Context, data job.MatchingJobData) (queue.EnqueueResult, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
}

type MatchingJobUsecase interface {
	Enqueue(ctx context.Context, in EnqueueInput) (queue.EnqueueResult, error)
	GetJob(ctx context.Context, id string) (JobView, error)
}

type MatchingJobs struct {
	queue  JobQueue
	users  user.Repository
	runs   repository.MatchingJobRepository
	events messaging.Publisher
	logger zerolog.Logger
}

func NewMatchingJobUsecase(q JobQueue, users user.Repository, runs repository.MatchingJobRepository, events messaging.Publisher, logger zerolog.Logger) *MatchingJobs {
	if events == nil {
		events = messaging.Discard
	}
	return &MatchingJobs{queue: q, users: users, runs: runs, events: events, logger: logger}
}

func (u *MatchingJobs) Enqueue(ctx context.Context, in EnqueueInput) (queue.EnqueueResult, error) {
	in.TargetUserID = strings.TrimSpace(in.TargetUserID)
	in.MatchmakerID = strings.TrimSpace(in.MatchmakerID)
	in.JobID = strings.TrimSpace(in.JobID)
	if in.TargetUserID == "" || in.MatchmakerID == "" {
		return queue.EnqueueResult{}, ErrInvalidInput
	}
	if in.JobID == "" {
		in.JobID = uuid.NewString()
	}

	if u.users != nil {
		if _, err := u.users.GetByID(ctx, in.TargetUserID); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return queue.EnqueueResult{}, ErrTargetNotFound
			}
			u.logger.Error().Err(err).Str("target_user_id", in.TargetUserID).Msg("lookup target")
			return queue.EnqueueResult{}, ErrInternal
		}
	}

	res, err := u.queue.Enqueue(ctx, job.MatchingJobData{
		JobID:        in.JobID,
		TargetUserID: in.TargetUserID,
		MatchmakerID: in.MatchmakerID,
		ForceRefresh: in.ForceRefresh,
	})
	if err != nil {
		metrics.JobsEnqueued.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, queue.ErrInvalidData):
			return queue.EnqueueResult{}, ErrInvalidInput
		case errors.Is(err, queue.ErrBrokerUnavailable):
			u.logger.Error().Err(err).Str("job_id", in.JobID).Msg("enqueue matching job")
			return queue.EnqueueResult{}, ErrQueueUnavailable
		default:
			return queue.EnqueueResult{}, ErrInternal
		}
	}

	if res.Duplicate {
		metrics.JobsEnqueued.WithLabelValues("duplicate").Inc()
		u.logger.Info().Str("job_id", res.JobID).Msg("matching job already in flight")
		return res, nil
	}

	metrics.JobsEnqueued.WithLabelValues("accepted").Inc()
	u.logger.Info().
		Str("job_id", res.JobID).
		Str("target_user_id", in.TargetUserID).
		Str("matchmaker_id", in.MatchmakerID).
		Bool("force_refresh", in.ForceRefresh).
		Msg("matching job queued")

	if err := u.events.Publish(messaging.JobEvent{
		Type:         messaging.EventQueued,
		JobID:        res.JobID,
		TargetUserID: in.TargetUserID,
		MatchmakerID: in.MatchmakerID,
		At:           time.Now().UTC(),
	}); err != nil {
		u.logger.Warn().Err(err).Str("job_id", res.JobID).Msg("publish queued event")
	}
	return res, nil
}

func (u *MatchingJobs) GetJob(ctx context.Context, id string) (JobView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return JobView{}, ErrInvalidInput
	}

	view := JobView{ID: id}
	found := false

	j, err := u.queue.GetJob(ctx, id)
	switch {
	case err == nil:
		found = true
		view.Status = j.Status
		view.AttemptsMade = j.AttemptsMade
		view.MaxAttempts = j.MaxAttempts
		view.FailedReason = j.FailedReason
		view.ReturnValue = j.ReturnValue
		view.CreatedAt = j.CreatedAt
		view.ProcessedAt = j.ProcessedAt
		view.FinishedAt = j.FinishedAt
		if data, derr := j.Decode(); derr == nil {
			view.Data = &data
		}
	case errors.Is(err, queue.ErrJobNotFound):
	default:
		u.logger.Warn().Err(err).Str("job_id", id).Msg("read queue job")
	}

	if u.runs != nil {
		run, rerr := u.runs.GetByID(ctx, id)
		switch {
		case rerr == nil:
			found = true
			view.Run = &run
			if view.Status == "" {
				view.Status = run.Status
			}
		case errors.Is(rerr, repository.ErrRunNotFound):
		default:
			u.logger.Error().Err(rerr).Str("job_id", id).Msg("read run record")
			if !found {
				return JobView{}, ErrInternal
			}
		}
	}

	if !found {
		if err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			return JobView{}, ErrQueueUnavailable
		}
		return JobView{}, ErrJobNotFound
	}
	return view, nil
}
