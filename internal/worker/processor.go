package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchengine/internal/domain/job"
	"matchengine/internal/domain/match"
	"matchengine/internal/domain/matching"
	"matchengine/internal/messaging"
	"matchengine/internal/metrics"
	"matchengine/internal/queue"
	"matchengine/internal/repository"

	"github.com/rs/zerolog"
)

// Result is what one successful run reports back to the queue.
type Result struct {
	CandidatesConsidered int                 `json:"candidatesConsidered"`
	SkippedRecent        int                 `json:"skippedRecent"`
	Evaluated            int                 `json:"evaluated"`
	Rejected             int                 `json:"rejected"`
	MatchesFound         int                 `json:"matchesFound"`
	Upserts              match.UpsertSummary `json:"upserts"`
}

type ProcessorConfig struct {
	ScanCooldown time.Duration
	MinScore     int
	MaxPoolSize  int
}

// CacheInvalidator drops cached reads for a target after its matches change.
type CacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

// MatchesCacheKey is the cache key for the persisted matches of a target.
func MatchesCacheKey(targetUserID string) string {
	return "matches:" + targetUserID
}

type MatchingProcessor struct {
	profiles repository.ProfileRepository
	scans    repository.ScanHistoryRepository
	matches  repository.PotentialMatchRepository
	runs     repository.MatchingJobRepository
	engine   *matching.Engine
	events   messaging.Publisher
	cache    CacheInvalidator
	cfg      ProcessorConfig
	logger   zerolog.Logger
	now      func() time.Time
}

type ProcessorDeps struct {
	Profiles repository.ProfileRepository
	Scans    repository.ScanHistoryRepository
	Matches  repository.PotentialMatchRepository
	Runs     repository.MatchingJobRepository
	Engine   *matching.Engine
	Events   messaging.Publisher
	Cache    CacheInvalidator
}

func NewMatchingProcessor(deps ProcessorDeps, cfg ProcessorConfig, logger zerolog.Logger) *MatchingProcessor {
	if deps.Engine == nil {
		deps.Engine = matching.NewEngine()
	}
	if deps.Events == nil {
		deps.Events = messaging.Discard
	}
	if cfg.MinScore < 0 {
		cfg.MinScore = 0
	}
	return &MatchingProcessor{
		profiles: deps.Profiles,
		scans:    deps.Scans,
		matches:  deps.Matches,
		runs:     deps.Runs,
		engine:   deps.Engine,
		events:   deps.Events,
		cache:    deps.Cache,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Process runs one matching job: load the target and its pool, drop pairs
// scanned inside the cooldown, score, persist the matches that clear
// MinScore, refresh stored pairs that no longer do and record every
// evaluated pair.
func (p *MatchingProcessor) Process(ctx context.Context, j *queue.Job) (Result, error) {
	data, err := j.Decode()
	if err != nil {
		return Result{}, queue.Permanent(fmt.Errorf("decode job payload: %w", err))
	}

	log := p.logger.With().
		Str("job_id", j.ID).
		Str("target_user_id", data.TargetUserID).
		Int("attempt", j.AttemptsMade).
		Bool("force_refresh", data.ForceRefresh).
		Logger()

	started := p.now().UTC()
	p.saveRun(ctx, log, job.Run{
		ID:           j.ID,
		TargetUserID: data.TargetUserID,
		MatchmakerID: data.MatchmakerID,
		ForceRefresh: data.ForceRefresh,
		Status:       job.StatusActive,
		Attempts:     j.AttemptsMade,
		StartedAt:    &started,
	})
	p.publish(log, messaging.JobEvent{
		Type:         messaging.EventStarted,
		JobID:        j.ID,
		TargetUserID: data.TargetUserID,
		MatchmakerID: data.MatchmakerID,
		Attempt:      j.AttemptsMade,
	})

	res, err := p.run(ctx, log, j.ID, data)
	if err != nil {
		return res, err
	}

	finished := p.now().UTC()
	p.saveRun(ctx, log, job.Run{
		ID:                   j.ID,
		TargetUserID:         data.TargetUserID,
		MatchmakerID:         data.MatchmakerID,
		ForceRefresh:         data.ForceRefresh,
		Status:               job.StatusCompleted,
		Attempts:             j.AttemptsMade,
		CandidatesConsidered: res.CandidatesConsidered,
		MatchesFound:         res.MatchesFound,
		StartedAt:            &started,
		FinishedAt:           &finished,
	})
	return res, nil
}

func (p *MatchingProcessor) run(ctx context.Context, log zerolog.Logger, jobID string, data job.MatchingJobData) (Result, error) {
	var res Result

	target, err := p.profiles.GetProfile(ctx, data.TargetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return res, matching.NewDataError(data.TargetUserID, "target profile not found")
		}
		return res, fmt.Errorf("load target: %w", err)
	}
	if !target.Gender.Valid() {
		return res, matching.NewDataError(target.UserID, "target profile missing gender")
	}
	if target.BirthDate == nil || target.BirthDate.IsZero() {
		return res, matching.NewDataError(target.UserID, "target profile missing birth date")
	}

	excluded, err := p.profiles.ExcludedPartners(ctx, target.UserID)
	if err != nil {
		return res, fmt.Errorf("load excluded partners: %w", err)
	}
	target.Excluded = excluded

	q := repository.PoolQuery{Limit: p.cfg.MaxPoolSize}
	if !data.ForceRefresh && p.cfg.ScanCooldown > 0 {
		q.ScannedSince = p.now().Add(-p.cfg.ScanCooldown)
	}
	loaded, err := p.profiles.ListCandidatePool(ctx, target, q)
	if err != nil {
		return res, fmt.Errorf("load candidate pool: %w", err)
	}
	pool := loaded.Candidates
	res.SkippedRecent = loaded.SkippedRecent
	res.CandidatesConsidered = len(pool) + loaded.SkippedRecent
	log.Debug().Str("step", "pool").Int("candidates", len(pool)).Int("skipped_recent", loaded.SkippedRecent).Msg("candidate pool loaded")

	// Recheck the loaded page: a job for one of these candidates may have
	// scanned the pair since the pool query ran.
	if !q.ScannedSince.IsZero() && len(pool) > 0 {
		ids := make([]string, 0, len(pool))
		for _, c := range pool {
			ids = append(ids, c.UserID)
		}
		recent, err := p.scans.RecentlyScanned(ctx, target.UserID, ids, p.cfg.ScanCooldown)
		if err != nil {
			return res, fmt.Errorf("check scan history: %w", err)
		}
		if len(recent) > 0 {
			fresh := pool[:0:0]
			for _, c := range pool {
				if recent[c.UserID] {
					continue
				}
				fresh = append(fresh, c)
			}
			res.SkippedRecent += len(pool) - len(fresh)
			pool = fresh
		}
	}
	res.Evaluated = len(pool)
	metrics.CandidatesSkipped.Add(float64(res.SkippedRecent))
	metrics.CandidatesEvaluated.Add(float64(res.Evaluated))

	rep, err := p.engine.Evaluate(target, pool)
	if err != nil {
		return res, err
	}
	res.Rejected = len(rep.Rejected)

	upserts := make([]repository.PotentialMatchUpsert, 0, len(rep.Matches))
	scans := make([]repository.ScanRecord, 0, len(rep.Matches)+len(rep.Rejected))
	for _, m := range rep.Matches {
		score := m.OverallScore
		scans = append(scans, repository.ScanRecord{CandidateUserID: m.CandidateUserID, Score: &score})
		// Below MinScore only an already stored pair is rewritten.
		below := m.OverallScore < p.cfg.MinScore
		if !below {
			res.MatchesFound++
		}
		upserts = append(upserts, repository.PotentialMatchUpsert{
			Match:          m,
			ShortReasoning: matching.Summarize(m),
			JobID:          jobID,
			RefreshOnly:    below,
		})
	}
	for _, r := range rep.Rejected {
		scans = append(scans, repository.ScanRecord{CandidateUserID: r.CandidateUserID})
	}

	sum, err := p.matches.UpsertMany(ctx, upserts)
	if err != nil {
		return res, fmt.Errorf("persist potential matches: %w", err)
	}
	res.Upserts = sum
	metrics.MatchesUpserted.WithLabelValues(string(match.OutcomeCreated)).Add(float64(sum.Created))
	metrics.MatchesUpserted.WithLabelValues(string(match.OutcomeUpdated)).Add(float64(sum.Updated))
	metrics.MatchesUpserted.WithLabelValues(string(match.OutcomeUnchanged)).Add(float64(sum.Unchanged))

	scannedAt := p.now().UTC()
	if err := p.scans.RecordScans(ctx, target.UserID, scans, scannedAt); err != nil {
		return res, fmt.Errorf("record scans: %w", err)
	}
	if err := p.profiles.MarkScanned(ctx, target.UserID, scannedAt); err != nil {
		return res, fmt.Errorf("mark target scanned: %w", err)
	}

	if p.cache != nil && sum.Created+sum.Updated > 0 {
		if err := p.cache.Delete(ctx, MatchesCacheKey(target.UserID)); err != nil {
			log.Warn().Err(err).Msg("invalidate matches cache")
		}
	}

	log.Info().
		Int("considered", res.CandidatesConsidered).
		Int("skipped_recent", res.SkippedRecent).
		Int("rejected", res.Rejected).
		Int("matches", res.MatchesFound).
		Int("created", sum.Created).
		Int("updated", sum.Updated).
		Msg("matching run finished")
	return res, nil
}

// Finalize records a failed or retried attempt. The worker calls it after
// the queue accepted the failure.
func (p *MatchingProcessor) Finalize(ctx context.Context, j *queue.Job, cause error, retried bool) {
	data, err := j.Decode()
	if err != nil {
		// Nothing addressable to record for a payload that never decoded.
		return
	}
	log := p.logger.With().Str("job_id", j.ID).Str("target_user_id", data.TargetUserID).Logger()

	status := job.StatusFailed
	evType := messaging.EventFailed
	if retried {
		status = job.StatusDelayed
		evType = messaging.EventRetrying
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	finished := p.now().UTC()
	run := job.Run{
		ID:           j.ID,
		TargetUserID: data.TargetUserID,
		MatchmakerID: data.MatchmakerID,
		ForceRefresh: data.ForceRefresh,
		Status:       status,
		Attempts:     j.AttemptsMade,
		Error:        reason,
	}
	if !retried {
		run.FinishedAt = &finished
	}
	p.saveRun(ctx, log, run)
	p.publish(log, messaging.JobEvent{
		Type:         evType,
		JobID:        j.ID,
		TargetUserID: data.TargetUserID,
		MatchmakerID: data.MatchmakerID,
		Attempt:      j.AttemptsMade,
		Error:        reason,
	})
}

// Completed publishes the success event for a job the queue marked done.
func (p *MatchingProcessor) Completed(j *queue.Job, res Result) {
	data, err := j.Decode()
	if err != nil {
		return
	}
	p.publish(p.logger, messaging.JobEvent{
		Type:         messaging.EventCompleted,
		JobID:        j.ID,
		TargetUserID: data.TargetUserID,
		MatchmakerID: data.MatchmakerID,
		Attempt:      j.AttemptsMade,
		Considered:   res.CandidatesConsidered,
		Matches:      res.MatchesFound,
		Created:      res.Upserts.Created,
		Updated:      res.Upserts.Updated,
	})
}

func (p *MatchingProcessor) saveRun(ctx context.Context, log zerolog.Logger, run job.Run) {
	if p.runs == nil {
		return
	}
	if err := p.runs.Upsert(ctx, run); err != nil {
		log.Warn().Err(err).Str("status", string(run.Status)).Msg("save run record")
	}
}

func (p *MatchingProcessor) publish(log zerolog.Logger, ev messaging.JobEvent) {
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	if err := p.events.Publish(ev); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Type)).Msg("publish job event")
	}
}
