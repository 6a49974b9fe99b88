package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"matchengine/internal/database"
	"matchengine/internal/domain/job"
	"matchengine/internal/domain/match"
	"matchengine/internal/domain/matching"
	"matchengine/internal/domain/user"
	"matchengine/internal/messaging"
	"matchengine/internal/queue"
	"matchengine/internal/repository"

	"github.com/goccy/go-json"
)

var refTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func ptrInt(v int) *int { return &v }

func birthForAge(age int) *time.Time {
	b := time.Date(refTime.Year()-age, 1, 15, 0, 0, 0, 0, time.UTC)
	return &b
}

func profile(id string, g user.Gender, age int) matching.Profile {
	return matching.Profile{
		UserID:             id,
		Gender:             g,
		BirthDate:          birthForAge(age),
		HeightCM:           ptrInt(172),
		City:               "Jerusalem",
		ReligiousLevel:     "DATI_LEUMI",
		Education:          "BA",
		Occupation:         "Teacher",
		Origin:             "Israeli",
		NativeLanguage:     "Hebrew",
		UserStatus:         user.StatusActive,
		AvailabilityStatus: user.AvailabilityAvailable,
		IsVisible:          true,
	}
}

type fakeProfiles struct {
	mu       sync.Mutex
	byID     map[string]matching.Profile
	pool     []matching.Profile
	excluded map[string]struct{}
	scanned  map[string]time.Time
	poolErr  error
	// history backs the ScannedSince filter the way the pool query joins
	// scanned_pairs.
	history *fakeScans
	limits  []int
}

func newFakeProfiles(target matching.Profile, pool ...matching.Profile) *fakeProfiles {
	return &fakeProfiles{
		byID:    map[string]matching.Profile{target.UserID: target},
		pool:    pool,
		scanned: map[string]time.Time{},
	}
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (matching.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[userID]
	if !ok {
		return matching.Profile{}, repository.ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeProfiles) ListCandidatePool(ctx context.Context, target matching.Profile, q repository.PoolQuery) (repository.CandidatePool, error) {
	var out repository.CandidatePool
	if f.poolErr != nil {
		return out, f.poolErr
	}
	f.mu.Lock()
	f.limits = append(f.limits, q.Limit)
	f.mu.Unlock()

	out.Candidates = make([]matching.Profile, 0, len(f.pool))
	for _, c := range f.pool {
		if !q.ScannedSince.IsZero() && f.history != nil && f.history.scannedSince(target.UserID, c.UserID, q.ScannedSince) {
			out.SkippedRecent++
			continue
		}
		if q.Limit > 0 && len(out.Candidates) >= q.Limit {
			continue
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out, nil
}

func (f *fakeProfiles) ExcludedPartners(ctx context.Context, userID string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for k := range f.excluded {
		out[k] = struct{}{}
	}
	return out, nil
}

func (f *fakeProfiles) MarkScanned(ctx context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned[userID] = at
	return nil
}

func (f *fakeProfiles) ListStaleTargets(ctx context.Context, scannedBefore time.Time, limit int) ([]string, error) {
	return nil, nil
}

type scanEntry struct {
	at    time.Time
	score *int
}

type fakeScans struct {
	mu    sync.Mutex
	now   func() time.Time
	pairs map[[2]string]scanEntry
}

func newFakeScans(now func() time.Time) *fakeScans {
	return &fakeScans{now: now, pairs: map[[2]string]scanEntry{}}
}

func (f *fakeScans) key(a, b string) [2]string {
	low, high, _ := repository.PairKey(a, b)
	return [2]string{low, high}
}

func (f *fakeScans) scannedSince(a, b string, since time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.pairs[f.key(a, b)]
	return ok && !e.at.Before(since)
}

func (f *fakeScans) HasRecentScan(ctx context.Context, a, b string, cooldown time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.pairs[f.key(a, b)]
	return ok && !e.at.Before(f.now().Add(-cooldown)), nil
}

func (f *fakeScans) RecentlyScanned(ctx context.Context, target string, candidates []string, cooldown time.Duration) (map[string]bool, error) {
	out := map[string]bool{}
	for _, c := range candidates {
		ok, _ := f.HasRecentScan(ctx, target, c, cooldown)
		if ok {
			out[c] = true
		}
	}
	return out, nil
}

func (f *fakeScans) RecordScan(ctx context.Context, a, b string, score *int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs[f.key(a, b)] = scanEntry{at: at, score: score}
	return nil
}

func (f *fakeScans) RecordScans(ctx context.Context, target string, scans []repository.ScanRecord, at time.Time) error {
	for _, s := range scans {
		if err := f.RecordScan(ctx, target, s.CandidateUserID, s.Score, at); err != nil {
			return err
		}
	}
	return nil
}

type storedMatch struct {
	score     int
	breakdown string
	status    matching.MatchStatus
	reasoning string
}

// fakeMatches applies the same change detection as the SQL upsert.
type fakeMatches struct {
	mu   sync.Mutex
	rows map[[2]string]storedMatch
	err  error
}

func newFakeMatches() *fakeMatches {
	return &fakeMatches{rows: map[[2]string]storedMatch{}}
}

func (f *fakeMatches) upsert(m repository.PotentialMatchUpsert) match.UpsertOutcome {
	k := [2]string{m.Match.TargetUserID, m.Match.CandidateUserID}
	b, _ := json.Marshal(m.Match.Breakdown)
	cur, ok := f.rows[k]
	if m.RefreshOnly {
		if !ok {
			return match.OutcomeAbsent
		}
		if cur.score == m.Match.OverallScore && cur.breakdown == string(b) {
			return match.OutcomeUnchanged
		}
		cur.score = m.Match.OverallScore
		cur.breakdown = string(b)
		cur.reasoning = m.ShortReasoning
		f.rows[k] = cur
		return match.OutcomeUpdated
	}
	if !ok {
		f.rows[k] = storedMatch{score: m.Match.OverallScore, breakdown: string(b), status: matching.MatchStatusPending, reasoning: m.ShortReasoning}
		return match.OutcomeCreated
	}
	if cur.score == m.Match.OverallScore && cur.breakdown == string(b) && cur.status != matching.MatchStatusExpired {
		return match.OutcomeUnchanged
	}
	if cur.status == matching.MatchStatusExpired {
		cur.status = matching.MatchStatusPending
	}
	cur.score = m.Match.OverallScore
	cur.breakdown = string(b)
	cur.reasoning = m.ShortReasoning
	f.rows[k] = cur
	return match.OutcomeUpdated
}

func (f *fakeMatches) Upsert(ctx context.Context, q database.Querier, m repository.PotentialMatchUpsert) (match.UpsertOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsert(m), nil
}

func (f *fakeMatches) UpsertMany(ctx context.Context, ms []repository.PotentialMatchUpsert) (match.UpsertSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum match.UpsertSummary
	if f.err != nil {
		return sum, f.err
	}
	for _, m := range ms {
		sum.Add(f.upsert(m))
	}
	return sum, nil
}

func (f *fakeMatches) ListForTarget(ctx context.Context, targetUserID string, limit int) ([]match.PotentialMatch, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMatches) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]job.Run
}

func newFakeRuns() *fakeRuns { return &fakeRuns{runs: map[string]job.Run{}} }

func (f *fakeRuns) Upsert(ctx context.Context, run job.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) GetByID(ctx context.Context, id string) (job.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return job.Run{}, repository.ErrRunNotFound
	}
	return r, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []messaging.JobEvent
}

func (f *fakePublisher) Publish(ev messaging.JobEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) types() []messaging.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]messaging.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeCache struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func newJob(id string, data job.MatchingJobData, attempt, max int) *queue.Job {
	data.JobID = id
	b, err := job.Encode(data)
	if err != nil {
		panic(err)
	}
	return &queue.Job{ID: id, Payload: b, Status: job.StatusActive, AttemptsMade: attempt, MaxAttempts: max}
}
