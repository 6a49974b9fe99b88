package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"matchengine/internal/database"
	"matchengine/internal/domain"
	"matchengine/internal/domain/job"
	"matchengine/internal/domain/match"
	"matchengine/internal/domain/user"
	"matchengine/internal/messaging"
	"matchengine/internal/queue"
	"matchengine/internal/repository"

	"github.com/rs/zerolog"
)

type mockQueue struct {
	enqueued []job.MatchingJobData
	res      *queue.EnqueueResult
	err      error
	jobs     map[string]*queue.Job
	getErr   error
}

func (m *mockQueue) Enqueue(ctx context.Context, data job.MatchingJobData) (queue.EnqueueResult, error) {
	if m.err != nil {
		return queue.EnqueueResult{}, m.err
	}
	m.enqueued = append(m.enqueued, data)
	if m.res != nil {
		return *m.res, nil
	}
	return queue.EnqueueResult{JobID: data.JobID}, nil
}

func (m *mockQueue) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return j, nil
}

type mockUsers struct {
	known map[string]bool
	err   error
}

func (m mockUsers) GetByID(ctx context.Context, id string) (user.User, error) {
	if m.err != nil {
		return user.User{}, m.err
	}
	if !m.known[id] {
		return user.User{}, user.ErrNotFound
	}
	return user.User{ID: id, Status: user.StatusActive}, nil
}

type mockRuns struct {
	runs map[string]job.Run
	err  error
}

func (m mockRuns) Upsert(context.Context, job.Run) error { return nil }
func (m mockRuns) GetByID(ctx context.Context, id string) (job.Run, error) {
	if m.err != nil {
		return job.Run{}, m.err
	}
	r, ok := m.runs[id]
	if !ok {
		return job.Run{}, repository.ErrRunNotFound
	}
	return r, nil
}

type mockPublisher struct {
	events []messaging.JobEvent
}

func (m *mockPublisher) Publish(ev messaging.JobEvent) error {
	m.events = append(m.events, ev)
	return nil
}

func TestMatchingJobUsecase_Enqueue_InvalidInput(t *testing.T) {
	uc := NewMatchingJobUsecase(&mockQueue{}, mockUsers{}, mockRuns{}, nil, zerolog.Nop())
	_, err := uc.Enqueue(context.Background(), EnqueueInput{TargetUserID: " ", MatchmakerID: "mm"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMatchingJobUsecase_Enqueue_GeneratesJobID(t *testing.T) {
	q := &mockQueue{}
	pub := &mockPublisher{}
	uc := NewMatchingJobUsecase(q, mockUsers{known: map[string]bool{"u1": true}}, mockRuns{}, pub, zerolog.Nop())

	res, err := uc.Enqueue(context.Background(), EnqueueInput{TargetUserID: "u1", MatchmakerID: "mm"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.JobID == "" || len(q.enqueued) != 1 || q.enqueued[0].JobID != res.JobID {
		t.Fatalf("expected generated job id to be enqueued, got %+v / %+v", res, q.enqueued)
	}
	if len(pub.events) != 1 || pub.events[0].Type != messaging.EventQueued {
		t.Fatalf("expected queued event, got %+v", pub.events)
	}
}

func TestMatchingJobUsecase_Enqueue_Duplicate(t *testing.T) {
	q := &mockQueue{res: &queue.EnqueueResult{JobID: "job-1", Duplicate: true}}
	pub := &mockPublisher{}
	uc := NewMatchingJobUsecase(q, mockUsers{known: map[string]bool{"u1": true}}, mockRuns{}, pub, zerolog.Nop())

	res, err := uc.Enqueue(context.Background(), EnqueueInput{JobID: "job-1", TargetUserID: "u1", MatchmakerID: "mm"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected duplicate")
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no event for duplicate")
	}
}

func TestMatchingJobUsecase_Enqueue_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		users mockUsers
		qErr  error
		want  error
	}{
		{"unknown target", mockUsers{}, nil, ErrTargetNotFound},
		{"user store down", mockUsers{err: errors.New("conn refused")}, nil, ErrInternal},
		{"broker down", mockUsers{known: map[string]bool{"u1": true}}, fmt.Errorf("%w: dial tcp", queue.ErrBrokerUnavailable), ErrQueueUnavailable},
		{"invalid data", mockUsers{known: map[string]bool{"u1": true}}, fmt.Errorf("%w: too long", queue.ErrInvalidData), ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uc := NewMatchingJobUsecase(&mockQueue{err: tc.qErr}, tc.users, mockRuns{}, nil, zerolog.Nop())
			_, err := uc.Enqueue(context.Background(), EnqueueInput{TargetUserID: "u1", MatchmakerID: "mm"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMatchingJobUsecase_GetJob(t *testing.T) {
	payload, err := job.Encode(job.MatchingJobData{JobID: "live", TargetUserID: "u1", MatchmakerID: "mm"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	finished := time.Now().UTC()
	q := &mockQueue{jobs: map[string]*queue.Job{
		"live": {ID: "live", Payload: payload, Status: job.StatusActive, AttemptsMade: 1, MaxAttempts: 2},
	}}
	runs := mockRuns{runs: map[string]job.Run{
		"trimmed": {ID: "trimmed", Status: job.StatusCompleted, MatchesFound: 3, FinishedAt: &finished},
	}}
	uc := NewMatchingJobUsecase(q, mockUsers{}, runs, nil, zerolog.Nop())

	live, err := uc.GetJob(context.Background(), "live")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if live.Status != job.StatusActive || live.Data == nil || live.Data.TargetUserID != "u1" {
		t.Fatalf("unexpected live view: %+v", live)
	}

	trimmed, err := uc.GetJob(context.Background(), "trimmed")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if trimmed.Status != job.StatusCompleted || trimmed.Run == nil || trimmed.Run.MatchesFound != 3 {
		t.Fatalf("expected run record fallback, got %+v", trimmed)
	}

	if _, err := uc.GetJob(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMatchingJobUsecase_GetJob_BrokerDown(t *testing.T) {
	uc := NewMatchingJobUsecase(&mockQueue{getErr: errors.New("dial tcp")}, mockUsers{}, mockRuns{}, nil, zerolog.Nop())
	if _, err := uc.GetJob(context.Background(), "x"); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
}

type mockQueueOps struct {
	stats   queue.Stats
	err     error
	cleaned []job.Status
}

func (m *mockQueueOps) Stats(context.Context) (queue.Stats, error) { return m.stats, m.err }
func (m *mockQueueOps) Empty(context.Context) (int, error)         { return 3, m.err }
func (m *mockQueueOps) Clean(ctx context.Context, st job.Status, grace time.Duration, limit int) (int, error) {
	m.cleaned = append(m.cleaned, st)
	return 2, m.err
}

func TestQueueAdminUsecase_Clean(t *testing.T) {
	ops := &mockQueueOps{}
	uc := NewQueueAdminUsecase(ops, zerolog.Nop())

	if _, err := uc.Clean(context.Background(), "active", 0, 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for active, got %v", err)
	}
	n, err := uc.Clean(context.Background(), "failed", time.Hour, 10)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 removed, got %d %v", n, err)
	}
	if len(ops.cleaned) != 1 || ops.cleaned[0] != job.StatusFailed {
		t.Fatalf("unexpected clean calls: %v", ops.cleaned)
	}
}

func TestQueueAdminUsecase_BrokerDown(t *testing.T) {
	uc := NewQueueAdminUsecase(&mockQueueOps{err: errors.New("dial tcp")}, zerolog.Nop())
	if _, err := uc.Stats(context.Background()); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if _, err := uc.Empty(context.Background()); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
}

type mockMatchRepo struct {
	items []match.PotentialMatch
	calls int
}

func (m *mockMatchRepo) Upsert(context.Context, database.Querier, repository.PotentialMatchUpsert) (match.UpsertOutcome, error) {
	return match.OutcomeUnchanged, nil
}
func (m *mockMatchRepo) UpsertMany(context.Context, []repository.PotentialMatchUpsert) (match.UpsertSummary, error) {
	return match.UpsertSummary{}, nil
}
func (m *mockMatchRepo) ListForTarget(ctx context.Context, target string, limit int) ([]match.PotentialMatch, error) {
	m.calls++
	if limit < len(m.items) {
		return m.items[:limit], nil
	}
	return m.items, nil
}

type mapCache struct {
	entries map[string]any
}

func (c *mapCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	v, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*(out.(*cachedMatches)) = v.(cachedMatches)
	return true, nil
}

func (c *mapCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.entries[key] = value
	return nil
}

func TestMatchQueryUsecase_CachesPerTarget(t *testing.T) {
	repo := &mockMatchRepo{items: []match.PotentialMatch{
		{TargetUserID: "t", CandidateUserID: "a", OverallScore: 90},
		{TargetUserID: "t", CandidateUserID: "b", OverallScore: 70},
	}}
	uc := NewMatchQueryUsecase(repo, &mapCache{entries: map[string]any{}}, zerolog.Nop())

	first, err := uc.ListForTarget(context.Background(), "t", 10)
	if err != nil || len(first) != 2 {
		t.Fatalf("unexpected first read: %v %v", first, err)
	}
	second, err := uc.ListForTarget(context.Background(), "t", 1)
	if err != nil || len(second) != 1 || second[0].CandidateUserID != "a" {
		t.Fatalf("unexpected cached read: %v %v", second, err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one repository read, got %d", repo.calls)
	}

	if _, err := uc.ListForTarget(context.Background(), "t", 20); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected larger limit to bypass cache, got %d calls", repo.calls)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubStats struct {
	pingErr error
}

func (s stubStats) Name() string                               { return "matching" }
func (s stubStats) Stats(context.Context) (queue.Stats, error) { return queue.Stats{Waiting: 4}, nil }
func (s stubStats) Ping(context.Context) error                 { return s.pingErr }

func TestEngineStatusUsecase_GetStatus(t *testing.T) {
	uc := NewEngineStatusUsecase(stubPinger{}, stubStats{pingErr: errors.New("down")}, nil, zerolog.Nop())
	st := uc.GetStatus(context.Background())

	if !st.DatabaseHealthy || st.RedisHealthy {
		t.Fatalf("unexpected health: %+v", st)
	}
	if st.Healthy() {
		t.Fatalf("expected unhealthy overall")
	}
	want := domain.QueueDepth{Waiting: 4}
	if st.Queue == nil || *st.Queue != want {
		t.Fatalf("unexpected queue depth: %+v", st.Queue)
	}
}
