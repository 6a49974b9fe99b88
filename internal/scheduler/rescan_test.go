package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"matchengine/internal/domain/job"
	"matchengine/internal/queue"

	"github.com/rs/zerolog"
)

type stubTargets struct {
	ids    []string
	before time.Time
	limit  int
}

func (s *stubTargets) ListStaleTargets(ctx context.Context, before time.Time, limit int) ([]string, error) {
	s.before = before
	s.limit = limit
	return s.ids, nil
}

type stubQueue struct {
	seen    map[string]bool
	failAt  int
	calls   int
	payload []job.MatchingJobData
}

func (s *stubQueue) Enqueue(ctx context.Context, d job.MatchingJobData) (queue.EnqueueResult, error) {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return queue.EnqueueResult{}, fmt.Errorf("%w: dial tcp", queue.ErrBrokerUnavailable)
	}
	s.payload = append(s.payload, d)
	if s.seen[d.JobID] {
		return queue.EnqueueResult{JobID: d.JobID, Duplicate: true}, nil
	}
	s.seen[d.JobID] = true
	return queue.EnqueueResult{JobID: d.JobID}, nil
}

var fixed = time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC)

func TestRescan_RunOnceIsIdempotentWithinADay(t *testing.T) {
	targets := &stubTargets{ids: []string{"u1", "u2"}}
	q := &stubQueue{seen: map[string]bool{}}
	r := NewRescan(targets, q, Config{BatchSize: 50, Cooldown: 7 * 24 * time.Hour}, zerolog.Nop())
	r.now = func() time.Time { return fixed }

	first, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if first.Enqueued != 2 || first.Duplicate != 0 {
		t.Fatalf("unexpected first run: %+v", first)
	}
	second, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if second.Enqueued != 0 || second.Duplicate != 2 {
		t.Fatalf("expected duplicates on overlapping run, got %+v", second)
	}

	if q.payload[0].JobID != "scheduled-u1-20260309" || q.payload[0].MatchmakerID != SystemMatchmakerID {
		t.Fatalf("unexpected payload: %+v", q.payload[0])
	}
	if !targets.before.Equal(fixed.Add(-7*24*time.Hour)) || targets.limit != 50 {
		t.Fatalf("unexpected stale query: before=%v limit=%d", targets.before, targets.limit)
	}
}

func TestRescan_StopsWhenBrokerDown(t *testing.T) {
	targets := &stubTargets{ids: []string{"u1", "u2", "u3"}}
	q := &stubQueue{seen: map[string]bool{}, failAt: 2}
	r := NewRescan(targets, q, Config{}, zerolog.Nop())

	sum, err := r.RunOnce(context.Background())
	if !errors.Is(err, queue.ErrBrokerUnavailable) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if sum.Enqueued != 1 || sum.Failed != 1 || q.calls != 2 {
		t.Fatalf("expected batch to stop at the outage, got %+v calls=%d", sum, q.calls)
	}
}

func TestJobID_ChangesDaily(t *testing.T) {
	a := JobID("u1", fixed)
	b := JobID("u1", fixed.Add(24*time.Hour))
	if a == b {
		t.Fatalf("expected distinct ids across days, got %s", a)
	}
}
