package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"matchengine/internal/domain/matching"
	"matchengine/internal/queue"

	"github.com/rs/zerolog"
)

type fakeSource struct {
	mu        sync.Mutex
	jobs      []*queue.Job
	fetchErr  error
	lockErr   error
	promoted  int
	completed map[string]string
	failed    map[string]error
	released  []string
	extended  int
}

func newFakeSource(jobs ...*queue.Job) *fakeSource {
	return &fakeSource{jobs: jobs, completed: map[string]string{}, failed: map[string]error{}}
}

func (s *fakeSource) PromoteDelayed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted++
	return 0, nil
}

func (s *fakeSource) Fetch(ctx context.Context) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.jobs) == 0 {
		return nil, nil
	}
	j := s.jobs[0]
	s.jobs = s.jobs[1:]
	return j, nil
}

func (s *fakeSource) ExtendLock(ctx context.Context, j *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extended++
	return s.lockErr
}

func (s *fakeSource) Complete(ctx context.Context, j *queue.Job, rv string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[j.ID] = rv
	return nil
}

func (s *fakeSource) Fail(ctx context.Context, j *queue.Job, cause error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[j.ID] = cause
	return !queue.IsPermanent(cause) && j.AttemptsMade < j.MaxAttempts, nil
}

func (s *fakeSource) Release(ctx context.Context, j *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.released = append(s.released, j.ID)
	j.AttemptsMade--
	return nil
}

type finalized struct {
	id      string
	cause   error
	retried bool
}

type fakeProcessor struct {
	mu        sync.Mutex
	fn        func(ctx context.Context, j *queue.Job) (Result, error)
	completed []string
	finals    []finalized
}

func (p *fakeProcessor) Process(ctx context.Context, j *queue.Job) (Result, error) {
	return p.fn(ctx, j)
}

func (p *fakeProcessor) Completed(j *queue.Job, res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, j.ID)
}

func (p *fakeProcessor) Finalize(ctx context.Context, j *queue.Job, cause error, retried bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, finalized{id: j.ID, cause: cause, retried: retried})
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	src := newFakeSource()
	w := New(src, &fakeProcessor{}, Config{}, zerolog.Nop())

	handled, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if handled {
		t.Fatalf("expected nothing handled")
	}
	if src.promoted != 1 {
		t.Fatalf("expected delayed jobs promoted before fetch")
	}
}

func TestRunOnce_CompletesWithResult(t *testing.T) {
	src := newFakeSource(newJob("job-1", jobData(false), 1, 2))
	proc := &fakeProcessor{fn: func(ctx context.Context, j *queue.Job) (Result, error) {
		return Result{CandidatesConsidered: 5, MatchesFound: 2}, nil
	}}
	w := New(src, proc, Config{}, zerolog.Nop())

	handled, err := w.RunOnce(context.Background())
	if err != nil || !handled {
		t.Fatalf("expected handled job, got handled=%v err=%v", handled, err)
	}
	rv, ok := src.completed["job-1"]
	if !ok {
		t.Fatalf("expected job completed")
	}
	if !strings.Contains(rv, `"matchesFound":2`) {
		t.Fatalf("expected result in return value, got %s", rv)
	}
	if len(proc.completed) != 1 {
		t.Fatalf("expected completion callback")
	}
}

func TestRunOnce_FailureIsRetriedThenFinalized(t *testing.T) {
	cause := errors.New("connection refused")
	src := newFakeSource(newJob("job-1", jobData(false), 1, 2), newJob("job-1", jobData(false), 2, 2))
	proc := &fakeProcessor{fn: func(ctx context.Context, j *queue.Job) (Result, error) {
		return Result{}, cause
	}}
	w := New(src, proc, Config{}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if len(proc.finals) != 2 {
		t.Fatalf("expected 2 finalized attempts, got %d", len(proc.finals))
	}
	if !proc.finals[0].retried {
		t.Fatalf("expected first attempt retried")
	}
	if proc.finals[1].retried {
		t.Fatalf("expected last attempt failed")
	}
}

func TestRunOnce_PanicBecomesComputationError(t *testing.T) {
	src := newFakeSource(newJob("job-1", jobData(false), 1, 2))
	proc := &fakeProcessor{fn: func(ctx context.Context, j *queue.Job) (Result, error) {
		var m map[string]int
		m["boom"]++
		return Result{}, nil
	}}
	w := New(src, proc, Config{}, zerolog.Nop())

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cause := src.failed["job-1"]
	var me *matching.MatchingError
	if !errors.As(cause, &me) || me.Kind != matching.KindComputation {
		t.Fatalf("expected computation error, got %v", cause)
	}
	if !proc.finals[0].retried {
		t.Fatalf("expected computation error to be retried")
	}
}

func TestRunOnce_PermanentFailureIsNotRetried(t *testing.T) {
	src := newFakeSource(newJob("job-1", jobData(false), 1, 2))
	proc := &fakeProcessor{fn: func(ctx context.Context, j *queue.Job) (Result, error) {
		return Result{}, matching.NewDataError("target", "target profile not found")
	}}
	w := New(src, proc, Config{}, zerolog.Nop())

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if proc.finals[0].retried {
		t.Fatalf("expected data error to fail without retry")
	}
}

func TestRunOnce_RenewsLockAndStopsOnLockLoss(t *testing.T) {
	src := newFakeSource(newJob("job-1", jobData(false), 1, 2))
	src.lockErr = queue.ErrLockLost
	proc := &fakeProcessor{fn: func(ctx context.Context, j *queue.Job) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}
	w := New(src, proc, Config{LockDuration: 20 * time.Millisecond}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.RunOnce(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not abandon job after lock loss")
	}
	if src.extended == 0 {
		t.Fatalf("expected lock renewal attempt")
	}
	if len(src.completed) != 0 || len(src.failed) != 0 {
		t.Fatalf("expected job left for the stalled sweep")
	}
}

func TestRunOnce_ShutdownReleasesJobWithoutFailing(t *testing.T) {
	j := newJob("job-1", jobData(false), 2, 2)
	src := newFakeSource(j)
	started := make(chan struct{})
	proc := &fakeProcessor{fn: func(ctx context.Context, j *queue.Job) (Result, error) {
		close(started)
		<-ctx.Done()
		return Result{}, fmt.Errorf("load candidate pool: %w", ctx.Err())
	}}
	w := New(src, proc, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.RunOnce(ctx)
	}()
	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
	if len(src.failed) != 0 || len(proc.finals) != 0 {
		t.Fatalf("shutdown must not fail the job: failed=%v finals=%v", src.failed, proc.finals)
	}
	if len(src.released) != 1 || src.released[0] != "job-1" {
		t.Fatalf("expected job released, got %v", src.released)
	}
	if j.AttemptsMade != 1 {
		t.Fatalf("expected attempt handed back, got %d", j.AttemptsMade)
	}
}

func TestRunOnce_PermanentErrorDuringShutdownStillFails(t *testing.T) {
	src := newFakeSource(newJob("job-1", jobData(false), 1, 2))
	ctx, cancel := context.WithCancel(context.Background())
	proc := &fakeProcessor{fn: func(_ context.Context, j *queue.Job) (Result, error) {
		cancel()
		return Result{}, matching.NewDataError("target", "target profile not found")
	}}
	w := New(src, proc, Config{}, zerolog.Nop())

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(src.released) != 0 {
		t.Fatalf("permanent failure must not be released")
	}
	if _, ok := src.failed["job-1"]; !ok {
		t.Fatalf("expected permanent failure recorded")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	src := newFakeSource()
	w := New(src, &fakeProcessor{}, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

type fakeStalled struct {
	res   queue.SweepResult
	stats queue.Stats
	calls int
}

func (f *fakeStalled) SweepStalled(ctx context.Context) (queue.SweepResult, error) {
	f.calls++
	return f.res, nil
}

func (f *fakeStalled) Stats(ctx context.Context) (queue.Stats, error) {
	return f.stats, nil
}

func TestSweeper_SweepOnce(t *testing.T) {
	src := &fakeStalled{res: queue.SweepResult{Requeued: 2, Failed: 1}}
	s := NewSweeper(src, time.Minute, zerolog.Nop())

	got := s.SweepOnce(context.Background())
	if got.Requeued != 2 || got.Failed != 1 {
		t.Fatalf("unexpected sweep result: %+v", got)
	}
	if src.calls != 1 {
		t.Fatalf("expected one sweep call")
	}
}
