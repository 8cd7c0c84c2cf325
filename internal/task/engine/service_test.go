package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "rimetick/pkg/logx"
)

func newTestEngine(t *testing.T, workers int) *Service {
	t.Helper()
	s := New(Config{Workers: workers, HistorySize: 8}, logx.Nop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for job")
		return nil
	}
}

func TestSubmitRunsJobAndReportsOutcome(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, 2)

	done := make(chan error, 2)
	if err := s.Submit(Job{Name: "ok", Run: func(ctx context.Context) error { return nil }, Done: func(err error) { done <- err }}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	boom := errors.New("boom")
	_ = s.Submit(Job{Name: "fail", Run: func(ctx context.Context) error { return boom }, Done: func(err error) { done <- err }})
	if err := waitDone(t, done); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	snap := s.Snapshot()
	if !snap.Running || snap.Completed != 1 || snap.Failed != 1 || len(snap.History) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, 1)

	done := make(chan error, 2)
	_ = s.Submit(Job{Name: "panic", Run: func(ctx context.Context) error { panic("bad") }, Done: func(err error) { done <- err }})
	if err := waitDone(t, done); err == nil {
		t.Fatalf("expected panic to fail the job")
	}
	_ = s.Submit(Job{Name: "after", Run: func(ctx context.Context) error { return nil }, Done: func(err error) { done <- err }})
	if err := waitDone(t, done); err != nil {
		t.Fatalf("worker should survive a panicking job, got %v", err)
	}
}

func TestJobContextFollowsParent(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, 1)

	parent, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	_ = s.Submit(Job{
		Name: "wait",
		Ctx:  parent,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		Done: func(err error) { done <- err },
	})
	<-started
	cancel()
	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStopFailsBacklog(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop(), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	var results []error
	record := func(err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	}
	_ = s.Submit(Job{Name: "blocker", Run: func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}, Done: record})
	<-started
	for i := 0; i < 3; i++ {
		_ = s.Submit(Job{Name: "queued", Run: func(ctx context.Context) error { return nil }, Done: record})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(release)

	mu.Lock()
	defer mu.Unlock()
	stopped := 0
	for _, err := range results {
		if errors.Is(err, ErrStopped) {
			stopped++
		}
	}
	if len(results) != 4 || stopped != 3 {
		t.Fatalf("expected 4 results with 3 ErrStopped, got %v", results)
	}
	if err := s.Submit(Job{Run: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestSubmitRejectsNilRun(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, 1)
	if err := s.Submit(Job{Name: "nil"}); !errors.Is(err, ErrNilJob) {
		t.Fatalf("expected ErrNilJob, got %v", err)
	}
}
