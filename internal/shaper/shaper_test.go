package shaper

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestShaper_PreservesOrderAndPacing(t *testing.T) {
	s := New(500, 100)

	var mu sync.Mutex
	var order []int
	starts := make([]time.Time, 3)

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
				starts[n-1] = time.Now()
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil, nil
			})
		}(i)
		// Stagger enqueue slightly so FIFO order is deterministic.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	mu.Lock()
	got := append([]int{}, order...)
	mu.Unlock()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("execution order = %v, want [1 2 3]", got)
	}

	if d := starts[1].Sub(starts[0]); d < 500*time.Millisecond {
		t.Errorf("t2-t1 = %v, want >= 500ms", d)
	}
	if d := starts[2].Sub(starts[1]); d < 500*time.Millisecond {
		t.Errorf("t3-t2 = %v, want >= 500ms", d)
	}
}

func TestShaper_GetStatusReportsQueueDepth(t *testing.T) {
	s := New(50, 10)
	release := make(chan struct{})

	go func() {
		_, _ = s.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		})
	}()

	// Let the first task claim the worker.
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_, _ = s.Enqueue(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	status := s.GetStatus()
	if !status.Processing {
		t.Error("expected a task in flight")
	}
	if status.Queued < 1 {
		t.Errorf("Queued = %d, want >= 1", status.Queued)
	}

	close(release)
	<-done
}

func TestShaper_FailingTaskDoesNotPoisonQueue(t *testing.T) {
	s := New(10, 5)

	_, err := s.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
		return nil, context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("expected the first task's error to propagate")
	}

	val, err := s.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || val != "ok" {
		t.Fatalf("second task should succeed after a failing one, got val=%v err=%v", val, err)
	}
}
