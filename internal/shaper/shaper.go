// Package shaper implements the Traffic Shaper: a FIFO, single-worker
// pacing queue that enforces a minimum inter-request delay with jitter, so
// outbound calls don't burst in a way that's obviously automated (spec
// §4.3).
package shaper

import (
	"context"
	"sync"
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/jitter"
)

// TaskFunc is the unit of work the shaper paces. It receives the context
// passed to Enqueue so a caller can still cancel while queued.
type TaskFunc func(ctx context.Context) (any, error)

type job struct {
	fn     TaskFunc
	ctx    context.Context
	result chan jobResult
}

type jobResult struct {
	value any
	err   error
}

// Shaper serializes tasks behind one worker goroutine, enforcing
// minDelayMs + Uniform(0, jitterMs) between the completion of one task and
// the start of the next.
type Shaper struct {
	minDelay time.Duration
	jitter   time.Duration

	mu         sync.Mutex
	queue      []*job
	processing bool
	lastStart  time.Time

	wake chan struct{}
}

// Status is the observability view returned by GetStatus.
type Status struct {
	Processing bool
	Queued     int
}

// Defaults per spec §4.3.
const (
	DefaultMinDelayMs = 3000
	DefaultJitterMs   = 2000
)

// New builds a Shaper with the given pacing parameters and starts its
// worker goroutine.
func New(minDelayMs, jitterMs int) *Shaper {
	s := &Shaper{
		minDelay: time.Duration(minDelayMs) * time.Millisecond,
		jitter:   time.Duration(jitterMs) * time.Millisecond,
		wake:     make(chan struct{}, 1),
	}
	go s.run()
	return s
}

// Enqueue appends fn to the FIFO and blocks until it has run (or ctx is
// canceled before its turn arrives).
func (s *Shaper) Enqueue(ctx context.Context, fn TaskFunc) (any, error) {
	j := &job{fn: fn, ctx: ctx, result: make(chan jobResult, 1)}

	s.mu.Lock()
	s.queue = append(s.queue, j)
	s.mu.Unlock()
	s.signal()

	select {
	case r := <-j.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetStatus reports whether a task is currently executing and how many are
// waiting behind it.
func (s *Shaper) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Processing: s.processing, Queued: len(s.queue)}
}

func (s *Shaper) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Shaper) run() {
	for {
		j := s.dequeue()
		if j == nil {
			<-s.wake
			continue
		}

		s.waitForTurn()

		s.mu.Lock()
		s.processing = true
		s.mu.Unlock()

		value, err := j.fn(j.ctx)

		s.mu.Lock()
		s.processing = false
		s.lastStart = time.Now() // set at completion, per spec §4.3
		s.mu.Unlock()

		j.result <- jobResult{value: value, err: err}
	}
}

func (s *Shaper) dequeue() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	j := s.queue[0]
	s.queue = s.queue[1:]
	return j
}

func (s *Shaper) waitForTurn() {
	s.mu.Lock()
	last := s.lastStart
	s.mu.Unlock()

	if last.IsZero() {
		return
	}

	required := s.minDelay + time.Duration(jitter.Uniform(0, float64(s.jitter)))
	elapsed := time.Since(last)
	if wait := required - elapsed; wait > 0 {
		time.Sleep(wait)
	}
}
