package threads

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Idle is the activity of a thread that has not reported one.
const Idle = ""

// Status is a point-in-time copy of one thread's identity and activity.
type Status struct {
	ID                uint64    `json:"id"`
	Name              string    `json:"name"`
	ShortName         string    `json:"short_name"`
	Activity          string    `json:"activity"`
	Running           bool      `json:"running"`
	StartedAt         time.Time `json:"started_at"`
	ActivityAt        time.Time `json:"activity_at"`
	ShutdownRequested bool      `json:"shutdown_requested"`
}

// IsIdle reports whether the thread has no current activity.
func (s Status) IsIdle() bool {
	return s.Activity == Idle
}

var lastID atomic.Uint64

func nextID() uint64 {
	return lastID.Add(1)
}

// state is shared by a running body (through its Scope) and its Handle.
type state struct {
	mu     sync.Mutex
	status Status // ShutdownRequested is filled from shutdown on read

	shutdown atomic.Bool
	wake     chan struct{} // closed on the first shutdown request
	ctx      context.Context
	cancel   context.CancelFunc

	done chan struct{} // completion signal
}

func newState(id uint64, name, shortName string, parent context.Context) *state {
	if shortName == "" {
		shortName = name
	}
	if parent == nil {
		parent = context.Background()
	}
	now := time.Now()
	ctx, cancel := context.WithCancel(parent)
	return &state{
		status: Status{
			ID:         id,
			Name:       name,
			ShortName:  shortName,
			Activity:   Idle,
			Running:    true,
			StartedAt:  now,
			ActivityAt: now,
		},
		wake:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *state) snapshot() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.ShutdownRequested = s.shutdown.Load()
	return st
}

// setActivity replaces the activity and returns the previous one.
func (s *state) setActivity(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status.Activity
	s.status.Activity = text
	s.status.ActivityAt = time.Now()
	return prev
}

// requestShutdown reports whether this call was the first request.
func (s *state) requestShutdown() bool {
	if !s.shutdown.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	close(s.wake)
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
	return true
}

// resetShutdown clears the flag with a fresh wake channel and context.
// Only mock scopes do this; spawned threads never un-request shutdown.
func (s *state) resetShutdown() {
	if !s.shutdown.Load() {
		return
	}
	s.mu.Lock()
	s.wake = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()
	s.shutdown.Store(false)
}

func (s *state) wakeCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wake
}

func (s *state) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *state) setStopped() {
	s.mu.Lock()
	s.status.Running = false
	s.mu.Unlock()
}

func (s *state) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
