package threads

import (
	"context"
	"sync"
	"time"
)

// Scope is the reporting surface a body uses from inside its thread.
// All methods are safe on a nil Scope and never panic.
type Scope struct {
	st *state
}

// ID returns the thread id, or zero for a nil scope.
func (s *Scope) ID() uint64 {
	if s == nil || s.st == nil {
		return 0
	}
	return s.st.status.ID
}

// Name returns the thread's full name.
func (s *Scope) Name() string {
	if s == nil || s.st == nil {
		return ""
	}
	return s.st.status.Name
}

// ShortName returns the thread's grouping label.
func (s *Scope) ShortName() string {
	if s == nil || s.st == nil {
		return ""
	}
	return s.st.status.ShortName
}

// Activity replaces what the thread reports it is doing.
func (s *Scope) Activity(text string) {
	if s == nil || s.st == nil {
		return
	}
	s.st.setActivity(text)
}

// Idle clears the activity.
func (s *Scope) Idle() {
	s.Activity(Idle)
}

// ScopedActivity sets the activity and returns a func that restores the
// previous one. The restore runs at most once.
//
//	defer s.ScopedActivity("flushing")()
func (s *Scope) ScopedActivity(text string) func() {
	if s == nil || s.st == nil {
		return func() {}
	}
	prev := s.st.setActivity(text)
	var once sync.Once
	return func() {
		once.Do(func() { s.st.setActivity(prev) })
	}
}

// ShouldShutdown reports whether shutdown has been requested.
func (s *Scope) ShouldShutdown() bool {
	if s == nil || s.st == nil {
		return false
	}
	return s.st.shutdown.Load()
}

// WaitForShutdown blocks until shutdown is requested or timeout elapses and
// reports whether shutdown was requested. A timeout <= 0 does not block.
func (s *Scope) WaitForShutdown(timeout time.Duration) bool {
	if s == nil || s.st == nil {
		return false
	}
	if timeout <= 0 || s.st.shutdown.Load() {
		return s.st.shutdown.Load()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.st.wakeCh():
		return true
	case <-timer.C:
		return s.st.shutdown.Load()
	}
}

// ShutdownCh returns a channel that is closed when shutdown is requested.
// A nil scope returns a nil channel, which never fires.
func (s *Scope) ShutdownCh() <-chan struct{} {
	if s == nil || s.st == nil {
		return nil
	}
	return s.st.wakeCh()
}

// Context returns a context canceled on shutdown request or when the body
// returns. A nil scope returns context.Background().
func (s *Scope) Context() context.Context {
	if s == nil || s.st == nil {
		return context.Background()
	}
	return s.st.context()
}
