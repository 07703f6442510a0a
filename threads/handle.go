package threads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/threadkit/errors"
)

// slot holds a body's outcome. It is written once before the completion
// signal fires and handed out once.
type slot[T any] struct {
	mu    sync.Mutex
	value T
	err   error
	taken bool
}

func (s *slot[T]) store(v T, err error) {
	s.mu.Lock()
	s.value, s.err = v, err
	s.mu.Unlock()
}

func (s *slot[T]) take(st *state) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.taken {
		return zero, alreadyJoinedErr(st)
	}
	s.taken = true
	v, err := s.value, s.err
	s.value = zero
	return v, err
}

// Handle is the spawner's side of a thread. Dropping a Handle without
// joining leaves the thread running and registered until its body returns.
type Handle[T any] struct {
	st        *state
	take      func() (T, error) // valid once st.done is closed
	hook      joinHook
	requested func(st *state) // first shutdown request only
}

// joinHook is told about joins that give up waiting.
type joinHook func(st *state, timeout time.Duration)

// ID returns the thread id.
func (h *Handle[T]) ID() uint64 {
	return h.st.status.ID
}

// Name returns the thread's full name.
func (h *Handle[T]) Name() string {
	return h.st.status.Name
}

// ShortName returns the thread's grouping label.
func (h *Handle[T]) ShortName() string {
	return h.st.status.ShortName
}

// Status returns a copy of the thread's current status.
func (h *Handle[T]) Status() Status {
	return h.st.snapshot()
}

// Running reports whether the body has not yet returned.
func (h *Handle[T]) Running() bool {
	return h.st.snapshot().Running
}

// Done returns a channel closed when the thread has finished and its
// result is ready to join.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.st.done
}

// ShutdownRequested reports whether RequestShutdown has been called.
func (h *Handle[T]) ShutdownRequested() bool {
	return h.st.shutdown.Load()
}

// RequestShutdown asks the body to stop. It is idempotent and does not
// interrupt a body blocked on anything other than its Scope.
func (h *Handle[T]) RequestShutdown() {
	if h.st.requestShutdown() && h.requested != nil {
		h.requested(h.st)
	}
}

// Join waits up to timeout for the body to finish and returns its result.
// On TIMEOUT the thread is untouched and Join may be called again.
// A timeout <= 0 checks for completion without waiting.
func (h *Handle[T]) Join(timeout time.Duration) (T, error) {
	var zero T

	if timeout <= 0 {
		select {
		case <-h.st.done:
			return h.take()
		default:
			return zero, h.timedOut(timeout)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.st.done:
		return h.take()
	case <-timer.C:
		return zero, h.timedOut(timeout)
	}
}

// JoinForever waits for the body to finish however long it takes.
func (h *Handle[T]) JoinForever() (T, error) {
	<-h.st.done
	return h.take()
}

// JoinContext waits until the body finishes or ctx is done. A ctx deadline
// is reported as TIMEOUT and a cancellation as CANCELED.
func (h *Handle[T]) JoinContext(ctx context.Context) (T, error) {
	var zero T

	select {
	case <-h.st.done:
		return h.take()
	case <-ctx.Done():
	}

	// Prefer a result that raced with ctx.
	select {
	case <-h.st.done:
		return h.take()
	default:
	}

	if ctx.Err() == context.DeadlineExceeded {
		if h.hook != nil {
			h.hook(h.st, 0)
		}
		return zero, errors.New(errors.ErrCodeTimeout,
			fmt.Sprintf("join %q", h.st.status.Name),
			errors.WithCause(fmt.Errorf("%w: %w", errJoinTimeout, ctx.Err())),
			errors.WithThread(h.st.status.ID, h.st.status.Name),
		)
	}
	return zero, errors.Wrap(ctx.Err(),
		fmt.Sprintf("join %q", h.st.status.Name),
		errors.WithThread(h.st.status.ID, h.st.status.Name),
	)
}

func (h *Handle[T]) timedOut(timeout time.Duration) error {
	if h.hook != nil {
		h.hook(h.st, timeout)
	}
	return timeoutErr(h.st, timeout)
}

// Map returns a handle whose join yields f applied to h's successful
// result. f runs at join time, not now. Both handles share one result:
// whichever joins first takes it. Errors from h pass through unchanged;
// a panic in f is reported as a PANIC error.
func Map[T, U any](h *Handle[T], f func(T) U) *Handle[U] {
	st := h.st
	return &Handle[U]{
		st:        st,
		hook:      h.hook,
		requested: h.requested,
		take: func() (U, error) {
			v, err := h.take()
			if err != nil {
				var zero U
				return zero, err
			}
			return apply(st, f, v)
		},
	}
}

func apply[T, U any](st *state, f func(T) U, v T) (out U, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero U
			out, err = zero, panicErr(st, newPanicError(r))
		}
	}()
	return f(v), nil
}

// Ready returns a handle for an already finished thread with the given
// result. It is not registered anywhere and is meant for tests of code
// that consumes handles.
func Ready[T any](value T, err error) *Handle[T] {
	st := newState(nextID(), "ready", "ready", context.Background())
	st.status.Running = false
	st.cancel()
	close(st.done)

	s := &slot[T]{}
	s.store(value, err)
	return &Handle[T]{
		st:   st,
		take: func() (T, error) { return s.take(st) },
	}
}
