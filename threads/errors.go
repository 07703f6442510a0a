package threads

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"time"

	"github.com/vinayprograms/threadkit/errors"
)

// PanicError carries the value a body panicked with and the stack of the
// panicking goroutine. It is the cause of every PANIC error from Join.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: buf[:n]}
}

// Causes attached to failures the join path produces itself. The Is
// helpers check for these, so a body error that merely carries the same
// code is never mistaken for one.
var (
	errJoinTimeout   = stderrors.New("join timed out")
	errAlreadyJoined = stderrors.New("result already taken")
	errGoexit        = stderrors.New("body called runtime.Goexit")
)

func panicErr(st *state, p *PanicError) error {
	return errors.RecoverPanic(p.Value,
		errors.WithCause(p),
		errors.WithThread(st.status.ID, st.status.Name),
	)
}

func goexitErr(st *state) error {
	return errors.New(errors.ErrCodePanic,
		fmt.Sprintf("thread %q exited without returning", st.status.Name),
		errors.WithCause(errGoexit),
		errors.WithThread(st.status.ID, st.status.Name),
	)
}

func timeoutErr(st *state, timeout time.Duration) error {
	return errors.New(errors.ErrCodeTimeout,
		fmt.Sprintf("thread %q still running after %s", st.status.Name, timeout),
		errors.WithCause(errJoinTimeout),
		errors.WithThread(st.status.ID, st.status.Name),
		errors.WithMetadata("timeout", timeout.String()),
	)
}

func alreadyJoinedErr(st *state) error {
	return errors.New(errors.ErrCodeAlreadyJoined,
		fmt.Sprintf("thread %q", st.status.Name),
		errors.WithCause(errAlreadyJoined),
		errors.WithThread(st.status.ID, st.status.Name),
	)
}

// IsTimeout reports whether err is a join or select that gave up waiting.
// A body's own TIMEOUT error, returned through Join, is not one.
func IsTimeout(err error) bool {
	return errors.Is(err, errors.ErrCodeTimeout) && stderrors.Is(err, errJoinTimeout)
}

// IsPanic reports whether err is a body (or Map transform) that panicked
// or called runtime.Goexit.
func IsPanic(err error) bool {
	if !errors.Is(err, errors.ErrCodePanic) {
		return false
	}
	var pe *PanicError
	return errors.As(err, &pe) || stderrors.Is(err, errGoexit)
}

// IsAlreadyJoined reports whether err is a join after the result was taken.
func IsAlreadyJoined(err error) bool {
	return errors.Is(err, errors.ErrCodeAlreadyJoined) && stderrors.Is(err, errAlreadyJoined)
}

// PanicValue returns the value a body panicked with, if err carries one.
func PanicValue(err error) (any, bool) {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Value, true
	}
	return nil, false
}
