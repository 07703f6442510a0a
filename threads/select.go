package threads

import (
	"fmt"
	"reflect"
	"time"

	"github.com/vinayprograms/threadkit/errors"
)

// Joinable is satisfied by every *Handle[T], whatever T is.
type Joinable interface {
	ID() uint64
	Done() <-chan struct{}
}

// Select waits until one of handles finishes and returns its index. The
// result is not consumed; join the selected handle to take it. If several
// are already finished, any of them may be chosen. A timeout <= 0 checks
// without waiting.
func Select(timeout time.Duration, handles ...Joinable) (int, error) {
	if len(handles) == 0 {
		return -1, errors.InvalidInput("select: no handles")
	}

	cases := make([]reflect.SelectCase, 0, len(handles)+1)
	for _, h := range handles {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(h.Done()),
		})
	}

	if timeout <= 0 {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectDefault})
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(timer.C),
		})
	}

	chosen, _, _ := reflect.Select(cases)
	if chosen == len(handles) {
		return -1, errors.New(errors.ErrCodeTimeout,
			fmt.Sprintf("select: none of %d threads finished within %s", len(handles), timeout),
			errors.WithCause(errJoinTimeout),
			errors.WithMetadata("timeout", timeout.String()),
		)
	}
	return chosen, nil
}
