package shutdown

import (
	"context"

	"github.com/vinayprograms/threadkit/errors"
)

// Stoppable is satisfied by every *threads.Handle[T].
type Stoppable interface {
	ID() uint64
	Name() string
	RequestShutdown()
	Done() <-chan struct{}
}

// ThreadHandler returns a handler that asks h to shut down and waits until
// its body has returned or ctx is done. The thread's own result is left for
// its owner to join.
func ThreadHandler(h Stoppable) Handler {
	return HandlerFunc(func(ctx context.Context) error {
		h.RequestShutdown()
		select {
		case <-h.Done():
			return nil
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "thread did not exit", errors.WithThread(h.ID(), h.Name()))
		}
	})
}
