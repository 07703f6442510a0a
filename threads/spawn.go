package threads

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
	"github.com/vinayprograms/threadkit/telemetry"
)

// Outcome is how a body finished.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
	OutcomePanic Outcome = "panic"
)

// Metrics receives thread lifecycle counts. Implementations must be safe
// for concurrent use and should label by short name only.
type Metrics interface {
	ThreadSpawned(shortName string)
	ThreadExited(shortName string, outcome Outcome, lifetime time.Duration)
	JoinTimedOut(shortName string)
}

// Spawner starts threads and registers them in its Registry.
type Spawner struct {
	registry   *Registry
	logger     *logging.Logger
	tracer     *telemetry.Tracer
	metrics    Metrics
	maxThreads int64
	ctx        context.Context

	live atomic.Int64
}

// Option configures a Spawner.
type Option func(*Spawner)

// WithRegistry sets the registry threads are tracked in.
// The default is DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(sp *Spawner) {
		sp.registry = r
	}
}

// WithLogger logs thread lifecycle events at debug level.
func WithLogger(l *logging.Logger) Option {
	return func(sp *Spawner) {
		sp.logger = l
	}
}

// WithTracer records one span per thread lifetime.
func WithTracer(t *telemetry.Tracer) Option {
	return func(sp *Spawner) {
		sp.tracer = t
	}
}

// WithMetrics reports lifecycle counts to m.
func WithMetrics(m Metrics) Option {
	return func(sp *Spawner) {
		sp.metrics = m
	}
}

// WithMaxThreads caps the number of live threads from this spawner.
// Zero means no limit.
func WithMaxThreads(n int) Option {
	return func(sp *Spawner) {
		sp.maxThreads = int64(n)
	}
}

// WithContext sets the parent of every scope context.
func WithContext(ctx context.Context) Option {
	return func(sp *Spawner) {
		sp.ctx = ctx
	}
}

// NewSpawner creates a spawner.
func NewSpawner(opts ...Option) *Spawner {
	sp := &Spawner{}
	for _, opt := range opts {
		opt(sp)
	}
	if sp.registry == nil {
		sp.registry = DefaultRegistry()
	}
	if sp.ctx == nil {
		sp.ctx = context.Background()
	}
	return sp
}

// Registry returns the registry this spawner tracks threads in.
func (sp *Spawner) Registry() *Registry {
	return sp.registry
}

// Live returns the number of threads from this spawner whose bodies have
// not returned.
func (sp *Spawner) Live() int {
	return int(sp.live.Load())
}

// Spawn starts body on a new goroutine and returns its handle. The thread
// is registered before the goroutine starts and removed when the body
// returns, panics or calls runtime.Goexit.
// An empty shortName defaults to name.
func Spawn[T any](sp *Spawner, name, shortName string, body func(*Scope) (T, error)) (*Handle[T], error) {
	if body == nil {
		return nil, errors.InvalidInput(fmt.Sprintf("spawn %q: nil body", name))
	}

	if n := sp.live.Add(1); sp.maxThreads > 0 && n > sp.maxThreads {
		sp.live.Add(-1)
		return nil, errors.New(errors.ErrCodeSpawnFailed,
			fmt.Sprintf("spawn %q: %d threads already running", name, sp.maxThreads),
			errors.WithMetadata("thread", name),
		)
	}

	id := nextID()
	parent := sp.ctx
	if sp.tracer != nil {
		parent, _ = sp.tracer.StartThreadSpan(parent, id, name, shortName)
	}
	st := newState(id, name, shortName, parent)
	sp.registry.register(id, st)

	s := &slot[T]{}
	h := &Handle[T]{
		st:        st,
		take:      func() (T, error) { return s.take(st) },
		hook:      sp.joinTimedOut,
		requested: sp.shutdownRequested,
	}

	sp.logger.ThreadStart(id, name, st.status.ShortName)
	if sp.metrics != nil {
		sp.metrics.ThreadSpawned(st.status.ShortName)
	}

	go sp.run(st, func(scope *Scope, ex *exit) {
		returned := false
		defer func() {
			if returned {
				return
			}
			// Either a panic or runtime.Goexit; recover tells them apart.
			if r := recover(); r != nil {
				ex.err = panicErr(st, newPanicError(r))
			} else {
				ex.err = goexitErr(st)
			}
			ex.outcome = OutcomePanic
			var zero T
			s.store(zero, ex.err)
		}()

		v, err := body(scope)
		returned = true
		s.store(v, err)
		ex.err = err
		if err != nil {
			ex.outcome = OutcomeError
		} else {
			ex.outcome = OutcomeOK
		}
	})

	return h, nil
}

// Go spawns a body that produces no value.
func Go(sp *Spawner, name, shortName string, body func(*Scope) error) (*Handle[struct{}], error) {
	if body == nil {
		return nil, errors.InvalidInput(fmt.Sprintf("spawn %q: nil body", name))
	}
	return Spawn(sp, name, shortName, func(s *Scope) (struct{}, error) {
		return struct{}{}, body(s)
	})
}

// exit is how a body finished, filled in by the body wrapper.
type exit struct {
	outcome Outcome
	err     error
}

// run executes body and fires the completion signal, however the body's
// goroutine ends. The result is stored and Running is false before done
// is closed.
func (sp *Spawner) run(st *state, body func(*Scope, *exit)) {
	ex := &exit{outcome: OutcomePanic}
	defer sp.finish(st, ex)
	body(&Scope{st: st}, ex)
}

func (sp *Spawner) finish(st *state, ex *exit) {
	st.setStopped()
	sp.registry.unregister(st.status.ID)
	sp.live.Add(-1)

	lifetime := time.Since(st.status.StartedAt)
	sp.logger.ThreadExit(st.status.ID, st.status.Name, lifetime, string(ex.outcome))
	if sp.metrics != nil {
		sp.metrics.ThreadExited(st.status.ShortName, ex.outcome, lifetime)
	}
	if sp.tracer != nil {
		final := st.snapshot()
		sp.tracer.EndThreadSpan(st.context(), telemetry.ThreadSpanOptions{
			Outcome:           string(ex.outcome),
			Activity:          final.Activity,
			ShutdownRequested: final.ShutdownRequested,
		}, ex.err)
	}

	st.cancel()
	close(st.done)
}

func (sp *Spawner) joinTimedOut(st *state, timeout time.Duration) {
	sp.logger.JoinTimeout(st.status.ID, st.status.Name, timeout)
	if sp.metrics != nil {
		sp.metrics.JoinTimedOut(st.status.ShortName)
	}
}

func (sp *Spawner) shutdownRequested(st *state) {
	sp.logger.ShutdownRequested(st.status.ID, st.status.Name)
}
