package shutdown

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
	"github.com/vinayprograms/threadkit/threads"
)

var (
	// ErrAlreadyShutdown is returned by a Shutdown call that lost the race
	// to an earlier one still in progress.
	ErrAlreadyShutdown = errors.New(errors.ErrCodeAlreadyExists, "shutdown already in progress")

	// ErrTimeout means the deadline passed before every phase had started.
	ErrTimeout = errors.New(errors.ErrCodeTimeout, "shutdown deadline passed")

	// ErrHandlerFailed means at least one handler returned an error or a
	// thread outlived the deadline. Result() has the per-handler detail.
	ErrHandlerFailed = errors.New(errors.ErrCodeInternal, "shutdown handlers failed")

	ErrInvalidConfig = errors.New(errors.ErrCodeInvalidInput, "invalid shutdown config")
)

// Handler stops one thing. It runs on its own thread, named
// "shutdown.<registered name>", and must return once ctx is done.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a plain function, such as http.Server.Shutdown.
type HandlerFunc func(ctx context.Context) error

// OnShutdown calls f.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult is how one handler went.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error

	// Thread is the id of the thread the handler ran on, or zero when the
	// spawner refused it and it ran on the coordinator's goroutine.
	Thread uint64
}

// Result covers a whole shutdown, in phase order.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

// Failed reports whether any handler failed or the deadline passed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers lists the names of handlers that returned an error.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures a Coordinator. The zero value works; NewCoordinator
// fills DefaultTimeout, DefaultPhase and Spawner.
type Config struct {
	// DefaultTimeout bounds a shutdown started by a signal or by
	// ShutdownWithTimeout(0). Default 30s.
	DefaultTimeout time.Duration

	// DefaultPhase is the phase of handlers registered without one.
	// Default 100, after the usual worker/server/connection phases.
	DefaultPhase int

	// ContinueOnError runs later phases even when a handler in an earlier
	// one failed, so connections still close after a stuck worker.
	ContinueOnError bool

	// OnProgress is called from each handler's thread as it finishes.
	OnProgress func(result HandlerResult)

	// Logger gets a shutdown_step line per handler and one per signal.
	Logger *logging.Logger

	// Spawner runs handlers. Give it the registry your introspection
	// reads so a hung handler is visible there.
	Spawner *threads.Spawner
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("default timeout %s is negative", c.DefaultTimeout))
	}
	return nil
}

// DefaultConfig returns the configuration config.Shutdown maps onto.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  30 * time.Second,
		DefaultPhase:    100,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
