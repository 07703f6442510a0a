package metrics

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/vinayprograms/threadkit/threads"
)

// PollerOptions configures a SnapshotPoller.
type PollerOptions struct {
	Namespace string

	// Interval between registry reads. Default: 5 seconds.
	Interval time.Duration

	// StallAfter feeds the stalled gauge. Zero disables it.
	StallAfter time.Duration

	// Spawner runs the poll loop. Default: a spawner on the polled registry.
	Spawner *threads.Spawner
}

// SnapshotPoller periodically exports registry snapshots into gauges.
type SnapshotPoller struct {
	registry *threads.Registry
	opts     PollerOptions

	live              *prom.GaugeVec
	running           *prom.GaugeVec
	shutdownRequested *prom.GaugeVec
	stalled           *prom.GaugeVec

	mu     sync.Mutex
	handle *threads.Handle[struct{}]
}

// NewSnapshotPoller creates a poller for registry and registers its collectors.
func NewSnapshotPoller(registry *threads.Registry, reg prom.Registerer, opts PollerOptions) (*SnapshotPoller, error) {
	if registry == nil {
		registry = threads.DefaultRegistry()
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Spawner == nil {
		opts.Spawner = threads.NewSpawner(threads.WithRegistry(registry))
	}

	live := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: opts.Namespace,
		Name:      "threads_live",
		Help:      "Registered threads per short name.",
	}, []string{"short_name"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: opts.Namespace,
		Name:      "threads_running",
		Help:      "Threads whose body is still executing, per short name.",
	}, []string{"short_name"})
	shutdownRequested := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: opts.Namespace,
		Name:      "threads_shutdown_requested",
		Help:      "Live threads asked to shut down, per short name.",
	}, []string{"short_name"})
	stalled := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: opts.Namespace,
		Name:      "threads_stalled",
		Help:      "Running threads with an unchanged activity, per short name.",
	}, []string{"short_name"})

	var err error
	if live, err = registerCollector(reg, live); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}
	if shutdownRequested, err = registerCollector(reg, shutdownRequested); err != nil {
		return nil, err
	}
	if stalled, err = registerCollector(reg, stalled); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		registry:          registry,
		opts:              opts,
		live:              live,
		running:           running,
		shutdownRequested: shutdownRequested,
		stalled:           stalled,
	}, nil
}

// Start begins periodic polling on its own thread; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h, err := threads.Go(p.opts.Spawner, "metrics.poller", "metrics.poller", func(s *threads.Scope) error {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()

		p.CollectOnce()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-s.ShutdownCh():
				return nil
			case <-ticker.C:
				p.CollectOnce()
			}
		}
	})
	if err != nil {
		return err
	}
	p.handle = h
	return nil
}

// Stop stops polling and waits for the poll thread; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.mu.Lock()
	h := p.handle
	p.handle = nil
	p.mu.Unlock()

	if h != nil {
		h.RequestShutdown()
		h.JoinForever()
	}
}

type counts struct {
	live, running, shutdown, stalled int
}

// CollectOnce reads the registry and replaces every gauge value. Short names
// with no live threads are removed.
func (p *SnapshotPoller) CollectOnce() {
	snap := p.registry.Snapshot()
	now := time.Now()

	byName := make(map[string]*counts)
	get := func(name string) *counts {
		name = normalizeLabel(name, "unknown")
		c, ok := byName[name]
		if !ok {
			c = &counts{}
			byName[name] = c
		}
		return c
	}

	for _, st := range snap {
		c := get(st.ShortName)
		c.live++
		if st.Running {
			c.running++
		}
		if st.ShutdownRequested {
			c.shutdown++
		}
		if p.opts.StallAfter > 0 && st.Running && now.Sub(st.ActivityAt) > p.opts.StallAfter {
			c.stalled++
		}
	}

	p.live.Reset()
	p.running.Reset()
	p.shutdownRequested.Reset()
	p.stalled.Reset()
	for name, c := range byName {
		p.live.WithLabelValues(name).Set(float64(c.live))
		p.running.WithLabelValues(name).Set(float64(c.running))
		p.shutdownRequested.WithLabelValues(name).Set(float64(c.shutdown))
		p.stalled.WithLabelValues(name).Set(float64(c.stalled))
	}
}
