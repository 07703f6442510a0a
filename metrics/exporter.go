package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/vinayprograms/threadkit/threads"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "threadkit"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	LifetimeBuckets []float64
}

// Exporter adapts threads.Metrics to Prometheus collectors.
type Exporter struct {
	spawned      *prom.CounterVec
	exited       *prom.CounterVec
	joinTimeouts *prom.CounterVec
	lifetime     *prom.HistogramVec
}

var _ threads.Metrics = (*Exporter)(nil)

// NewExporter creates and registers the lifecycle collectors. Registering
// twice against the same registry reuses the existing collectors.
func NewExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*Exporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.LifetimeBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.001, 4, 10)
	}

	spawned := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "threads_spawned_total",
		Help:      "Total number of threads started.",
	}, []string{"short_name"})
	exited := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "threads_exited_total",
		Help:      "Total number of threads finished, by outcome.",
	}, []string{"short_name", "outcome"})
	joinTimeouts := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "thread_join_timeouts_total",
		Help:      "Total number of joins that gave up waiting.",
	}, []string{"short_name"})
	lifetime := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "thread_lifetime_seconds",
		Help:      "Time from spawn to body exit in seconds.",
		Buckets:   buckets,
	}, []string{"short_name"})

	var err error
	if spawned, err = registerCollector(reg, spawned); err != nil {
		return nil, err
	}
	if exited, err = registerCollector(reg, exited); err != nil {
		return nil, err
	}
	if joinTimeouts, err = registerCollector(reg, joinTimeouts); err != nil {
		return nil, err
	}
	if lifetime, err = registerCollector(reg, lifetime); err != nil {
		return nil, err
	}

	return &Exporter{
		spawned:      spawned,
		exited:       exited,
		joinTimeouts: joinTimeouts,
		lifetime:     lifetime,
	}, nil
}

// ThreadSpawned counts a started thread.
func (e *Exporter) ThreadSpawned(shortName string) {
	if e == nil {
		return
	}
	e.spawned.WithLabelValues(normalizeLabel(shortName, "unknown")).Inc()
}

// ThreadExited counts a finished thread and records its lifetime.
func (e *Exporter) ThreadExited(shortName string, outcome threads.Outcome, lifetime time.Duration) {
	if e == nil {
		return
	}
	name := normalizeLabel(shortName, "unknown")
	e.exited.WithLabelValues(name, normalizeLabel(string(outcome), "unknown")).Inc()
	e.lifetime.WithLabelValues(name).Observe(lifetime.Seconds())
}

// JoinTimedOut counts a join that returned TIMEOUT.
func (e *Exporter) JoinTimedOut(shortName string) {
	if e == nil {
		return
	}
	e.joinTimeouts.WithLabelValues(normalizeLabel(shortName, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
