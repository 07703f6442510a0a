package introspect

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/threadkit/bus"
	"github.com/vinayprograms/threadkit/logging"
	"github.com/vinayprograms/threadkit/threads"
)

// MonitorConfig configures a snapshot monitor.
type MonitorConfig struct {
	// Bus to receive snapshots from.
	Bus bus.MessageBus

	// SubjectPrefix publishers use.
	// Default: "threads.snapshot."
	SubjectPrefix string

	// SilentAfter is how long an instance may go without a snapshot before
	// it is reported silent.
	// Default: 15 seconds
	SilentAfter time.Duration

	// StallAfter is how long a running thread may keep the same activity
	// before it is reported stalled. Zero disables stall reports.
	// Default: 1 minute
	StallAfter time.Duration

	// CheckInterval for silent instances.
	// Default: 1 second
	CheckInterval time.Duration

	// Spawner runs the monitor thread. Default: threads.NewSpawner().
	Spawner *threads.Spawner

	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *MonitorConfig) Validate() error {
	if c.Bus == nil {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultMonitorConfig returns configuration with sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SubjectPrefix: DefaultSubjectPrefix,
		SilentAfter:   15 * time.Second,
		StallAfter:    time.Minute,
		CheckInterval: time.Second,
	}
}

type stallKey struct {
	instance string
	id       uint64
}

type seen struct {
	snap     *Snapshot
	received time.Time
}

// Monitor tracks the latest snapshot of every publishing instance.
type Monitor struct {
	cfg MonitorConfig

	mu             sync.RWMutex
	latest         map[string]*seen
	silentCBs      []func(instance string)
	stalledCBs     []func(instance string, st threads.Status)
	reportedSilent map[string]bool
	reportedStall  map[stallKey]time.Time // activity timestamp already reported
	watchers       []chan *Snapshot

	handle *threads.Handle[struct{}]
	sub    bus.Subscription
}

// NewMonitor creates a monitor. Call Start to begin receiving.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultMonitorConfig()
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = def.SubjectPrefix
	}
	if cfg.SilentAfter <= 0 {
		cfg.SilentAfter = def.SilentAfter
	}
	if cfg.StallAfter < 0 {
		cfg.StallAfter = 0
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.Spawner == nil {
		cfg.Spawner = threads.NewSpawner(threads.WithLogger(cfg.Logger))
	}
	return &Monitor{
		cfg:            cfg,
		latest:         make(map[string]*seen),
		reportedSilent: make(map[string]bool),
		reportedStall:  make(map[stallKey]time.Time),
	}, nil
}

// Start subscribes to all publishers and runs the monitor thread until Stop
// or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub, err := m.cfg.Bus.Subscribe(m.cfg.SubjectPrefix + "*")
	if err != nil {
		return err
	}

	h, err := threads.Go(m.cfg.Spawner, "introspect.monitor", "introspect.monitor",
		func(s *threads.Scope) error { return m.run(ctx, s, sub) })
	if err != nil {
		sub.Unsubscribe()
		return err
	}
	m.sub, m.handle = sub, h
	return nil
}

func (m *Monitor) run(ctx context.Context, s *threads.Scope, sub bus.Subscription) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ShutdownCh():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			m.receive(msg)
		case <-ticker.C:
			m.checkSilent(time.Now())
		}
	}
}

func (m *Monitor) receive(msg *bus.Message) {
	snap, err := Unmarshal(msg.Data)
	if err != nil {
		m.cfg.Logger.Debug("snapshot_decode_failed", map[string]interface{}{
			"subject": msg.Subject,
			"error":   err.Error(),
		})
		return
	}
	if snap.Instance == "" {
		snap.Instance = strings.TrimPrefix(msg.Subject, m.cfg.SubjectPrefix)
	}
	m.Observe(snap)
}

// Observe records a snapshot as if it had arrived on the bus and reports
// any newly stalled threads in it.
func (m *Monitor) Observe(snap *Snapshot) {
	var stalled []threads.Status

	m.mu.Lock()
	if prev, ok := m.latest[snap.Instance]; ok && prev.snap.Seq > snap.Seq {
		m.mu.Unlock()
		return
	}
	m.latest[snap.Instance] = &seen{snap: snap, received: time.Now()}
	delete(m.reportedSilent, snap.Instance)

	current := make(map[stallKey]bool)
	for _, st := range Stalled(snap.Threads, snap.Timestamp, m.cfg.StallAfter) {
		key := stallKey{snap.Instance, st.ID}
		current[key] = true
		if at, ok := m.reportedStall[key]; ok && at.Equal(st.ActivityAt) {
			continue
		}
		m.reportedStall[key] = st.ActivityAt
		stalled = append(stalled, st)
	}
	for key := range m.reportedStall {
		if key.instance == snap.Instance && !current[key] {
			delete(m.reportedStall, key)
		}
	}
	for _, ch := range m.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
	callbacks := make([]func(string, threads.Status), len(m.stalledCBs))
	copy(callbacks, m.stalledCBs)
	m.mu.Unlock()

	for _, st := range stalled {
		m.cfg.Logger.Warn("thread_stalled", map[string]interface{}{
			"instance": snap.Instance,
			"id":       st.ID,
			"name":     st.Name,
			"activity": st.Activity,
			"since":    st.ActivityAt.Format(time.RFC3339),
		})
		for _, cb := range callbacks {
			cb(snap.Instance, st)
		}
	}
}

func (m *Monitor) checkSilent(now time.Time) {
	var silent []string

	m.mu.Lock()
	for instance, s := range m.latest {
		if now.Sub(s.received) > m.cfg.SilentAfter && !m.reportedSilent[instance] {
			m.reportedSilent[instance] = true
			silent = append(silent, instance)
		}
	}
	callbacks := make([]func(string), len(m.silentCBs))
	copy(callbacks, m.silentCBs)
	m.mu.Unlock()

	for _, instance := range silent {
		m.cfg.Logger.Warn("instance_silent", map[string]interface{}{
			"instance": instance,
		})
		for _, cb := range callbacks {
			cb(instance)
		}
	}
}

// OnSilent registers a callback for instances that stop publishing.
// Each silence is reported once; a new snapshot re-arms it.
func (m *Monitor) OnSilent(cb func(instance string)) {
	m.mu.Lock()
	m.silentCBs = append(m.silentCBs, cb)
	m.mu.Unlock()
}

// OnStalled registers a callback for stalled threads. A thread is reported
// again only after its activity changes and it stalls anew.
func (m *Monitor) OnStalled(cb func(instance string, st threads.Status)) {
	m.mu.Lock()
	m.stalledCBs = append(m.stalledCBs, cb)
	m.mu.Unlock()
}

// Watch returns a channel receiving every accepted snapshot. Slow readers
// miss snapshots. The channel is closed by Stop.
func (m *Monitor) Watch() <-chan *Snapshot {
	ch := make(chan *Snapshot, 16)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

// Instances returns the known instance ids, sorted.
func (m *Monitor) Instances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.latest))
	for id := range m.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Latest returns the most recent snapshot from an instance, or nil.
func (m *Monitor) Latest(instance string) *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.latest[instance]; ok {
		return s.snap
	}
	return nil
}

// IsAlive reports whether an instance has published within SilentAfter.
func (m *Monitor) IsAlive(instance string) bool {
	m.mu.RLock()
	s, ok := m.latest[instance]
	m.mu.RUnlock()
	return ok && time.Since(s.received) <= m.cfg.SilentAfter
}

// Stop unsubscribes and waits up to timeout for the monitor thread.
func (m *Monitor) Stop(timeout time.Duration) error {
	m.mu.Lock()
	h, sub := m.handle, m.sub
	m.handle, m.sub = nil, nil
	m.mu.Unlock()

	if h == nil {
		return ErrNotStarted
	}

	h.RequestShutdown()
	sub.Unsubscribe()
	_, err := h.Join(timeout)

	m.mu.Lock()
	for _, ch := range m.watchers {
		close(ch)
	}
	m.watchers = nil
	m.mu.Unlock()

	return err
}
