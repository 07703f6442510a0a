package introspect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/threadkit/bus"
	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
	"github.com/vinayprograms/threadkit/threads"
)

// PublisherConfig configures a snapshot publisher.
type PublisherConfig struct {
	// Bus carries snapshots and queries.
	Bus bus.MessageBus

	// Registry is the registry to snapshot.
	Registry *threads.Registry

	// Spawner runs the publisher's own threads.
	// Default: a spawner on Registry, so the publisher shows up in its snapshots.
	Spawner *threads.Spawner

	// Instance identifies this process. Default: a random UUID.
	Instance string

	// Interval between snapshots.
	// Default: 5 seconds
	Interval time.Duration

	// SubjectPrefix for periodic snapshots.
	// Default: "threads.snapshot."
	SubjectPrefix string

	// QueryPrefix for on-demand queries.
	// Default: "threads.query."
	QueryPrefix string

	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *PublisherConfig) Validate() error {
	if c.Bus == nil || c.Registry == nil {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultPublisherConfig returns configuration with sensible defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Interval:      5 * time.Second,
		SubjectPrefix: DefaultSubjectPrefix,
		QueryPrefix:   DefaultQueryPrefix,
	}
}

// Publisher sends registry snapshots over a bus.
type Publisher struct {
	cfg PublisherConfig
	seq atomic.Uint64

	mu      sync.Mutex
	loop    *threads.Handle[struct{}]
	queries *threads.Handle[struct{}]
	sub     bus.Subscription
}

// NewPublisher creates a publisher. Nothing is sent until Start or PublishNow.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultPublisherConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = def.SubjectPrefix
	}
	if cfg.QueryPrefix == "" {
		cfg.QueryPrefix = def.QueryPrefix
	}
	if cfg.Instance == "" {
		cfg.Instance = uuid.NewString()
	}
	if cfg.Spawner == nil {
		cfg.Spawner = threads.NewSpawner(threads.WithRegistry(cfg.Registry), threads.WithLogger(cfg.Logger))
	}
	return &Publisher{cfg: cfg}, nil
}

// Instance returns the id this publisher publishes under.
func (p *Publisher) Instance() string {
	return p.cfg.Instance
}

// Subject returns the subject snapshots are published on.
func (p *Publisher) Subject() string {
	return p.cfg.SubjectPrefix + p.cfg.Instance
}

// Snapshot reads the registry into a new, numbered snapshot.
func (p *Publisher) Snapshot() *Snapshot {
	return &Snapshot{
		Instance:  p.cfg.Instance,
		Seq:       p.seq.Add(1),
		Timestamp: time.Now(),
		Threads:   p.cfg.Registry.Snapshot(),
	}
}

// PublishNow publishes one snapshot immediately.
func (p *Publisher) PublishNow() error {
	data, err := p.Snapshot().Marshal()
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return p.cfg.Bus.Publish(p.Subject(), data)
}

// Start publishes a first snapshot and then one per interval until Stop or
// ctx is done. It also starts answering queries.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loop != nil {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub, err := p.cfg.Bus.Subscribe(p.cfg.QueryPrefix + p.cfg.Instance)
	if err != nil {
		return errors.Wrap(err, "subscribe queries")
	}

	queries, err := threads.Go(p.cfg.Spawner, "introspect.query."+p.cfg.Instance, "introspect.query",
		func(s *threads.Scope) error { return p.answer(ctx, s, sub) })
	if err != nil {
		sub.Unsubscribe()
		return err
	}

	loop, err := threads.Go(p.cfg.Spawner, "introspect.publish."+p.cfg.Instance, "introspect.publish",
		func(s *threads.Scope) error { return p.run(ctx, s) })
	if err != nil {
		queries.RequestShutdown()
		sub.Unsubscribe()
		return err
	}

	p.sub, p.loop, p.queries = sub, loop, queries
	return nil
}

func (p *Publisher) run(ctx context.Context, s *threads.Scope) error {
	p.publish(s)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ShutdownCh():
			return nil
		case <-ticker.C:
			p.publish(s)
		}
	}
}

func (p *Publisher) publish(s *threads.Scope) {
	defer s.ScopedActivity("publishing")()
	if err := p.PublishNow(); err != nil {
		p.cfg.Logger.Warn("snapshot_publish_failed", map[string]interface{}{
			"subject": p.Subject(),
			"error":   err.Error(),
		})
	}
}

func (p *Publisher) answer(ctx context.Context, s *threads.Scope, sub bus.Subscription) error {
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
			if msg.Reply == "" {
				continue
			}
			s.Activity("answering")
			data, err := p.Snapshot().Marshal()
			if err == nil {
				err = p.cfg.Bus.Publish(msg.Reply, data)
			}
			if err != nil {
				p.cfg.Logger.Warn("snapshot_query_failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			s.Idle()
		}
	}
}

// Stop stops publishing and answering queries, waiting up to timeout for
// both threads to exit.
func (p *Publisher) Stop(timeout time.Duration) error {
	p.mu.Lock()
	loop, queries, sub := p.loop, p.queries, p.sub
	p.loop, p.queries, p.sub = nil, nil, nil
	p.mu.Unlock()

	if loop == nil {
		return ErrNotStarted
	}

	loop.RequestShutdown()
	queries.RequestShutdown()
	sub.Unsubscribe()

	_, err1 := loop.Join(timeout)
	_, err2 := queries.Join(timeout)
	return errors.Join(err1, err2)
}

// Query asks one publisher for a fresh snapshot over the bus.
func Query(b bus.MessageBus, queryPrefix, instance string, timeout time.Duration) (*Snapshot, error) {
	if queryPrefix == "" {
		queryPrefix = DefaultQueryPrefix
	}
	reply, err := b.Request(queryPrefix+instance, nil, timeout)
	if err != nil {
		return nil, err
	}
	return Unmarshal(reply.Data)
}
