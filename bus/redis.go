package bus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vinayprograms/threadkit/errors"
)

// RedisBus implements MessageBus over Redis pub/sub.
//
// Redis channels carry no reply subject, so every payload travels in a
// small JSON envelope. Wildcard subscriptions use PSUBSCRIBE and are then
// filtered with MatchSubject, since a Redis "*" also matches dots.
type RedisBus struct {
	client *redis.Client
	config RedisConfig
	closed atomic.Bool

	mu   sync.Mutex
	subs map[*redisSubscription]struct{}
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Config // Embed base config

	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string

	// Password for AUTH. Empty means no auth.
	Password string

	// DB selects the logical database.
	DB int

	// DialTimeout for the initial connection check.
	DialTimeout time.Duration
}

// DefaultRedisConfig returns configuration with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Config:      DefaultConfig(),
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
	}
}

type redisEnvelope struct {
	Reply string `json:"reply,omitempty"`
	Data  []byte `json:"data"`
}

// NewRedisBus connects to Redis and verifies the connection with PING.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultRedisConfig().Addr
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultRedisConfig().DialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "redis connect "+cfg.Addr)
	}

	return NewRedisBusFromClient(client, cfg), nil
}

// NewRedisBusFromClient creates a RedisBus from an existing client.
func NewRedisBusFromClient(client *redis.Client, cfg RedisConfig) *RedisBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &RedisBus{
		client: client,
		config: cfg,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

// Publish sends a message to a subject.
func (b *RedisBus) Publish(subject string, data []byte) error {
	_, err := b.publish(subject, redisEnvelope{Data: data})
	return err
}

func (b *RedisBus) publish(subject string, env redisEnvelope) (int64, error) {
	if err := ValidateSubject(subject); err != nil {
		return 0, err
	}
	if hasWildcard(subject) {
		return 0, ErrInvalidSubject
	}
	if b.closed.Load() {
		return 0, ErrClosed
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return 0, errors.Wrap(err, "redis envelope")
	}
	n, err := b.client.Publish(context.Background(), subject, payload).Result()
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "redis publish")
	}
	return n, nil
}

// Subscribe creates a subscription to a subject or wildcard pattern. It
// returns once Redis has confirmed the subscription.
func (b *RedisBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	ctx := context.Background()
	var ps *redis.PubSub
	if hasWildcard(subject) {
		ps = b.client.PSubscribe(ctx, strings.ReplaceAll(subject, ">", "*"))
	} else {
		ps = b.client.Subscribe(ctx, subject)
	}
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "redis subscribe")
	}

	s := &redisSubscription{
		pattern: subject,
		ps:      ps,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.forward()
	return s, nil
}

// Request publishes data with a unique reply subject and waits for the
// first reply.
func (b *RedisBus) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	inbox := "_INBOX." + uuid.NewString()
	sub, err := b.Subscribe(inbox)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	n, err := b.publish(subject, redisEnvelope{Reply: inbox, Data: data})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoResponders
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-sub.Messages():
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Close closes the client. Subscriptions stop receiving.
func (b *RedisBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	subs := make([]*redisSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return b.client.Close()
}

// Client returns the underlying Redis client for advanced use.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

type redisSubscription struct {
	pattern string
	ps      *redis.PubSub
	ch      chan *Message
	bus     *RedisBus
	once    sync.Once
}

// forward owns ch and closes it when the pubsub channel closes.
func (s *redisSubscription) forward() {
	defer close(s.ch)
	for m := range s.ps.Channel() {
		if !MatchSubject(s.pattern, m.Channel) {
			continue
		}
		var env redisEnvelope
		if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
			continue
		}
		select {
		case s.ch <- &Message{Subject: m.Channel, Data: env.Data, Reply: env.Reply}:
		default:
			// Buffer full
		}
	}
}

// Messages returns the message channel.
func (s *redisSubscription) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *redisSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		err = s.ps.Close()
	})
	return err
}
