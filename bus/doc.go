// Package bus provides message bus clients used to ship thread snapshots
// between processes.
//
// # Overview
//
// MessageBus offers pub/sub and request/reply over a channel-based API.
// Subjects are dot-separated tokens. Subscriptions may use wildcards:
// "*" matches exactly one token and a trailing ">" matches one or more.
// Publishing to a wildcard subject is rejected with ErrInvalidSubject.
//
// # Available Implementations
//
//   - NATSBus: NATS, where the wildcard rules come from
//   - RedisBus: Redis pub/sub, payloads wrapped in a small JSON envelope
//   - MemoryBus: in-process, for tests and single-binary setups
//
// All three pass the same contract test suite.
//
// # Patterns
//
// Pub/Sub:
//
//	sub, _ := b.Subscribe("threads.snapshot.*")
//	for msg := range sub.Messages() {
//	    // msg.Subject is the concrete subject
//	}
//
// Request/Reply:
//
//	// Responder
//	sub, _ := b.Subscribe("threads.query.node-1")
//	for msg := range sub.Messages() {
//	    b.Publish(msg.Reply, snapshot)
//	}
//
//	// Requester
//	reply, err := b.Request("threads.query.node-1", nil, time.Second)
//
// Request returns ErrNoResponders when nothing is subscribed and ErrTimeout
// when no reply arrives in time. Slow subscribers lose messages once their
// buffer (Config.BufferSize) is full; publishers never block on them.
package bus
