package threads

import (
	"fmt"
	"sort"
	"sync"
)

// EventType is the kind of change a registry watcher is told about.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
)

// Event is a registry change, carrying the thread's status at that moment.
type Event struct {
	Type   EventType
	Status Status
}

// watcherBuffer is how many events a watcher may fall behind before
// further events to it are dropped.
const watcherBuffer = 64

// Registry tracks every live thread started by the spawners that use it.
// The map is guarded by its own lock; each entry's status has a separate one.
type Registry struct {
	mu       sync.RWMutex
	threads  map[uint64]*state
	watchers []chan Event
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		threads: make(map[uint64]*state),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// register panics if id is already present. Ids come from a process-wide
// counter, so a duplicate is a programming error.
func (r *Registry) register(id uint64, st *state) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.threads[id]; exists {
		panic(fmt.Sprintf("threads: duplicate thread id %d", id))
	}
	r.threads[id] = st
	r.notifyWatchers(Event{Type: EventAdded, Status: st.snapshot()})
}

func (r *Registry) unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, exists := r.threads[id]
	if !exists {
		return
	}
	delete(r.threads, id)
	r.notifyWatchers(Event{Type: EventRemoved, Status: st.snapshot()})
}

// Snapshot returns the status of every registered thread, sorted by id.
// Each status is read atomically; there is no consistency across entries.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Status, 0, len(r.threads))
	for _, st := range r.threads {
		result = append(result, st.snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Get returns the status of one registered thread.
func (r *Registry) Get(id uint64) (Status, bool) {
	r.mu.RLock()
	st, ok := r.threads[id]
	r.mu.RUnlock()

	if !ok {
		return Status{}, false
	}
	return st.snapshot(), true
}

// Len returns the number of registered threads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}

// Filter returns the snapshot entries whose short name matches.
func (r *Registry) Filter(shortName string) []Status {
	var result []Status
	for _, st := range r.Snapshot() {
		if st.ShortName == shortName {
			result = append(result, st)
		}
	}
	return result
}

// Watch returns a channel of registry events. A watcher that falls more
// than 64 events behind misses events instead of stalling spawns.
// After Close the returned channel is already closed.
func (r *Registry) Watch() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, watcherBuffer)
	if r.closed {
		close(ch)
		return ch
	}
	r.watchers = append(r.watchers, ch)
	return ch
}

// Close closes all watcher channels. The registry keeps tracking threads.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
}

// notifyWatchers must be called with r.mu held.
func (r *Registry) notifyWatchers(event Event) {
	for _, ch := range r.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}
