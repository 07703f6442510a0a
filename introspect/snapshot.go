package introspect

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/threads"
)

// Default subject prefixes.
const (
	DefaultSubjectPrefix = "threads.snapshot."
	DefaultQueryPrefix   = "threads.query."
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New(errors.ErrCodeInvalidInput, "already started")
	ErrNotStarted     = errors.New(errors.ErrCodeInvalidInput, "not started")
	ErrInvalidConfig  = errors.New(errors.ErrCodeInvalidInput, "invalid configuration")
)

// Snapshot is one process's registry snapshot as sent over the wire.
type Snapshot struct {
	// Instance identifies the publishing process.
	Instance string `json:"instance"`

	// Seq increases by one per snapshot from the same publisher.
	Seq uint64 `json:"seq"`

	// Timestamp is when the registry was read.
	Timestamp time.Time `json:"timestamp"`

	Threads []threads.Status `json:"threads"`
}

// Marshal serializes a snapshot to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a snapshot from JSON.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "decode snapshot")
	}
	return &s, nil
}

// Filter returns a copy holding only threads with the given short name.
// An empty shortName keeps every thread.
func (s *Snapshot) Filter(shortName string) *Snapshot {
	out := *s
	if shortName == "" {
		return &out
	}
	out.Threads = nil
	for _, st := range s.Threads {
		if st.ShortName == shortName {
			out.Threads = append(out.Threads, st)
		}
	}
	return &out
}

// Stalled returns the running threads whose activity has not changed for
// longer than after, as of now. Idle threads count: a body that never
// reports is indistinguishable from a stuck one.
func Stalled(statuses []threads.Status, now time.Time, after time.Duration) []threads.Status {
	if after <= 0 {
		return nil
	}
	var result []threads.Status
	for _, st := range statuses {
		if st.Running && now.Sub(st.ActivityAt) > after {
			result = append(result, st)
		}
	}
	return result
}
