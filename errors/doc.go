// Package errors provides the structured error taxonomy used across
// threadkit. Every failure surfaced by a spawn, a join or a supporting
// component is an *Error carrying a code, a category and, where it applies,
// the thread it is attributed to.
//
// # Error Categories
//
//   - Transient: the condition may clear on its own (a join that timed out)
//   - Permanent: retrying will not help (result already consumed, bad input)
//   - Resource: resource exhaustion (thread limit reached)
//   - Internal: a thread body failed unexpectedly (recovered panic)
//
// # Error Codes
//
//   - TIMEOUT: a bounded wait elapsed; the thread keeps running
//   - PANIC: the thread body panicked; the cause carries the payload
//   - ALREADY_JOINED: the result was already taken by an earlier join
//   - SPAWN_FAILED: the thread could not be started
//   - INVALID_INPUT, CANCELED, NOT_FOUND, UNAVAILABLE, INTERNAL
//
// # Usage
//
//	v, err := handle.Join(time.Second)
//	switch {
//	case errors.Is(err, errors.ErrCodeTimeout):
//	    // not yet; try again later
//	case errors.Is(err, errors.ErrCodePanic):
//	    // body crashed
//	}
//
// # JSON Serialization
//
// Errors serialize to JSON so they can travel with introspection snapshots:
//
//	data, err := json.Marshal(threadErr)
package errors
