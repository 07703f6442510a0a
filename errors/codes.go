package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates the condition may clear on its own.
	// Examples: a join that timed out while the thread is still running.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid arguments, a result that was already consumed.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion.
	// Examples: the spawner reached its thread limit.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected failures inside a thread body.
	// Examples: a recovered panic.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the thread lifecycle.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Bounded wait elapsed
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Backend temporarily unavailable

	// Permanent errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"      // Thread or resource does not exist
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"  // Malformed or invalid input
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS" // Duplicate registration
	ErrCodeAlreadyJoined ErrorCode = "ALREADY_JOINED" // Result already taken by a prior join
	ErrCodeCanceled      ErrorCode = "CANCELED"       // Wait was canceled

	// Resource errors
	ErrCodeSpawnFailed ErrorCode = "SPAWN_FAILED" // Thread could not be started
	ErrCodeCapacity    ErrorCode = "CAPACITY"     // System at capacity

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Thread body panicked
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeInvalidInput, ErrCodeAlreadyExists,
		ErrCodeAlreadyJoined, ErrCodeCanceled:
		return CategoryPermanent

	case ErrCodeSpawnFailed, ErrCodeCapacity:
		return CategoryResource

	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:       "thread did not stop within the allotted time",
	ErrCodeUnavailable:   "service temporarily unavailable",
	ErrCodeNotFound:      "thread not found",
	ErrCodeInvalidInput:  "invalid input provided",
	ErrCodeAlreadyExists: "thread already registered",
	ErrCodeAlreadyJoined: "thread already joined",
	ErrCodeCanceled:      "wait canceled",
	ErrCodeSpawnFailed:   "unable to spawn new thread",
	ErrCodeCapacity:      "system at capacity",
	ErrCodeInternal:      "internal error",
	ErrCodePanic:         "thread panicked",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
