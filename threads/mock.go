package threads

import "context"

// MockScope is a Scope with no goroutine behind it, for testing bodies in
// isolation. Call the body directly with Scope() and drive shutdown with
// SetShutdown.
type MockScope struct {
	st *state
}

// NewMockScope creates a mock scope for a thread called name.
// It is not registered anywhere.
func NewMockScope(name string) *MockScope {
	return &MockScope{st: newState(nextID(), name, name, context.Background())}
}

// Scope returns the scope to hand to the body under test.
func (m *MockScope) Scope() *Scope {
	return &Scope{st: m.st}
}

// SetShutdown sets or clears the shutdown flag. Setting it wakes any
// WaitForShutdown in progress and cancels the scope context.
func (m *MockScope) SetShutdown(v bool) {
	if v {
		m.st.requestShutdown()
		return
	}
	m.st.resetShutdown()
}

// Activity returns the activity most recently reported by the body.
func (m *MockScope) Activity() string {
	return m.st.snapshot().Activity
}

// Status returns the full status as a registry snapshot would show it.
func (m *MockScope) Status() Status {
	return m.st.snapshot()
}
