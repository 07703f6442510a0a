// Package threads layers cooperative lifecycle management over goroutines.
//
// Every thread started through a Spawner gets three things a bare goroutine
// does not have:
//
//   - a cooperative shutdown flag the body can poll or wait on
//   - a Handle whose joins are bounded by a timeout or a context
//   - an entry in a Registry that monitoring code can snapshot at any time
//
// # Bodies
//
// A body receives a *Scope. It reports what it is doing with Activity and
// checks for shutdown at natural checkpoints:
//
//	h, err := threads.Spawn(sp, "ingest-0", "ingest", func(s *threads.Scope) (int, error) {
//	    for !s.ShouldShutdown() {
//	        s.Activity("waiting")
//	        s.WaitForShutdown(50 * time.Millisecond)
//	        s.Activity("processing")
//	    }
//	    return 42, nil
//	})
//
// Shutdown is advisory. There is no way to stop a goroutine that never looks
// at its scope; such a body runs to completion regardless of requests.
//
// # Joining
//
// Join waits at most the given timeout. A TIMEOUT error means "not yet": the
// thread keeps running, stays registered, and Join may be called again. The
// result is handed out once; a second successful Join returns ALREADY_JOINED.
// A panic in the body is recovered in the thread and surfaces from Join as a
// PANIC error whose cause is a *PanicError.
//
//	h.RequestShutdown()
//	v, err := h.Join(time.Second)
//
// # Introspection
//
// The Registry holds an entry for every thread from spawn until its body
// returns. Snapshot copies each thread's Status under that thread's own lock,
// so a busy body never blocks registry inserts or removals of other threads.
package threads
