// Package shutdown coordinates graceful shutdown of components and threads.
//
// Handlers are grouped into phases. Lower phases run first; handlers in one
// phase run concurrently, each on its own thread so a hung handler shows up
// in the thread registry as "shutdown.<name>". The whole sequence shares
// one context whose deadline is the shutdown timeout.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.HandleSignals() // SIGTERM, SIGINT
//
//	coord.RegisterThreads(10, workers...)        // request shutdown, wait for exit
//	coord.RegisterFuncWithPhase("http", srv.Shutdown, 20)
//	coord.RegisterFuncWithPhase("bus", closeBus, 30)
//
//	<-coord.Done()
//
// RegisterThreads accepts any *threads.Handle. Its handler requests
// shutdown and waits for the body to return; the body's result stays in the
// handle for its owner to join. A thread that outlives the deadline is
// reported as a TIMEOUT error carrying the thread's id and name.
//
// # Phases
//
// Typical assignments:
//
//   - 10: worker threads (stop taking work)
//   - 20: servers and publishers
//   - 30: connections (buses, databases)
package shutdown
