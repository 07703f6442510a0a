// Package introspect exports thread registry snapshots to operators and
// other processes.
//
// A Publisher sends the local registry snapshot on a message bus at a fixed
// interval and answers on-demand queries. A Monitor, usually in another
// process, subscribes to every publisher, keeps the latest snapshot per
// instance and reports instances that go silent and threads whose activity
// has not changed for too long.
//
//	pub, _ := introspect.NewPublisher(introspect.PublisherConfig{Bus: b, Registry: reg})
//	pub.Start(ctx)
//	defer pub.Stop(time.Second)
//
// Handler serves the same snapshot over HTTP, and its /threads/stream route
// pushes snapshots to a websocket client until it disconnects.
//
// # Subjects
//
//	threads.snapshot.<instance>   periodic snapshots
//	threads.query.<instance>      request/reply, replies with one snapshot
package introspect
