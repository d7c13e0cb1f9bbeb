// Package refresh runs the background loop that keeps the snapshot store
// current.
//
// A Loop moves Idle → Running on Start and Running → Stopping → Idle on
// Stop. Each iteration fetches a complete snapshot, publishes it and sleeps
// for the configured pause. Cancelling the loop context interrupts both the
// sleep and the in-flight HTTP requests. Stop waits for termination in three
// attempts and reports whether the goroutine actually exited.
//
// Observers (metrics, status tracker) are called after every cycle with its
// duration, sensor count and error.
package refresh
