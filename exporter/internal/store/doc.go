// Package store holds the most recently published PRTG snapshot.
//
// Publish swaps the visible snapshot with a single atomic pointer store, so
// readers always see one complete generation and never wait on the refresh
// loop. Read optionally blocks until the first snapshot has been published.
package store
