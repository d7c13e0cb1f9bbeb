// Package prtg talks to the PRTG table API and assembles snapshots.
//
// Client (client.go) issues GET requests for sensor pages and per-sensor
// channel lists, applying the configured credentials, timeout and request
// rate limit. FetchAll (paginator.go) walks the sensor table in pages until a
// short page or the soft limit ends it; batches larger than a page are split
// into concurrent sub-requests. AttachChannels (channels.go) fetches channels
// in chunks of bounded parallelism and isolates per-sensor failures.
// Fetcher (fetcher.go) ties these together into one refresh cycle that
// returns a complete Snapshot.
//
// Errors are classified with the ErrNetwork, ErrParse and ErrData sentinels;
// use errors.Is to test for them.
package prtg
