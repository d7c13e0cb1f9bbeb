// Package observability exports metrics about the exporter itself: refresh
// cycle outcomes and durations and the size of the last snapshot.
package observability
