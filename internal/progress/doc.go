// Package progress aggregates per-record-type export progress.
//
// Export tasks never share a counter map. Each task sends Updates to an
// Aggregator, whose single goroutine owns the totals and publishes immutable
// Snapshots to readers and listeners. A Beacon listener can relay the overall
// percentage to a remote endpoint.
package progress
