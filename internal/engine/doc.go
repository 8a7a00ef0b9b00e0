// Package engine runs an export session: it collects every record type from
// the reader, flattens the records into upload samples and exports each type
// concurrently, feeding progress into a single aggregator.
package engine
