// Package export uploads health records to the remote endpoint described by a
// scanned configuration.
//
// Records are sent in chunks (50 by default) as JSON arrays to
// {post_here}/{record type} with bearer authorization. A 403 triggers one token
// refresh and a single retry of the chunk. Every other failure is logged and the
// exporter moves on to the next chunk; only context cancellation is returned to
// the caller.
package export
