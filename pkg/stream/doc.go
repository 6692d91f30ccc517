// Package stream multiplexes a turn's incremental output into ordered
// response chunks. Each tool call gets its own event channel; a single
// multiplexer serializes writes to the transport. Chunks for one call
// are strictly ordered through its channel, chunks across calls
// interleave freely, and a per-call failure terminates only that call's
// sub-stream.
package stream
