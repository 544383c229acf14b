// Package ingest turns an external record source into encoded samples on the
// bounded distribution queue read by the WebSocket hub.
//
// Source yields one record (a slice of string fields) per call and io.EOF at
// the end. CSVSource adapts an io.Reader of comma-separated lines, trimming
// whitespace around fields and accepting a variable field count.
//
// Ingester.Run stamps every parsed record with the seconds elapsed since the
// Ingester was created, encodes it and enqueues it. A record that does not
// parse is logged (throttled), counted and skipped; ingest never stops on bad
// input. When the source ends the queue is closed; buffered samples still
// drain to the hub.
//
// When the queue is full the configured Policy decides:
//
//	Block          wait for room; a slow hub stalls the producer
//	DropOldest     never wait; evict the oldest queued sample
//	BlockThenDrop  wait up to BlockTimeout, then evict the oldest
//
// Only one goroutine may write: either Run, or a caller driving Publish
// directly followed by Close.
package ingest
