// Package app wires the liveplot server together: it binds the socket and
// asset listeners, builds ingest, the hub, the status API and metrics, and
// supervises them with an errgroup.
//
// Bind failures are returned from New so the binary can exit with a clear
// diagnostic before anything starts. Everything after that is scoped: a bad
// record is skipped, a bad viewer is dropped, and ingest ending leaves the
// viewers connected unless input.exit_on_eof is set.
package app
