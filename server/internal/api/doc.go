// Package api implements the read-only HTTP status API of the liveplot
// server, served on the asset listener next to the viewer bundle.
//
// New(relay, ingest, socketAddr) returns an http.Handler that serves:
//
//	GET /api/v1/health  {"state": "streaming"|"ended"}
//	GET /api/v1/status  viewer count, ingest counters, socket address, uptime
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//
// The embedded viewer reads socket_addr from /api/v1/status to find the relay.
// No external HTTP framework is used.
package api
