// Package ws implements the WebSocket relay for the liveplot server.
//
// Hub fans a single distribution queue of encoded samples out to every
// connected viewer and owns the registry of live connections.
//
// New(opts) creates a Hub.
// Hub.Run(ctx, queue) is the fan-out reader: every payload taken from queue is
// offered to each registered connection's send buffer. A viewer whose buffer
// is full is evicted rather than allowed to stall the others. When queue
// closes Run keeps connections open until ctx is cancelled, then closes them.
// Hub.ServeHTTP is the acceptor: it upgrades the request, registers the
// connection and serves it until either side closes.
//
// Each connection runs two goroutines. The reader classifies inbound frames:
// text and binary payloads go to the configured Sink, pings queue a pong and
// a close frame queues the close echo on the connection's private control
// queue. The writer is the only goroutine writing to the socket; it selects
// between the send buffer, the control queue and reader exit, so frames never
// interleave. Connection state moves Open → Closing → Closed and never back.
//
// Outbound frames are text frames holding one encoded sample:
//
//	{"stamp": 12.5, "values": [0.1, -3.2]}
//
// The upgrader accepts all origins. Apply origin restrictions at the reverse
// proxy level.
package ws
