package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/liveplot/server/internal/metrics"
)

const (
	// defaultWriteTimeout is the deadline for a single write to a viewer.
	defaultWriteTimeout = 10 * time.Second

	// defaultSendBuffer is the per-viewer outgoing sample buffer depth.
	defaultSendBuffer = 64

	defaultReadLimit = 64 * 1024

	// rejectWait bounds the close frame sent to a refused connection.
	rejectWait = time.Second
)

var (
	errHubStopped = errors.New("relay shutting down")
	errHubFull    = errors.New("too many viewers")
)

// Sink receives the payload of every inbound text or binary frame. It is
// called from the connection's read goroutine and should not block for long.
// Package sink provides the implementations.
type Sink interface {
	Consume(connID string, payload []byte)
}

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	ReadLimit    int64

	// MaxClients caps concurrent viewers. Zero means unlimited.
	MaxClients int

	// Sink receives inbound payloads. Nil drops them.
	Sink    Sink
	Metrics *metrics.Relay
}

// Hub manages viewer connections and fans encoded samples out to all of them.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	stopped bool

	drained chan struct{}
}

// New creates a Hub.
func New(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Allow all origins; restrict at the reverse proxy if needed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		drained: make(chan struct{}),
	}
}

// Run is the fan-out reader. It offers every payload from queue to each
// registered viewer in the order it was dequeued. Once queue is closed and
// empty, Drained is closed and Run waits for ctx. Run blocks until ctx is
// cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context, queue <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case msg, ok := <-queue:
			if !ok {
				slog.Info("ws: distribution queue closed and drained")
				close(h.drained)
				queue = nil
				continue
			}
			h.opts.Metrics.QueueDepth.Set(float64(len(queue)))
			h.broadcast(msg)
		}
	}
}

// Drained is closed once the distribution queue has been closed and every
// queued payload was offered to the viewers.
func (h *Hub) Drained() <-chan struct{} {
	return h.drained
}

// ServeHTTP upgrades the request to WebSocket and serves the viewer until the
// connection closes. A failed handshake only affects this request.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.opts.Metrics.HandshakeFailures.Inc()
		slog.Debug("ws: handshake failed", "peer", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn, h.opts)
	if err := h.register(c); err != nil {
		h.reject(c, err)
		return
	}

	slog.Info("ws: client connected", "conn_id", c.id, "peer", c.peer, "clients", h.Count())
	c.serve(func() { h.unregister(c) })
	slog.Info("ws: client disconnected", "conn_id", c.id, "peer", c.peer, "clients", h.Count())
}

// Count returns the number of currently connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return errHubStopped
	}
	if h.opts.MaxClients > 0 && len(h.clients) >= h.opts.MaxClients {
		return fmt.Errorf("%w: limit %d", errHubFull, h.opts.MaxClients)
	}
	h.clients[c] = struct{}{}
	h.opts.Metrics.ConnectionsTotal.Inc()
	h.opts.Metrics.ActiveConnections.Set(float64(len(h.clients)))
	return nil
}

// unregister removes c and closes its send buffer. Safe to call repeatedly.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.opts.Metrics.ActiveConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) reject(c *client, reason error) {
	h.opts.Metrics.RejectedClients.Inc()
	slog.Warn("ws: rejecting client", "peer", c.peer, "reason", reason)
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason.Error())
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(rejectWait))
	c.conn.Close()
}

// broadcast offers msg to every viewer without blocking. Sends happen under
// the read lock so unregister cannot close a buffer mid-send.
func (h *Hub) broadcast(msg []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: evicting slow client", "conn_id", c.id, "peer", c.peer, "buffer", cap(c.send))
		h.opts.Metrics.SlowClientsEvicted.Inc()
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.opts.Metrics.ActiveConnections.Set(0)
}
