package ws

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/obsidianstack/liveplot/server/internal/metrics"
)

// State is the lifecycle stage of one viewer connection.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// client owns one viewer connection end to end.
type client struct {
	id   string
	peer string
	conn *websocket.Conn

	// send carries encoded samples from the fan-out. Closed by the hub on
	// deregistration.
	send chan []byte

	// ctrl carries pong and close replies from the reader to the writer.
	ctrl *controlQueue

	// done is closed when the read side exits.
	done chan struct{}

	state atomic.Int32

	writeTimeout time.Duration
	readLimit    int64
	sink         Sink
	metrics      *metrics.Relay
}

func newClient(conn *websocket.Conn, opts Options) *client {
	return &client{
		id:           uuid.NewString(),
		peer:         conn.RemoteAddr().String(),
		conn:         conn,
		send:         make(chan []byte, opts.SendBuffer),
		ctrl:         newControlQueue(),
		done:         make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		readLimit:    opts.ReadLimit,
		sink:         opts.Sink,
		metrics:      opts.Metrics,
	}
}

// State reports the current lifecycle stage.
func (c *client) State() State {
	return State(c.state.Load())
}

// beginClosing moves Open → Closing. It reports whether this call made the
// transition.
func (c *client) beginClosing() bool {
	return c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

// serve runs the connection until either side ends it. release deregisters
// the client from the fan-out; it and every other cleanup step run on all
// exit paths.
func (c *client) serve(release func()) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	defer func() {
		c.beginClosing()
		release()
		<-writerDone
		c.conn.Close()
		c.state.Store(int32(StateClosed))
	}()

	c.readLoop()
}

// readLoop reads inbound frames until the peer closes or the socket fails.
// Control frames are answered through ctrl, never written from here.
func (c *client) readLoop() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws: reader panic recovered", "conn_id", c.id, "panic", r)
		}
	}()

	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetPingHandler(func(appData string) error {
		c.metrics.FramesReceived.WithLabelValues(metrics.KindPing).Inc()
		c.ctrl.push(controlFrame{kind: websocket.PongMessage, data: []byte(appData)})
		return nil
	})
	c.conn.SetCloseHandler(func(code int, _ string) error {
		c.metrics.FramesReceived.WithLabelValues(metrics.KindClose).Inc()
		c.beginClosing()
		c.ctrl.push(controlFrame{kind: websocket.CloseMessage, data: websocket.FormatCloseMessage(code, "")})
		return nil
	})

	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.beginClosing()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				slog.Debug("ws: peer sent close", "conn_id", c.id, "code", ce.Code)
			} else {
				slog.Debug("ws: read ended", "conn_id", c.id, "err", err)
			}
			return
		}

		switch kind {
		case websocket.TextMessage:
			c.metrics.FramesReceived.WithLabelValues(metrics.KindText).Inc()
		case websocket.BinaryMessage:
			c.metrics.FramesReceived.WithLabelValues(metrics.KindBinary).Inc()
		}
		if c.sink != nil {
			c.sink.Consume(c.id, payload)
		}
	}
}

// writeLoop is the single writer for the socket.
func (c *client) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws: writer panic recovered", "conn_id", c.id, "panic", r)
		}
		c.beginClosing()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Deregistered while the peer is still there: hub shutdown
				// or slow-client eviction. Tell the peer we are leaving.
				_ = c.flushControl()
				if c.beginClosing() {
					_ = c.writeFrame(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				}
				return
			}
			if err := c.writeFrame(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-c.ctrl.ready:
			if err := c.flushControl(); err != nil {
				return
			}

		case <-c.done:
			// Reader is gone; send any pending replies (the close echo) and stop.
			_ = c.flushControl()
			return
		}
	}
}

func (c *client) flushControl() error {
	for _, f := range c.ctrl.drain() {
		if err := c.writeFrame(f.kind, f.data); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) writeFrame(kind int, data []byte) error {
	deadline := time.Now().Add(c.writeTimeout)

	var err error
	switch kind {
	case websocket.PongMessage, websocket.PingMessage, websocket.CloseMessage:
		err = c.conn.WriteControl(kind, data, deadline)
	default:
		_ = c.conn.SetWriteDeadline(deadline)
		err = c.conn.WriteMessage(kind, data)
	}
	if err != nil {
		if c.beginClosing() {
			slog.Debug("ws: write failed", "conn_id", c.id, "peer", c.peer, "err", err)
		}
		return err
	}

	c.metrics.FramesSent.WithLabelValues(sentKind(kind)).Inc()
	return nil
}

func sentKind(kind int) string {
	switch kind {
	case websocket.PongMessage:
		return metrics.KindPong
	case websocket.CloseMessage:
		return metrics.KindClose
	case websocket.PingMessage:
		return metrics.KindPing
	default:
		return metrics.KindSample
	}
}
