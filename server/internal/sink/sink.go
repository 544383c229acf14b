// Package sink provides destinations for the text frames viewers send back to
// the relay. The relay does not interpret them.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/obsidianstack/liveplot/server/internal/ws"
)

var (
	_ ws.Sink = Discard{}
	_ ws.Sink = Log{}
	_ ws.Sink = (*Writer)(nil)
)

// Discard drops every payload.
type Discard struct{}

func (Discard) Consume(string, []byte) {}

// Log records every payload at info level.
type Log struct{}

func (Log) Consume(connID string, payload []byte) {
	slog.Info("sink: viewer message", "conn_id", connID, "bytes", len(payload), "payload", string(payload))
}

// Writer writes each payload as one line to an io.Writer. Payloads from
// different connections never interleave within a line.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (s *Writer) Consume(connID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write(payload)  //nolint:errcheck
	s.w.WriteByte('\n') //nolint:errcheck
	if err := s.w.Flush(); err != nil {
		slog.Warn("sink: write failed", "conn_id", connID, "err", err)
	}
}

// New returns the sink named by kind: discard | log | stdout. out is used for
// "stdout".
func New(kind string, out io.Writer) (ws.Sink, error) {
	switch kind {
	case "", "discard":
		return Discard{}, nil
	case "log":
		return Log{}, nil
	case "stdout":
		return NewWriter(out), nil
	default:
		return nil, fmt.Errorf("sink: unknown output %q", kind)
	}
}
