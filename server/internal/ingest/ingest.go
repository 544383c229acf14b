package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/obsidianstack/liveplot/pkg/types"
	"github.com/obsidianstack/liveplot/server/internal/metrics"
)

// Policy selects what happens when the distribution queue is full.
type Policy int

const (
	BlockThenDrop Policy = iota
	Block
	DropOldest
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("ingest: queue closed")

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "block":
		return Block, nil
	case "drop_oldest":
		return DropOldest, nil
	case "block_then_drop", "":
		return BlockThenDrop, nil
	default:
		return 0, fmt.Errorf("ingest: unknown policy %q", name)
	}
}

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop_oldest"
	default:
		return "block_then_drop"
	}
}

// Options configures an Ingester.
type Options struct {
	Capacity     int
	Policy       Policy
	BlockTimeout time.Duration

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Metrics defaults to an unregistered set.
	Metrics *metrics.Relay
}

// Stats is a point-in-time copy of the ingest counters.
type Stats struct {
	Samples   uint64 `json:"samples"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
}

// Ingester owns the write side of the distribution queue.
type Ingester struct {
	queue        chan []byte
	policy       Policy
	blockTimeout time.Duration
	clock        clockwork.Clock
	start        time.Time
	metrics      *metrics.Relay

	// mu is held shared by publishers and exclusively by Close, so the
	// queue is never closed under a pending send.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}

	samples   atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64

	skipLog rate.Sometimes
}

// New creates an Ingester. Timestamps are measured from this call.
func New(opts Options) *Ingester {
	if opts.Capacity <= 0 {
		opts.Capacity = 5
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	return &Ingester{
		queue:        make(chan []byte, opts.Capacity),
		policy:       opts.Policy,
		blockTimeout: opts.BlockTimeout,
		clock:        opts.Clock,
		start:        opts.Clock.Now(),
		metrics:      opts.Metrics,
		done:         make(chan struct{}),
		skipLog:      rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Queue returns the read side of the distribution queue. It is closed once
// the source ends.
func (in *Ingester) Queue() <-chan []byte {
	return in.queue
}

// Done is closed when the ingester stops accepting samples.
func (in *Ingester) Done() <-chan struct{} {
	return in.done
}

// Stats returns the current counters.
func (in *Ingester) Stats() Stats {
	return Stats{
		Samples:   in.samples.Load(),
		Malformed: in.malformed.Load(),
		Dropped:   in.dropped.Load(),
	}
}

// Elapsed returns the seconds since the ingester was created.
func (in *Ingester) Elapsed() float64 {
	return in.clock.Since(in.start).Seconds()
}

// Run reads src until it ends, publishing every parsable record. It closes the
// queue before returning. Cancelling ctx stops Run without error; a read error
// other than a malformed record is returned.
func (in *Ingester) Run(ctx context.Context, src Source) error {
	defer in.Close()

	slog.Info("ingest: started", "capacity", cap(in.queue), "policy", in.policy.String())

	for {
		if ctx.Err() != nil {
			return nil
		}

		fields, err := src.Next()
		switch {
		case errors.Is(err, io.EOF):
			slog.Info("ingest: source ended", "samples", in.samples.Load(), "malformed", in.malformed.Load())
			return nil
		case errors.Is(err, types.ErrMalformed):
			in.skip(err)
			continue
		case err != nil:
			return fmt.Errorf("ingest: read source: %w", err)
		}

		s, err := types.ParseRecord(fields, in.Elapsed())
		if err != nil {
			in.skip(err)
			continue
		}

		if err := in.Publish(ctx, s); err != nil {
			if errors.Is(err, types.ErrMalformed) {
				in.skip(err)
				continue
			}
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Publish encodes s and enqueues it according to the policy. It returns
// ctx.Err() if ctx ends while waiting for room, and ErrClosed if Close runs
// first. Safe for concurrent use with Close.
func (in *Ingester) Publish(ctx context.Context, s types.Sample) error {
	payload, err := s.Encode()
	if err != nil {
		return err
	}

	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return ErrClosed
	}
	if err := in.enqueue(ctx, payload); err != nil {
		return err
	}
	in.samples.Add(1)
	in.metrics.SamplesIngested.Inc()
	in.metrics.QueueDepth.Set(float64(len(in.queue)))
	return nil
}

// Close stops the ingester and closes the queue. Publishers waiting for room
// return ErrClosed. Safe to call more than once.
func (in *Ingester) Close() {
	in.closeOnce.Do(func() {
		close(in.done)

		in.mu.Lock()
		defer in.mu.Unlock()
		in.closed = true
		close(in.queue)
	})
}

func (in *Ingester) enqueue(ctx context.Context, payload []byte) error {
	select {
	case in.queue <- payload:
		return nil
	default:
	}

	switch in.policy {
	case Block:
		select {
		case in.queue <- payload:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-in.done:
			return ErrClosed
		}

	case BlockThenDrop:
		timer := in.clock.NewTimer(in.blockTimeout)
		defer timer.Stop()
		select {
		case in.queue <- payload:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-in.done:
			return ErrClosed
		case <-timer.Chan():
		}
	}

	// Queue still full: evict the oldest entry. The hub may have taken it
	// meanwhile, in which case there is room anyway.
	select {
	case <-in.queue:
		in.dropped.Add(1)
		in.metrics.SamplesDropped.Inc()
		slog.Debug("ingest: queue full, dropped oldest sample", "capacity", cap(in.queue))
	default:
	}

	select {
	case in.queue <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-in.done:
		return ErrClosed
	}
}

func (in *Ingester) skip(err error) {
	in.malformed.Add(1)
	in.metrics.RecordsMalformed.Inc()
	in.skipLog.Do(func() {
		slog.Warn("ingest: skipping malformed record",
			"err", err, "malformed_total", in.malformed.Load())
	})
}
