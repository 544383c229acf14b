package generator

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Wave maps the running x to one column value.
type Wave func(x float64) float64

// DefaultWaves are the four columns written when Options.Waves is empty.
var DefaultWaves = []Wave{
	math.Sin,
	math.Cos,
	func(x float64) float64 { return math.Cos(math.Sin(x * x)) },
	func(x float64) float64 { return math.Sin(math.Exp(2 * x)) },
}

// Options configures a Generator.
type Options struct {
	Step   float64
	Period time.Duration
	Delay  time.Duration

	// Count stops after this many lines. Zero runs until cancelled.
	Count int

	Waves []Wave
	Clock clockwork.Clock
}

// Generator writes waveform lines.
type Generator struct {
	opts Options
}

// New returns a Generator, filling unset options with the defaults used by
// the agent binary.
func New(opts Options) *Generator {
	if opts.Step == 0 {
		opts.Step = 0.01
	}
	if opts.Period <= 0 {
		opts.Period = 10 * time.Millisecond
	}
	if len(opts.Waves) == 0 {
		opts.Waves = DefaultWaves
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Generator{opts: opts}
}

// Line formats the columns for x without a trailing newline.
func (g *Generator) Line(x float64) string {
	cols := make([]string, len(g.opts.Waves))
	for i, w := range g.opts.Waves {
		cols[i] = strconv.FormatFloat(w(x), 'g', -1, 64)
	}
	return strings.Join(cols, ", ")
}

// Run writes lines to w until ctx ends, Count is reached, or a write fails.
// Cancellation is not an error.
func (g *Generator) Run(ctx context.Context, w io.Writer) error {
	if err := g.wait(ctx, g.opts.Delay); err != nil {
		return nil
	}

	x := 0.0
	for n := 1; ; n++ {
		x += g.opts.Step
		if _, err := io.WriteString(w, g.Line(x)+"\n"); err != nil {
			return fmt.Errorf("generator: write line %d: %w", n, err)
		}
		if g.opts.Count > 0 && n >= g.opts.Count {
			return nil
		}
		if err := g.wait(ctx, g.opts.Period); err != nil {
			return nil
		}
	}
}

func (g *Generator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.opts.Clock.After(d):
		return nil
	}
}
