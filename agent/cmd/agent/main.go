package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsidianstack/liveplot/agent/internal/generator"
)

func main() {
	interval := flag.Duration("interval", 10*time.Millisecond, "time between sample lines")
	step := flag.Float64("step", 0.01, "x increment per line")
	delay := flag.Duration("delay", 100*time.Millisecond, "wait before the first line")
	count := flag.Int("count", 0, "stop after this many lines; 0 runs until interrupted")
	flag.Parse()

	// stdout is the data path; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("liveplot-agent starting",
		"interval", *interval,
		"step", *step,
		"delay", *delay,
		"count", *count,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gen := generator.New(generator.Options{
		Step:   *step,
		Period: *interval,
		Delay:  *delay,
		Count:  *count,
	})
	if err := gen.Run(ctx, os.Stdout); err != nil {
		slog.Error("generator stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("liveplot-agent shutting down")
}
