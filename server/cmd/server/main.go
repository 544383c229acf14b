package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/obsidianstack/liveplot/server/internal/app"
	"github.com/obsidianstack/liveplot/server/internal/config"
	"github.com/obsidianstack/liveplot/server/internal/ingest"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses built-in defaults")
	wsAddr := flag.String("ws-addr", "", "override relay.socket_host_port")
	assetAddr := flag.String("asset-addr", "", "override relay.asset_host_port")
	assetDir := flag.String("asset-dir", "", "serve the viewer from this directory instead of the embedded bundle")
	flag.Parse()

	// stdout may carry viewer messages (output: stdout), so logs go to stderr.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("liveplot-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *wsAddr != "" {
		cfg.Relay.SocketHostPort = *wsAddr
	}
	if *assetAddr != "" {
		cfg.Relay.AssetHostPort = *assetAddr
	}
	if *assetDir != "" {
		cfg.Relay.AssetDir = *assetDir
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Relay.Level())

	slog.Info("config loaded",
		"socket_host_port", cfg.Relay.SocketHostPort,
		"asset_host_port", cfg.Relay.AssetHostPort,
		"queue_capacity", cfg.Relay.Queue.Capacity,
		"queue_policy", cfg.Relay.Queue.Policy,
		"output", cfg.Relay.Output,
	)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Warn("reading samples from an interactive terminal; pipe a producer into stdin, e.g. liveplot-agent | liveplot-server")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := app.New(cfg, ingest.NewCSVSource(os.Stdin), os.Stdout)
	if err != nil {
		slog.Error("failed to start relay", "err", err)
		os.Exit(1)
	}

	// Hot reload changes the log level only; listeners and queues keep their
	// startup settings.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				level.Set(updated.Relay.Level())
				slog.Info("config hot-reloaded", "log_level", updated.Relay.LogLevel)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	if err := srv.Run(ctx); err != nil {
		slog.Error("relay stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("liveplot-server shutting down")
}
