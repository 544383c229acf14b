package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/liveplot/server/internal/api"
	"github.com/obsidianstack/liveplot/server/internal/assets"
	"github.com/obsidianstack/liveplot/server/internal/config"
	"github.com/obsidianstack/liveplot/server/internal/ingest"
	"github.com/obsidianstack/liveplot/server/internal/metrics"
	"github.com/obsidianstack/liveplot/server/internal/sink"
	"github.com/obsidianstack/liveplot/server/internal/ws"
)

const shutdownTimeout = 5 * time.Second

// Server is a fully wired relay with both listeners bound.
type Server struct {
	cfg      config.RelayConfig
	src      ingest.Source
	ingester *ingest.Ingester
	hub      *ws.Hub

	socketLn net.Listener
	assetLn  net.Listener
	socket   *http.Server
	asset    *http.Server
}

// New builds the relay from cfg, reading records from src. Inbound viewer
// frames go to out when the output is "stdout". Both listeners are bound
// before New returns; a bind failure is returned and nothing is left open.
func New(cfg *config.Config, src ingest.Source, out io.Writer) (*Server, error) {
	rc := cfg.Relay

	policy, err := ingest.ParsePolicy(rc.Queue.Policy)
	if err != nil {
		return nil, err
	}
	viewerSink, err := sink.New(rc.Output, out)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRelay(reg)

	files, err := assets.Handler(rc.AssetDir)
	if err != nil {
		return nil, err
	}

	in := ingest.New(ingest.Options{
		Capacity:     rc.Queue.Capacity,
		Policy:       policy,
		BlockTimeout: rc.Queue.BlockTimeout,
		Metrics:      m,
	})
	hub := ws.New(ws.Options{
		SendBuffer:   rc.Connection.SendBuffer,
		WriteTimeout: rc.Connection.WriteTimeout,
		ReadLimit:    rc.Connection.ReadLimit,
		MaxClients:   rc.Connection.MaxClients,
		Sink:         viewerSink,
		Metrics:      m,
	})

	socketLn, err := net.Listen("tcp", rc.SocketHostPort)
	if err != nil {
		return nil, fmt.Errorf("app: bind socket endpoint %s: %w", rc.SocketHostPort, err)
	}
	assetLn, err := net.Listen("tcp", rc.AssetHostPort)
	if err != nil {
		socketLn.Close()
		return nil, fmt.Errorf("app: bind asset endpoint %s: %w", rc.AssetHostPort, err)
	}

	assetMux := http.NewServeMux()
	assetMux.Handle("/api/", api.New(hub, in, socketLn.Addr().String()))
	assetMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	assetMux.Handle("/", files)

	return &Server{
		cfg:      rc,
		src:      src,
		ingester: in,
		hub:      hub,
		socketLn: socketLn,
		assetLn:  assetLn,
		socket:   &http.Server{Handler: hub, ReadHeaderTimeout: 10 * time.Second},
		asset:    &http.Server{Handler: assetMux, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

// SocketAddr is the bound address of the WebSocket relay.
func (s *Server) SocketAddr() string { return s.socketLn.Addr().String() }

// AssetAddr is the bound address of the asset, status and metrics server.
func (s *Server) AssetAddr() string { return s.assetLn.Addr().String() }

// Clients returns the number of connected viewers.
func (s *Server) Clients() int { return s.hub.Count() }

// Run serves until ctx is cancelled, a listener fails, or, with exit_on_eof,
// the source has ended and every queued sample was handed to the viewers.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The source may block in a read that ignores ctx (stdin), so ingest is
	// not part of the group Run waits for.
	go func() {
		if err := s.ingester.Run(ctx, s.src); err != nil {
			slog.Error("ingest: stopped", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx, s.ingester.Queue())
		return nil
	})
	g.Go(func() error {
		slog.Info("relay listening", "addr", s.SocketAddr())
		return serve(s.socket, s.socketLn)
	})
	g.Go(func() error {
		slog.Info("asset server listening", "addr", s.AssetAddr())
		return serve(s.asset, s.assetLn)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		s.socket.Shutdown(shutdownCtx) //nolint:errcheck
		s.asset.Shutdown(shutdownCtx)  //nolint:errcheck
		return nil
	})
	if s.cfg.Input.ExitOnEOF {
		g.Go(func() error {
			select {
			case <-s.hub.Drained():
				slog.Info("source ended and queue drained, stopping")
				cancel()
			case <-gctx.Done():
			}
			return nil
		})
	}

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: serve %s: %w", ln.Addr(), err)
	}
	return nil
}
