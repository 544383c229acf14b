package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/obsidianstack/liveplot/server/internal/ingest"
)

// ClientCounter reports the number of connected viewers.
type ClientCounter interface {
	Count() int
}

// IngestState reports ingest counters and whether the source has ended.
type IngestState interface {
	Stats() ingest.Stats
	Done() <-chan struct{}
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	relay      ClientCounter
	ingest     IngestState
	socketAddr string
	started    time.Time
	mux        *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(relay ClientCounter, in IngestState, socketAddr string) http.Handler {
	h := &Handler{
		relay:      relay,
		ingest:     in,
		socketAddr: socketAddr,
		started:    time.Now(),
		mux:        http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/status", h.status)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state := "streaming"
	select {
	case <-h.ingest.Done():
		state = "ended"
	default:
	}
	jsonResp(w, http.StatusOK, HealthResponse{State: state})
}

// status returns GET /api/v1/status.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := h.ingest.Stats()
	jsonResp(w, http.StatusOK, StatusResponse{
		Clients:       h.relay.Count(),
		Samples:       st.Samples,
		Malformed:     st.Malformed,
		Dropped:       st.Dropped,
		SocketAddr:    h.socketAddr,
		UptimeSeconds: time.Since(h.started).Seconds(),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
