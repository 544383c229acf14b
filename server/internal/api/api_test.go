package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/obsidianstack/liveplot/pkg/types"
	"github.com/obsidianstack/liveplot/server/internal/api"
	"github.com/obsidianstack/liveplot/server/internal/ingest"
)

// --- test helpers -----------------------------------------------------------

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/status ---------------------------------------------------------

func TestStatus_Counters(t *testing.T) {
	in := ingest.New(ingest.Options{Capacity: 5, Policy: ingest.Block})
	src := ingest.NewCSVSource(strings.NewReader("1,2\nx\n3,4\n"))
	if err := in.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h := api.New(fixedCount(3), in, "127.0.0.1:9001")
	rr := get(t, h, "/api/v1/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}

	var resp api.StatusResponse
	decode(t, rr, &resp)
	if resp.Clients != 3 {
		t.Errorf("clients: got %d, want 3", resp.Clients)
	}
	if resp.Samples != 2 || resp.Malformed != 1 || resp.Dropped != 0 {
		t.Errorf("counters: got %+v", resp)
	}
	if resp.SocketAddr != "127.0.0.1:9001" {
		t.Errorf("socket_addr: got %q", resp.SocketAddr)
	}
	if resp.UptimeSeconds < 0 {
		t.Errorf("uptime_seconds: got %v", resp.UptimeSeconds)
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_Streaming(t *testing.T) {
	in := ingest.New(ingest.Options{Capacity: 5})
	if err := in.Publish(context.Background(), types.Sample{Stamp: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var resp api.HealthResponse
	decode(t, get(t, api.New(fixedCount(0), in, ""), "/api/v1/health"), &resp)
	if resp.State != "streaming" {
		t.Errorf("state: got %q, want streaming", resp.State)
	}
}

func TestHealth_Ended(t *testing.T) {
	in := ingest.New(ingest.Options{Capacity: 5})
	in.Close()

	var resp api.HealthResponse
	decode(t, get(t, api.New(fixedCount(0), in, ""), "/api/v1/health"), &resp)
	if resp.State != "ended" {
		t.Errorf("state: got %q, want ended", resp.State)
	}
}

// --- method / routing -------------------------------------------------------

func TestNonGet_Returns405(t *testing.T) {
	h := api.New(fixedCount(0), ingest.New(ingest.Options{}), "")
	for _, path := range []string{"/api/v1/health", "/api/v1/status"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: got %d, want 405", path, rr.Code)
		}
	}
}

func TestUnknownPath_Returns404(t *testing.T) {
	h := api.New(fixedCount(0), ingest.New(ingest.Options{}), "")
	if rr := get(t, h, "/api/v1/pipelines"); rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
}
