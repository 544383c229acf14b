package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "streaming" while the source is open, "ended" after it closed.
	State string `json:"state"`
}

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	Clients       int     `json:"clients"`
	Samples       uint64  `json:"samples"`
	Malformed     uint64  `json:"malformed"`
	Dropped       uint64  `json:"dropped"`
	SocketAddr    string  `json:"socket_addr"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}
