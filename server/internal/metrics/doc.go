// Package metrics holds the Prometheus collectors shared by ingest and the
// WebSocket hub. Collectors are registered on a caller-supplied registerer so
// tests can use a private registry.
package metrics
