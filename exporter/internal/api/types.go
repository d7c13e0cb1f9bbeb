package api

import "github.com/obsidianstack/prtg-exporter/exporter/internal/status"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	status.Status

	Generation  uint64           `json:"generation"`
	FetchedAt   string           `json:"fetched_at,omitempty"` // RFC3339
	Ready       bool             `json:"ready"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Generation  uint64        `json:"generation"`
	FetchedAt   string        `json:"fetched_at,omitempty"` // RFC3339
	Sensors     int           `json:"sensors"`
	Channels    int           `json:"channels"`
	Untyped     int           `json:"untyped"`
	Types       []TypeSummary `json:"types"`
	GeneratedAt string        `json:"generated_at"` // RFC3339
}

// TypeSummary is the breakdown for one sensor type.
type TypeSummary struct {
	Type     string `json:"type"`
	Family   string `json:"family"`
	Sensors  int    `json:"sensors"`
	Channels int    `json:"channels"`
}

// SensorResponse is the payload for GET /api/v1/sensors/{id}.
type SensorResponse struct {
	ID        int64             `json:"id"`
	Device    string            `json:"device"`
	Name      string            `json:"name"`
	Group     string            `json:"group"`
	Tags      string            `json:"tags"`
	LastValue string            `json:"last_value"`
	Value     *float64          `json:"value"`
	Channels  []ChannelResponse `json:"channels"`
}

// ChannelResponse is one channel of a SensorResponse.
type ChannelResponse struct {
	ID    *int64   `json:"id"`
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
