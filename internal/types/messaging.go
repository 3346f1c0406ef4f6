package types

import "time"

// SyncRequestMessage is the SQS payload asking the forecast-sync worker to
// refresh forecasts. An empty SpotIDs list means every catalog spot.
// Force bypasses the per-spot freshness window.
type SyncRequestMessage struct {
	RequestID   string    `json:"request_id"`
	SpotIDs     []int64   `json:"spot_ids,omitempty"`
	Force       bool      `json:"force"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
