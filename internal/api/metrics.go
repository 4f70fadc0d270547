package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime     time.Time
	requests      atomic.Int64
	serverErrors  atomic.Int64
	clientErrors  atomic.Int64
	batches       atomic.Int64
	itemsAccepted atomic.Int64
	itemsFailed   atomic.Int64
	conflicts     atomic.Int64
	appeals       atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          int64   `json:"requests"`
	ServerErrors      int64   `json:"server_errors"`
	ClientErrors      int64   `json:"client_errors"`
	BatchesProcessed  int64   `json:"batches_processed"`
	ItemsAccepted     int64   `json:"items_accepted"`
	ItemsFailed       int64   `json:"items_failed"`
	ConflictsResolved int64   `json:"conflicts_resolved"`
	AppealsSubmitted  int64   `json:"appeals_submitted"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordBatch records one processed upload with its per-item tallies.
func (m *Metrics) RecordBatch(accepted, failed, conflicts int64) {
	m.batches.Add(1)
	m.itemsAccepted.Add(accepted)
	m.itemsFailed.Add(failed)
	m.conflicts.Add(conflicts)
}

// RecordAppeal increments the submitted appeal counter.
func (m *Metrics) RecordAppeal() {
	m.appeals.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
		Requests:          m.requests.Load(),
		ServerErrors:      m.serverErrors.Load(),
		ClientErrors:      m.clientErrors.Load(),
		BatchesProcessed:  m.batches.Load(),
		ItemsAccepted:     m.itemsAccepted.Load(),
		ItemsFailed:       m.itemsFailed.Load(),
		ConflictsResolved: m.conflicts.Load(),
		AppealsSubmitted:  m.appeals.Load(),
	}
}
