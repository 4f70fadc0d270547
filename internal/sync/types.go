// Package sync implements the server side of offline batch synchronization:
// a version-conflict resolver and a batch coordinator that maps incoming
// change records onto the versioned entity store.
package sync

import (
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

// ChangeRecord is one client-authored mutation of a logical record.
type ChangeRecord struct {
	// ClientID is the device-generated correlation key, unique per entity
	// type on one device.
	ClientID string `json:"client_id"`
	// EntityType names the record kind: task, attendance or issue.
	EntityType models.EntityKind `json:"entity_type"`
	// ServerID is set when the device already knows the server identity,
	// zero otherwise.
	ServerID int64 `json:"server_id,omitempty"`
	// ClientVersion starts at 0 and is incremented by the device on each
	// local edit.
	ClientVersion   int            `json:"client_version"`
	ClientTimestamp time.Time      `json:"client_timestamp"`
	Payload         map[string]any `json:"payload"`
}

// Batch is a single device upload: an ordered sequence of change records.
// ClientTime is used only for clock-skew diagnostics, never for ordering.
type Batch struct {
	DeviceID   string         `json:"device_id"`
	ClientTime time.Time      `json:"client_time"`
	Items      []ChangeRecord `json:"items"`
}

// Outcome classifies what the resolver decided for one item.
type Outcome string

const (
	// Applied is the normal forward edit: incoming version is exactly one
	// ahead of the stored version.
	Applied Outcome = "applied"
	// DuplicateIgnored is a stale or identical replay, recovered silently.
	DuplicateIgnored Outcome = "duplicate_ignored"
	// ConflictOverridden is a same-version divergence resolved by the
	// field-ownership merge.
	ConflictOverridden Outcome = "conflict_overridden"
	// RejectedOutcome is a version gap or an invalid mutation; the client
	// must resync full state.
	RejectedOutcome Outcome = "rejected"
)

// ConflictDescriptor names which fields each side won in a same-version
// conflict merge.
type ConflictDescriptor struct {
	KeptFields       []string `json:"kept_fields,omitempty"`
	OverriddenFields []string `json:"overridden_fields,omitempty"`
}

// Result is the per-item outcome returned to the device.
type Result struct {
	ClientID           string              `json:"client_id"`
	ServerID           int64               `json:"server_id,omitempty"`
	Success            bool                `json:"success"`
	Outcome            Outcome             `json:"outcome,omitempty"`
	Message            string              `json:"message,omitempty"`
	ConflictResolution *ConflictDescriptor `json:"conflict_resolution,omitempty"`
	ServerVersion      int                 `json:"server_version,omitempty"`
}

// BatchResponse summarizes one processed batch.
type BatchResponse struct {
	TotalItems   int      `json:"total_items"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	Results      []Result `json:"results"`
}
