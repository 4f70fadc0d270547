// Package models defines the field-operations domain: versioned entities
// synced from worker devices, their lifecycle states, and the appeal record.
package models

import (
	"time"
)

// EntityKind identifies a syncable entity type.
type EntityKind string

const (
	KindTask       EntityKind = "task"
	KindAttendance EntityKind = "attendance"
	KindIssue      EntityKind = "issue"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindTask, KindAttendance, KindIssue:
		return true
	}
	return false
}

// TaskState represents task lifecycle status.
// Workflow: pending → in_progress → completed → approved/rejected, or
// pending → cancelled.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in_progress"
	TaskCompleted  TaskState = "completed"
	TaskApproved   TaskState = "approved"
	TaskRejected   TaskState = "rejected"
	TaskCancelled  TaskState = "cancelled"
)

// AttendanceState represents the approval status of an attendance record.
// GPS-validated check-ins auto-approve; failed or manual check-ins wait for
// a supervisor.
type AttendanceState string

const (
	AttendanceAutoApproved AttendanceState = "auto_approved"
	AttendancePending      AttendanceState = "pending"
	AttendanceApproved     AttendanceState = "approved"
	AttendanceRejected     AttendanceState = "rejected"
)

// IssueState represents a reported field issue's status.
type IssueState string

const (
	IssueReported IssueState = "reported"
	IssueInReview IssueState = "in_review"
	IssueResolved IssueState = "resolved"
	IssueClosed   IssueState = "closed"
)

// AppealStatus represents the review state of an appeal.
type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealRejected AppealStatus = "rejected"
)

// Entity is one versioned server record in the entity arena. Payload holds
// the entity-specific fields as decoded JSON; State and Version are managed
// by the sync core, never by clients directly.
type Entity struct {
	Kind      EntityKind     `json:"kind"`
	ServerID  int64          `json:"server_id"`
	ClientID  string         `json:"client_id"`
	DeviceID  string         `json:"device_id,omitempty"`
	WorkerID  int64          `json:"worker_id,omitempty"`
	ZoneID    int64          `json:"zone_id,omitempty"`
	Version   int            `json:"version"`
	State     string         `json:"state"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to mutate without touching the original.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = clonePayload(e.Payload)
	return &c
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch t := v.(type) {
		case map[string]any:
			out[k] = clonePayload(t)
		case []any:
			s := make([]any, len(t))
			copy(s, t)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

// Payload field keys shared between the sync core and the state machines.
const (
	FieldStatus         = "status"
	FieldNotes          = "notes"
	FieldPhotoURLs      = "photo_urls"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldAccuracyMeters = "accuracy_m"
	FieldCompletedAt    = "completed_at"
	FieldCheckInAt      = "check_in_at"
	FieldCheckOutAt     = "check_out_at"
	FieldManualReason   = "manual_reason"

	// Server-managed bookkeeping written by the state machines.
	FieldApprovalStatus    = "approval_status"
	FieldValidationMessage = "validation_message"
	FieldDistanceMeters    = "distance_m"
	FieldDistanceWarning   = "distance_warning"
	FieldFailedAttempts    = "failed_attempts"
	FieldRejectionReason   = "rejection_reason"
	FieldRejectedAt        = "rejected_at"
	FieldMatchedZoneID     = "matched_zone_id"
)

// clientOwnedFields lists, per kind, the payload fields a device is
// authoritative for. Everything else in the payload is server-authoritative
// and survives client replays: workflow-state fields are never overwritten
// by a conflicting client write.
var clientOwnedFields = map[EntityKind][]string{
	KindTask: {
		FieldNotes, FieldPhotoURLs, FieldLatitude, FieldLongitude,
		FieldAccuracyMeters, FieldCompletedAt, "progress_pct", "progress_notes",
	},
	KindAttendance: {
		FieldCheckInAt, FieldCheckOutAt, FieldLatitude, FieldLongitude,
		FieldAccuracyMeters, FieldManualReason,
	},
	KindIssue: {
		"title", "description", "severity", "location_description",
		FieldNotes, FieldPhotoURLs, FieldLatitude, FieldLongitude,
		FieldAccuracyMeters, "reported_at",
	},
}

// ClientOwnedFields returns the payload fields clients are authoritative
// for on the given kind. The returned slice must not be mutated.
func ClientOwnedFields(kind EntityKind) []string {
	return clientOwnedFields[kind]
}

// ClientOwned reports whether the named payload field is client-owned for
// the kind.
func ClientOwned(kind EntityKind, field string) bool {
	for _, f := range clientOwnedFields[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// Appeal is a worker's request to override an automatic geofence rejection.
// Created pending, reviewed exactly once, then immutable.
type Appeal struct {
	ID          int64        `json:"id"`
	EntityKind  EntityKind   `json:"entity_kind"`
	EntityID    int64        `json:"entity_id"`
	WorkerID    int64        `json:"worker_id"`
	Explanation string       `json:"explanation"`
	EvidenceURL string       `json:"evidence_url,omitempty"`
	Status      AppealStatus `json:"status"`
	ReviewedBy  int64        `json:"reviewed_by,omitempty"`
	ReviewNotes string       `json:"review_notes,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
}

// Worker is a field worker account, tracked for warning counters.
type Worker struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	DeviceID          string     `json:"device_id,omitempty"`
	WarningCount      int        `json:"warning_count"`
	LastWarningAt     *time.Time `json:"last_warning_at,omitempty"`
	LastWarningReason string     `json:"last_warning_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TaskTemplate describes a recurring task instantiated by the scheduler.
type TaskTemplate struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	ZoneID          int64     `json:"zone_id,omitempty"`
	AssigneeID      int64     `json:"assignee_id,omitempty"`
	IntervalMinutes int       `json:"interval_minutes"`
	Active          bool      `json:"active"`
	LastGeneratedAt time.Time `json:"last_generated_at"`
	CreatedAt       time.Time `json:"created_at"`
}
