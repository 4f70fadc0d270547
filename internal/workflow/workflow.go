// Package workflow implements the task and attendance lifecycle state
// machines. Transitions into location-sensitive states are gated by a
// geofence outcome; appeal approvals use forced transitions to override an
// automatic rejection.
package workflow

import (
	"fmt"
	"time"

	"github.com/nadim/fieldsync/internal/geo"
	"github.com/nadim/fieldsync/internal/models"
)

// TransitionError reports an invalid lifecycle transition. The sync
// coordinator converts it into a per-item failure, never a batch abort.
type TransitionError struct {
	Kind models.EntityKind
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition %s -> %s", e.Kind, e.From, e.To)
}

// Machine is a lifecycle transition table for one entity kind.
type Machine struct {
	kind        models.EntityKind
	transitions map[string]map[string]bool
	// forced transitions are reachable only via appeal reinstatement.
	forced   map[string]map[string]bool
	terminal map[string]bool
}

func newMachine(kind models.EntityKind) *Machine {
	return &Machine{
		kind:        kind,
		transitions: make(map[string]map[string]bool),
		forced:      make(map[string]map[string]bool),
		terminal:    make(map[string]bool),
	}
}

func (m *Machine) allow(from, to string) {
	if m.transitions[from] == nil {
		m.transitions[from] = make(map[string]bool)
	}
	m.transitions[from][to] = true
}

func (m *Machine) allowForced(from, to string) {
	if m.forced[from] == nil {
		m.forced[from] = make(map[string]bool)
	}
	m.forced[from][to] = true
}

// TaskMachine returns the task lifecycle machine:
// pending → in_progress → completed → approved/rejected, pending → cancelled,
// with rejected → approved reachable only by a forced (appeal) transition.
func TaskMachine() *Machine {
	m := newMachine(models.KindTask)
	m.allow(string(models.TaskPending), string(models.TaskInProgress))
	m.allow(string(models.TaskPending), string(models.TaskCancelled))
	m.allow(string(models.TaskInProgress), string(models.TaskCompleted))
	m.allow(string(models.TaskInProgress), string(models.TaskRejected))
	m.allow(string(models.TaskCompleted), string(models.TaskApproved))
	m.allow(string(models.TaskCompleted), string(models.TaskRejected))
	m.allowForced(string(models.TaskRejected), string(models.TaskApproved))
	m.terminal[string(models.TaskApproved)] = true
	m.terminal[string(models.TaskRejected)] = true
	m.terminal[string(models.TaskCancelled)] = true
	return m
}

// AttendanceMachine returns the attendance approval machine. Check-ins enter
// at auto_approved (validated) or pending (manual fallback); supervisors
// resolve pending records; rejected → approved is appeal-only.
func AttendanceMachine() *Machine {
	m := newMachine(models.KindAttendance)
	m.allow(string(models.AttendancePending), string(models.AttendanceApproved))
	m.allow(string(models.AttendancePending), string(models.AttendanceRejected))
	m.allowForced(string(models.AttendanceRejected), string(models.AttendanceApproved))
	m.terminal[string(models.AttendanceAutoApproved)] = true
	m.terminal[string(models.AttendanceApproved)] = true
	m.terminal[string(models.AttendanceRejected)] = true
	return m
}

// IssueMachine returns the reported-issue machine. Issues have no geofence
// gate; they move through review to resolution.
func IssueMachine() *Machine {
	m := newMachine(models.KindIssue)
	m.allow(string(models.IssueReported), string(models.IssueInReview))
	m.allow(string(models.IssueInReview), string(models.IssueResolved))
	m.allow(string(models.IssueInReview), string(models.IssueClosed))
	m.allow(string(models.IssueResolved), string(models.IssueClosed))
	m.terminal[string(models.IssueClosed)] = true
	return m
}

// CanTransition reports whether from → to is in the normal transition table.
func (m *Machine) CanTransition(from, to string) bool {
	return m.transitions[from][to]
}

// IsTerminal reports whether the state has no normal outgoing transitions.
func (m *Machine) IsTerminal(state string) bool {
	return m.terminal[state]
}

// Transition moves the entity to the target state, validating against the
// table. force additionally admits the appeal-only transitions.
func (m *Machine) Transition(e *models.Entity, to string, force bool) error {
	from := e.State
	if from == to {
		return nil
	}
	if !m.transitions[from][to] && !(force && m.forced[from][to]) {
		return &TransitionError{Kind: m.kind, From: from, To: to}
	}
	e.State = to
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[models.FieldStatus] = to
	return nil
}

// maxCompletionAttempts is the two-strike policy: the first out-of-range
// completion keeps the task in progress, the second auto-rejects it.
const maxCompletionAttempts = 2

// CompletionDisposition summarizes what ApplyTaskCompletion did.
type CompletionDisposition struct {
	// State the task ended in.
	State models.TaskState
	// Warned is set when the task completed outside the warning distance
	// and is flagged for supervisor review.
	Warned bool
	// Retry is set when the attempt was out of range but the task stays
	// in_progress for one more try.
	Retry bool
	// Message is the worker-facing explanation for warned/rejected/retry
	// outcomes.
	Message string
}

// ApplyTaskCompletion applies a geofence outcome to a task completion
// attempt. The entity must be in_progress; the caller has already run the
// engine. Distance bookkeeping is written into the server-owned payload
// fields.
func ApplyTaskCompletion(m *Machine, e *models.Entity, out geo.Outcome, now time.Time) (CompletionDisposition, error) {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[models.FieldDistanceMeters] = out.DistanceMeters
	if out.MatchedZoneID != 0 {
		e.Payload[models.FieldMatchedZoneID] = out.MatchedZoneID
	}

	switch out.Decision {
	case geo.Accepted, geo.AcceptedWithWarning:
		if err := m.Transition(e, string(models.TaskCompleted), false); err != nil {
			return CompletionDisposition{}, err
		}
		e.Payload[models.FieldCompletedAt] = now.UTC().Format(time.RFC3339)
		d := CompletionDisposition{State: models.TaskCompleted}
		if out.Decision == geo.AcceptedWithWarning {
			e.Payload[models.FieldDistanceWarning] = true
			d.Warned = true
			d.Message = fmt.Sprintf("completed %.0fm from the task zone; flagged for supervisor review", out.DistanceMeters)
		}
		return d, nil

	case geo.Rejected:
		attempts := payloadInt(e.Payload, models.FieldFailedAttempts) + 1
		e.Payload[models.FieldFailedAttempts] = attempts

		if attempts < maxCompletionAttempts {
			// First strike: stay in_progress, let the worker retry from the
			// right place.
			return CompletionDisposition{
				State: models.TaskState(e.State),
				Retry: true,
				Message: fmt.Sprintf("location %.0fm from the task zone; move closer and retry (attempt %d of %d)",
					out.DistanceMeters, attempts, maxCompletionAttempts),
			}, nil
		}

		reason := fmt.Sprintf("completion submitted from %.0fm outside the task zone after %d attempts", out.DistanceMeters, attempts)
		if err := m.Transition(e, string(models.TaskRejected), false); err != nil {
			return CompletionDisposition{}, err
		}
		e.Payload[models.FieldRejectionReason] = reason
		e.Payload[models.FieldRejectedAt] = now.UTC().Format(time.RFC3339)
		return CompletionDisposition{State: models.TaskRejected, Message: reason}, nil
	}

	return CompletionDisposition{}, fmt.Errorf("unknown geofence decision %v", out.Decision)
}

// ApplyCheckIn sets the attendance approval state from a geofence outcome.
// A nil outcome means no usable GPS: the record takes the manual path and
// waits pending for a supervisor.
func ApplyCheckIn(e *models.Entity, out *geo.Outcome) {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	if out == nil {
		e.State = string(models.AttendancePending)
		e.Payload[models.FieldApprovalStatus] = string(models.AttendancePending)
		e.Payload[models.FieldValidationMessage] = "no usable GPS fix; supervisor approval required"
		return
	}

	e.Payload[models.FieldDistanceMeters] = out.DistanceMeters
	if out.MatchedZoneID != 0 {
		e.Payload[models.FieldMatchedZoneID] = out.MatchedZoneID
	}
	switch out.Decision {
	case geo.Accepted:
		e.State = string(models.AttendanceAutoApproved)
		e.Payload[models.FieldApprovalStatus] = string(models.AttendanceAutoApproved)
	case geo.AcceptedWithWarning:
		e.State = string(models.AttendanceAutoApproved)
		e.Payload[models.FieldApprovalStatus] = string(models.AttendanceAutoApproved)
		e.Payload[models.FieldDistanceWarning] = true
		e.Payload[models.FieldValidationMessage] = fmt.Sprintf("checked in %.0fm from the nearest zone; flagged for review", out.DistanceMeters)
	case geo.Rejected:
		e.State = string(models.AttendancePending)
		e.Payload[models.FieldApprovalStatus] = string(models.AttendancePending)
		e.Payload[models.FieldValidationMessage] = fmt.Sprintf("check-in %.0fm outside every zone; supervisor approval required", out.DistanceMeters)
	}
}

func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
