package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nadim/fieldsync/internal/models"
)

// Resolution is the resolver's verdict for one change record against the
// stored entity.
type Resolution struct {
	Outcome Outcome
	// Payload is the post-merge payload to persist. Set only for Applied
	// and ConflictOverridden.
	Payload  map[string]any
	Conflict *ConflictDescriptor
	Message  string
}

// Resolve compares an incoming change against the stored entity and decides
// how it applies. Pure: it never mutates stored and holds no state between
// calls.
//
// Policy, in order:
//   - incoming version below stored: stale replay, ignored.
//   - same version, client-owned fields equivalent: identical replay, ignored.
//   - same version, payloads diverge: field-ownership merge. Workflow-state
//     fields stay server-authoritative; client-owned fields take the
//     incoming value.
//   - exactly one version ahead: normal forward edit.
//   - more than one ahead: version gap, the device must resync full state.
func Resolve(stored *models.Entity, incoming ChangeRecord) Resolution {
	switch {
	case incoming.ClientVersion < stored.Version:
		return Resolution{
			Outcome: DuplicateIgnored,
			Message: fmt.Sprintf("stale replay: version %d already superseded by %d", incoming.ClientVersion, stored.Version),
		}

	case incoming.ClientVersion == stored.Version:
		if clientFieldsEquivalent(stored.Kind, stored.Payload, incoming.Payload) {
			return Resolution{Outcome: DuplicateIgnored, Message: "duplicate replay"}
		}
		merged, desc := mergeOwnedFields(stored.Kind, stored.Payload, incoming.Payload)
		return Resolution{
			Outcome:  ConflictOverridden,
			Payload:  merged,
			Conflict: desc,
			Message:  "same-version conflict resolved by field ownership",
		}

	case incoming.ClientVersion == stored.Version+1:
		merged, _ := mergeOwnedFields(stored.Kind, stored.Payload, incoming.Payload)
		return Resolution{Outcome: Applied, Payload: merged}

	default:
		return Resolution{
			Outcome: RejectedOutcome,
			Message: fmt.Sprintf("version gap: stored %d, incoming %d; full resync required", stored.Version, incoming.ClientVersion),
		}
	}
}

// clientFieldsEquivalent reports whether both payloads agree on every
// client-owned field, compared by canonical JSON encoding.
func clientFieldsEquivalent(kind models.EntityKind, stored, incoming map[string]any) bool {
	for _, f := range models.ClientOwnedFields(kind) {
		if !equalJSON(stored[f], incoming[f]) {
			return false
		}
	}
	return true
}

// mergeOwnedFields builds the resulting payload: the stored payload with
// every client-owned field present in incoming taking the incoming value.
// Server-owned fields are never touched. The descriptor lists what each side
// won, sorted for stable output.
func mergeOwnedFields(kind models.EntityKind, stored, incoming map[string]any) (map[string]any, *ConflictDescriptor) {
	merged := make(map[string]any, len(stored)+len(incoming))
	for k, v := range stored {
		merged[k] = v
	}

	desc := &ConflictDescriptor{}
	for k, v := range incoming {
		if !models.ClientOwned(kind, k) {
			if !equalJSON(stored[k], v) {
				desc.KeptFields = append(desc.KeptFields, k)
			}
			continue
		}
		if !equalJSON(stored[k], v) {
			desc.OverriddenFields = append(desc.OverriddenFields, k)
		}
		merged[k] = v
	}
	sort.Strings(desc.KeptFields)
	sort.Strings(desc.OverriddenFields)
	return merged, desc
}

func equalJSON(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
