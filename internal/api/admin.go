package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nadim/fieldsync/internal/models"
	"github.com/nadim/fieldsync/internal/workflow"
)

var (
	taskReview       = workflow.TaskMachine()
	attendanceReview = workflow.AttendanceMachine()
)

// ReviewRequest is a supervisor verdict on a completed task or a pending
// attendance record.
type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes,omitempty"`
}

// handleListEntities serves entities of one kind, optionally filtered by
// state.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	kind := models.EntityKind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown entity kind")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entities, err := s.store.ListEntities(r.Context(), kind, r.URL.Query().Get("state"), limit)
	if err != nil {
		logFor(r.Context()).Error("list entities", "kind", kind, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list entities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (s *Server) handleReviewTask(w http.ResponseWriter, r *http.Request) {
	s.reviewEntity(w, r, models.KindTask, taskReview,
		string(models.TaskApproved), string(models.TaskRejected))
}

func (s *Server) handleReviewAttendance(w http.ResponseWriter, r *http.Request) {
	s.reviewEntity(w, r, models.KindAttendance, attendanceReview,
		string(models.AttendanceApproved), string(models.AttendanceRejected))
}

// reviewEntity applies a supervisor verdict through the kind's state
// machine. The version check makes a stale review (entity re-synced in the
// meantime) fail loudly instead of silently clobbering.
func (s *Server) reviewEntity(w http.ResponseWriter, r *http.Request, kind models.EntityKind, m *workflow.Machine, approveState, rejectState string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid entity id")
		return
	}
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	stored, err := s.store.EntityByServerID(r.Context(), kind, id)
	if err != nil {
		logFor(r.Context()).Error("load entity for review", "kind", kind, "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load entity")
		return
	}
	if stored == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "entity not found")
		return
	}

	to := rejectState
	if req.Approve {
		to = approveState
	}
	updated := stored.Clone()
	if err := m.Transition(updated, to, false); err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	if req.Notes != "" {
		updated.Payload["review_notes"] = req.Notes
	}
	updated.Version = stored.Version + 1

	ok, err := s.store.UpdateEntity(r.Context(), updated, stored.Version)
	if err != nil {
		logFor(r.Context()).Error("persist review", "kind", kind, "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to persist review")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, ErrCodeConflict, "entity changed concurrently; reload and retry")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// CreateWorkerRequest registers a field worker account.
type CreateWorkerRequest struct {
	Name     string `json:"name"`
	DeviceID string `json:"device_id,omitempty"`
}

func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	id, err := s.store.CreateWorker(r.Context(), req.Name, req.DeviceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.store.ListWorkers(r.Context())
	if err != nil {
		logFor(r.Context()).Error("list workers", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list workers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": workers})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.TaskTemplate
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	id, err := s.store.CreateTemplate(r.Context(), &t)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		logFor(r.Context()).Error("list templates", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// CreateDeviceKeyRequest provisions a sync credential for a device.
type CreateDeviceKeyRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name,omitempty"`
}

// handleCreateDeviceKey returns the plaintext key exactly once; only its
// hash is stored.
func (s *Server) handleCreateDeviceKey(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	plaintext, dk, err := s.store.GenerateDeviceKey(r.Context(), req.DeviceID, req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": plaintext, "meta": dk})
}

func (s *Server) handleListDeviceKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListDeviceKeys(r.Context(), r.URL.Query().Get("device"))
	if err != nil {
		logFor(r.Context()).Error("list device keys", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handleRevokeDeviceKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.RevokeDeviceKey(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "id": id})
}
