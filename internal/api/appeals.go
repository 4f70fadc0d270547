package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nadim/fieldsync/internal/appeal"
	"github.com/nadim/fieldsync/internal/models"
)

// SubmitAppealRequest asks for a rejected task or attendance record to be
// reconsidered by a supervisor.
type SubmitAppealRequest struct {
	EntityKind  models.EntityKind `json:"entity_kind"`
	EntityID    int64             `json:"entity_id"`
	WorkerID    int64             `json:"worker_id"`
	Explanation string            `json:"explanation"`
	EvidenceURL string            `json:"evidence_url,omitempty"`
}

// ReviewAppealRequest is the supervisor's verdict on a pending appeal.
type ReviewAppealRequest struct {
	ReviewerID int64  `json:"reviewer_id"`
	Approve    bool   `json:"approve"`
	Notes      string `json:"notes,omitempty"`
}

func (s *Server) handleSubmitAppeal(w http.ResponseWriter, r *http.Request) {
	var req SubmitAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	a, err := s.appeals.Submit(r.Context(), req.EntityKind, req.EntityID, req.WorkerID, req.Explanation, req.EvidenceURL)
	if err != nil {
		writeAppealError(w, r, err)
		return
	}
	s.metrics.RecordAppeal()
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAppeals(w http.ResponseWriter, r *http.Request) {
	status := models.AppealStatus(r.URL.Query().Get("status"))
	appeals, err := s.store.ListAppeals(r.Context(), status, 200)
	if err != nil {
		logFor(r.Context()).Error("list appeals", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list appeals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appeals": appeals})
}

func (s *Server) handleGetAppeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid appeal id")
		return
	}
	a, err := s.store.AppealByID(r.Context(), id)
	if err != nil {
		logFor(r.Context()).Error("get appeal", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load appeal")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "appeal not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleReviewAppeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid appeal id")
		return
	}
	var req ReviewAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	a, err := s.appeals.Review(r.Context(), id, req.ReviewerID, req.Approve, req.Notes)
	if err != nil {
		writeAppealError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// writeAppealError maps appeal service errors onto the API envelope.
func writeAppealError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appeal.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, appeal.ErrAlreadyAppealed), errors.Is(err, appeal.ErrAlreadyReviewed):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, appeal.ErrNotAppealable):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		logFor(r.Context()).Error("appeal", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "appeal operation failed")
	}
}
