package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nadim/fieldsync/internal/models"
	"github.com/nadim/fieldsync/internal/store"
	syncpkg "github.com/nadim/fieldsync/internal/sync"
)

// handleSyncBatch returns the upload handler for one entity kind. The route
// is authoritative for the kind: whatever the items claim is overwritten.
func (s *Server) handleSyncBatch(kind models.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var batch syncpkg.Batch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		deviceID := batch.DeviceID
		if d := getDeviceFromContext(r.Context()); d != nil {
			deviceID = d.ID
		}
		if deviceID == "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing device_id")
			return
		}
		if len(batch.Items) == 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "empty batch")
			return
		}
		if len(batch.Items) > s.config.MaxBatchItems {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
				"batch exceeds "+strconv.Itoa(s.config.MaxBatchItems)+" items")
			return
		}
		for i := range batch.Items {
			batch.Items[i].EntityType = kind
		}

		resp, err := s.coordinator.ProcessBatch(r.Context(), deviceID, batch.ClientTime, batch.Items)
		if err != nil {
			logFor(r.Context()).Error("process batch", "kind", kind, "err", err)
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable,
				"batch not processed; retry with the same batch")
			return
		}

		var conflicts int64
		for _, res := range resp.Results {
			if res.Outcome == syncpkg.ConflictOverridden {
				conflicts++
			}
		}
		s.metrics.RecordBatch(int64(resp.SuccessCount), int64(resp.FailureCount), conflicts)

		rec := store.BatchRecord{
			DeviceID:     deviceID,
			TotalItems:   resp.TotalItems,
			SuccessCount: resp.SuccessCount,
			FailureCount: resp.FailureCount,
		}
		if !batch.ClientTime.IsZero() {
			t := batch.ClientTime
			rec.ClientTime = &t
		}
		// Audit only; the device already has its results.
		if err := s.store.RecordBatch(r.Context(), rec); err != nil {
			logFor(r.Context()).Error("record batch audit", "err", err)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// handleListBatches serves the sync audit log, optionally filtered by device.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	batches, err := s.store.RecentBatches(r.Context(), r.URL.Query().Get("device"), limit)
	if err != nil {
		logFor(r.Context()).Error("list batches", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list batches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}
