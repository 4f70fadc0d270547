package api

import (
	"encoding/json"
	"net/http"

	"github.com/nadim/fieldsync/internal/zones"
)

// ImportZonesRequest is the payload of a zone import. With Replace set,
// active zones missing from the import are deactivated.
type ImportZonesRequest struct {
	Zones   []zones.Zone `json:"zones"`
	Replace bool         `json:"replace,omitempty"`
}

// handleImportZones upserts the supplied zones and swaps in a fresh index.
// Batches already in flight finish against the previous snapshot.
func (s *Server) handleImportZones(w http.ResponseWriter, r *http.Request) {
	var req ImportZonesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Zones) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "no zones in import")
		return
	}

	imported := make(map[string]bool, len(req.Zones))
	for _, z := range req.Zones {
		if z.Code == "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "zone without code")
			return
		}
		if _, err := s.store.UpsertZone(r.Context(), z); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "zone "+z.Code+": "+err.Error())
			return
		}
		imported[z.Code] = true
	}

	deactivated := 0
	if req.Replace {
		existing, err := s.store.ListZones(r.Context())
		if err != nil {
			logFor(r.Context()).Error("list zones for replace", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to replace zones")
			return
		}
		for _, z := range existing {
			if z.Active && !imported[z.Code] {
				if err := s.store.DeactivateZone(r.Context(), z.Code); err != nil {
					logFor(r.Context()).Error("deactivate zone", "code", z.Code, "err", err)
					writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to replace zones")
					return
				}
				deactivated++
			}
		}
	}

	if err := s.reloadZones(r); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "zones saved but index reload failed")
		return
	}

	logFor(r.Context()).Info("zones imported", "count", len(req.Zones), "deactivated", deactivated)
	writeJSON(w, http.StatusOK, map[string]any{
		"imported":    len(req.Zones),
		"deactivated": deactivated,
		"active":      s.catalog.snapshot().Len(),
	})
}

// handleListZones returns every stored zone, inactive ones included.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zs, err := s.store.ListZones(r.Context())
	if err != nil {
		logFor(r.Context()).Error("list zones", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list zones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zs})
}

// handleDeactivateZone retires a zone by code. Entities pinned to it keep
// their zone_id; future validations simply no longer match it.
func (s *Server) handleDeactivateZone(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if err := s.store.DeactivateZone(r.Context(), code); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "zone "+code+" not found")
		return
	}
	if err := s.reloadZones(r); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "zone saved but index reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "code": code})
}

func (s *Server) reloadZones(r *http.Request) error {
	idx, err := s.store.LoadZoneIndex(r.Context())
	if err != nil {
		logFor(r.Context()).Error("reload zone index", "err", err)
		return err
	}
	s.catalog.idx.Store(idx)
	return nil
}
