package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nadim/fieldsync/internal/geo"
	"github.com/nadim/fieldsync/internal/models"
	"github.com/nadim/fieldsync/internal/store"
	syncpkg "github.com/nadim/fieldsync/internal/sync"
	"github.com/nadim/fieldsync/internal/zones"
)

// newTestServer creates a Server backed by a temp database.
func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	return newTestServerWithConfig(t, nil)
}

// newTestServerWithConfig creates a test server with a custom config modifier.
func newTestServerWithConfig(t *testing.T, modCfg func(*Config)) (*Server, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "fieldsync.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{
		ListenAddr:          ":0",
		DBPath:              dbPath,
		MaxBatchItems:       500,
		RateLimitSync:       100000,
		RateLimitOther:      100000,
		GeoToleranceDegrees: 0.0003,
		GeoWarningMeters:    100,
		GeoRejectMeters:     500,
		SchedulerInterval:   time.Minute,
	}
	if modCfg != nil {
		modCfg(&cfg)
	}

	srv, err := NewServer(cfg, st)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, st
}

func doRequest(srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

// importTestZone uploads one square zone around (31.905, 35.205) and
// returns its server-assigned id.
func importTestZone(t *testing.T, srv *Server) int64 {
	t.Helper()
	ring := []geo.Vertex{
		{Lat: 31.900, Lon: 35.200},
		{Lat: 31.910, Lon: 35.200},
		{Lat: 31.910, Lon: 35.210},
		{Lat: 31.900, Lon: 35.210},
	}
	w := doRequest(srv, "PUT", "/v1/zones", "", ImportZonesRequest{
		Zones: []zones.Zone{{Code: "Z-CENTRAL", Name: "Central", Ring: ring, Active: true}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("import zone: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "GET", "/v1/zones", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list zones: expected 200, got %d", w.Code)
	}
	var resp struct {
		Zones []zones.Zone `json:"zones"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	for _, z := range resp.Zones {
		if z.Code == "Z-CENTRAL" {
			return z.ID
		}
	}
	t.Fatal("imported zone not listed")
	return 0
}

func pushBatch(t *testing.T, srv *Server, path string, batch syncpkg.Batch) syncpkg.BatchResponse {
	t.Helper()
	w := doRequest(srv, "POST", path, "", batch)
	if w.Code != http.StatusOK {
		t.Fatalf("push %s: expected 200, got %d: %s", path, w.Code, w.Body.String())
	}
	var resp syncpkg.BatchResponse
	json.NewDecoder(w.Body).Decode(&resp)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestTaskSyncAndCompletionInsideZone(t *testing.T) {
	srv, _ := newTestServer(t)
	zoneID := importTestZone(t, srv)

	// Device creates the task offline.
	resp := pushBatch(t, srv, "/v1/sync/tasks", syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "t-001",
			ClientVersion: 0,
			Payload:       map[string]any{"status": "pending", "zone_id": zoneID, "notes": "inspect drain"},
		}},
	})
	if resp.SuccessCount != 1 {
		t.Fatalf("create: expected 1 success, got %+v", resp)
	}
	serverID := resp.Results[0].ServerID
	if serverID == 0 {
		t.Fatal("create: expected server id")
	}

	// Completion from inside the zone.
	resp = pushBatch(t, srv, "/v1/sync/tasks", syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "t-001",
			ServerID:      serverID,
			ClientVersion: 1,
			Payload: map[string]any{
				"status": "completed", "latitude": 31.905, "longitude": 35.205,
			},
		}},
	})
	if resp.Results[0].Outcome != syncpkg.Applied {
		t.Fatalf("complete: expected applied, got %+v", resp.Results[0])
	}

	// Supervisor approves.
	w := doRequest(srv, "POST", fmt.Sprintf("/v1/tasks/%d/review", serverID), "", ReviewRequest{Approve: true, Notes: "good work"})
	if w.Code != http.StatusOK {
		t.Fatalf("review: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var e models.Entity
	json.NewDecoder(w.Body).Decode(&e)
	if e.State != string(models.TaskApproved) {
		t.Fatalf("expected approved, got %s", e.State)
	}
	if e.Payload["review_notes"] != "good work" {
		t.Fatalf("expected review notes, got %v", e.Payload["review_notes"])
	}
}

func TestBatchReplayIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	importTestZone(t, srv)

	batch := syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "i-001",
			ClientVersion: 0,
			Payload:       map[string]any{"title": "broken light", "severity": "low"},
		}},
	}

	first := pushBatch(t, srv, "/v1/sync/issues", batch)
	if first.Results[0].Outcome != syncpkg.Applied {
		t.Fatalf("first push: expected applied, got %+v", first.Results[0])
	}

	// Same upload again, as a device retrying after a lost response.
	second := pushBatch(t, srv, "/v1/sync/issues", batch)
	if second.Results[0].Outcome != syncpkg.DuplicateIgnored {
		t.Fatalf("replay: expected duplicate_ignored, got %+v", second.Results[0])
	}
	if second.Results[0].ServerID != first.Results[0].ServerID {
		t.Fatal("replay must resolve to the same server id")
	}
}

func TestSyncBatchAuditLog(t *testing.T) {
	srv, _ := newTestServer(t)
	importTestZone(t, srv)

	pushBatch(t, srv, "/v1/sync/issues", syncpkg.Batch{
		DeviceID: "dev-audit",
		Items: []syncpkg.ChangeRecord{
			{ClientID: "i-001", ClientVersion: 0, Payload: map[string]any{"title": "a"}},
			{ClientID: "", ClientVersion: 0, Payload: map[string]any{"title": "b"}},
		},
	})

	w := doRequest(srv, "GET", "/v1/sync/batches?device=dev-audit", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list batches: expected 200, got %d", w.Code)
	}
	var resp struct {
		Batches []store.BatchRecord `json:"batches"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Batches) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(resp.Batches))
	}
	b := resp.Batches[0]
	if b.TotalItems != 2 || b.SuccessCount != 1 || b.FailureCount != 1 {
		t.Fatalf("unexpected audit row: %+v", b)
	}
}

func TestSyncRejectsOversizedBatch(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.MaxBatchItems = 2
	})
	importTestZone(t, srv)

	items := make([]syncpkg.ChangeRecord, 3)
	for i := range items {
		items[i] = syncpkg.ChangeRecord{
			ClientID:      fmt.Sprintf("i-%03d", i),
			ClientVersion: 0,
			Payload:       map[string]any{"title": "x"},
		}
	}
	w := doRequest(srv, "POST", "/v1/sync/issues", "", syncpkg.Batch{DeviceID: "dev-1", Items: items})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeviceAuthEnforced(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.RequireDeviceAuth = true
	})
	importTestZone(t, srv)

	batch := syncpkg.Batch{
		DeviceID: "dev-1",
		Items:    []syncpkg.ChangeRecord{{ClientID: "i-001", ClientVersion: 0, Payload: map[string]any{"title": "x"}}},
	}

	// No key: rejected.
	w := doRequest(srv, "POST", "/v1/sync/issues", "", batch)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// Provision a key and retry.
	w = doRequest(srv, "POST", "/v1/devices/keys", "", CreateDeviceKeyRequest{DeviceID: "dev-1", Name: "tablet"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create key: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var keyResp struct {
		Key string `json:"key"`
	}
	json.NewDecoder(w.Body).Decode(&keyResp)
	if keyResp.Key == "" {
		t.Fatal("expected plaintext key")
	}

	w = doRequest(srv, "POST", "/v1/sync/issues", keyResp.Key, batch)
	if w.Code != http.StatusOK {
		t.Fatalf("authed push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Garbage key: rejected.
	w = doRequest(srv, "POST", "/v1/sync/issues", "fs_live_notarealkey", batch)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad key: expected 401, got %d", w.Code)
	}
}

func TestAppealReinstatesRejectedTask(t *testing.T) {
	srv, st := newTestServer(t)
	zoneID := importTestZone(t, srv)

	resp := pushBatch(t, srv, "/v1/sync/tasks", syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "t-001",
			ClientVersion: 0,
			Payload:       map[string]any{"status": "pending", "zone_id": zoneID, "worker_id": 7},
		}},
	})
	serverID := resp.Results[0].ServerID

	// Two completion attempts from far outside the zone.
	for v := 1; v <= 2; v++ {
		resp = pushBatch(t, srv, "/v1/sync/tasks", syncpkg.Batch{
			DeviceID: "dev-1",
			Items: []syncpkg.ChangeRecord{{
				ClientID:      "t-001",
				ServerID:      serverID,
				ClientVersion: v,
				Payload:       map[string]any{"status": "completed", "latitude": 31.990, "longitude": 35.205},
			}},
		})
		if !resp.Results[0].Success {
			t.Fatalf("attempt %d: expected success result, got %+v", v, resp.Results[0])
		}
	}
	e, err := st.EntityByServerID(t.Context(), models.KindTask, serverID)
	if err != nil || e == nil {
		t.Fatalf("load entity: %v", err)
	}
	if e.State != string(models.TaskRejected) {
		t.Fatalf("expected rejected after two strikes, got %s", e.State)
	}

	// Worker appeals, supervisor approves.
	w := doRequest(srv, "POST", "/v1/appeals", "", SubmitAppealRequest{
		EntityKind:  models.KindTask,
		EntityID:    serverID,
		WorkerID:    7,
		Explanation: "GPS lost signal inside the pump house",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit appeal: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var a models.Appeal
	json.NewDecoder(w.Body).Decode(&a)

	// A second appeal for the same entity conflicts.
	w = doRequest(srv, "POST", "/v1/appeals", "", SubmitAppealRequest{
		EntityKind: models.KindTask, EntityID: serverID, WorkerID: 7, Explanation: "again",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate appeal: expected 409, got %d", w.Code)
	}

	w = doRequest(srv, "POST", fmt.Sprintf("/v1/appeals/%d/review", a.ID), "", ReviewAppealRequest{
		ReviewerID: 99, Approve: true, Notes: "verified with site log",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("review appeal: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	e, _ = st.EntityByServerID(t.Context(), models.KindTask, serverID)
	if e.State != string(models.TaskApproved) {
		t.Fatalf("expected approved after reinstatement, got %s", e.State)
	}
}

func TestAttendanceManualReview(t *testing.T) {
	srv, _ := newTestServer(t)
	importTestZone(t, srv)

	// Check-in without GPS routes to manual approval.
	resp := pushBatch(t, srv, "/v1/sync/attendance", syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "a-001",
			ClientVersion: 0,
			Payload:       map[string]any{"check_in_at": "2026-03-10T07:00:00Z", "manual_reason": "no signal"},
		}},
	})
	serverID := resp.Results[0].ServerID

	w := doRequest(srv, "POST", fmt.Sprintf("/v1/attendance/%d/review", serverID), "", ReviewRequest{Approve: true})
	if w.Code != http.StatusOK {
		t.Fatalf("review: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var e models.Entity
	json.NewDecoder(w.Body).Decode(&e)
	if e.State != string(models.AttendanceApproved) {
		t.Fatalf("expected approved, got %s", e.State)
	}

	// A second verdict hits a terminal state.
	w = doRequest(srv, "POST", fmt.Sprintf("/v1/attendance/%d/review", serverID), "", ReviewRequest{Approve: false})
	if w.Code != http.StatusConflict {
		t.Fatalf("double review: expected 409, got %d", w.Code)
	}
}

func TestZoneImportReplace(t *testing.T) {
	srv, _ := newTestServer(t)

	ring := []geo.Vertex{
		{Lat: 31.900, Lon: 35.200}, {Lat: 31.910, Lon: 35.200},
		{Lat: 31.910, Lon: 35.210}, {Lat: 31.900, Lon: 35.210},
	}
	w := doRequest(srv, "PUT", "/v1/zones", "", ImportZonesRequest{
		Zones: []zones.Zone{
			{Code: "Z-A", Name: "A", Ring: ring, Active: true},
			{Code: "Z-B", Name: "B", Ring: ring, Active: true},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "PUT", "/v1/zones", "", ImportZonesRequest{
		Zones:   []zones.Zone{{Code: "Z-A", Name: "A v2", Ring: ring, Active: true}},
		Replace: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("replace: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["deactivated"] != 1 {
		t.Fatalf("expected 1 deactivated, got %d", resp["deactivated"])
	}
	if resp["active"] != 1 {
		t.Fatalf("expected 1 active zone, got %d", resp["active"])
	}
}

func TestAdminTokenEnforced(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.AdminToken = "sup3r"
	})

	ring := []geo.Vertex{
		{Lat: 31.900, Lon: 35.200}, {Lat: 31.910, Lon: 35.200},
		{Lat: 31.910, Lon: 35.210}, {Lat: 31.900, Lon: 35.210},
	}
	body, _ := json.Marshal(ImportZonesRequest{
		Zones: []zones.Zone{{Code: "Z-A", Name: "A", Ring: ring, Active: true}},
	})

	req := httptest.NewRequest("PUT", "/v1/zones", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("no token: expected 403, got %d", w.Code)
	}

	req = httptest.NewRequest("PUT", "/v1/zones", bytes.NewReader(body))
	req.Header.Set("X-Admin-Token", "sup3r")
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("with token: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSyncRateLimit(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.RateLimitSync = 3
	})
	importTestZone(t, srv)

	for i := 1; i <= 4; i++ {
		w := doRequest(srv, "POST", "/v1/sync/issues", "", syncpkg.Batch{
			DeviceID: "dev-rl",
			Items: []syncpkg.ChangeRecord{{
				ClientID:      fmt.Sprintf("i-rl-%03d", i),
				ClientVersion: 0,
				Payload:       map[string]any{"title": "rl"},
			}},
		})
		if i <= 3 {
			if w.Code != http.StatusOK {
				t.Fatalf("push %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
			}
		} else if w.Code != http.StatusTooManyRequests {
			t.Fatalf("push %d: expected 429, got %d", i, w.Code)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	importTestZone(t, srv)

	pushBatch(t, srv, "/v1/sync/issues", syncpkg.Batch{
		DeviceID: "dev-1",
		Items:    []syncpkg.ChangeRecord{{ClientID: "i-001", ClientVersion: 0, Payload: map[string]any{"title": "x"}}},
	})

	w := doRequest(srv, "GET", "/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)
	if status.ZoneCount != 1 {
		t.Fatalf("expected 1 zone, got %d", status.ZoneCount)
	}
	if status.EntityCounts["issue/reported"] != 1 {
		t.Fatalf("expected 1 reported issue, got %v", status.EntityCounts)
	}
	if status.Metrics.BatchesProcessed != 1 {
		t.Fatalf("expected 1 batch processed, got %d", status.Metrics.BatchesProcessed)
	}
	if len(status.Batches) != 1 {
		t.Fatalf("expected 1 recent batch, got %d", len(status.Batches))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(srv, "GET", "/healthz", "", nil)
	w := doRequest(srv, "GET", "/metricz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap MetricsSnapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.Requests < 1 {
		t.Fatalf("expected at least 1 request recorded, got %d", snap.Requests)
	}
}

func TestWorkerWarningCountedOnBorderlineCompletion(t *testing.T) {
	srv, st := newTestServer(t)
	zoneID := importTestZone(t, srv)

	w := doRequest(srv, "POST", "/v1/workers", "", CreateWorkerRequest{Name: "Rami", DeviceID: "dev-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create worker: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]int64
	json.NewDecoder(w.Body).Decode(&created)
	workerID := created["id"]

	resp := pushBatch(t, srv, "/v1/sync/tasks", syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "t-001",
			ClientVersion: 0,
			Payload:       map[string]any{"status": "pending", "zone_id": zoneID, "worker_id": workerID},
		}},
	})
	serverID := resp.Results[0].ServerID

	// Outside the ring, inside the accept-with-warning band.
	resp = pushBatch(t, srv, "/v1/sync/tasks", syncpkg.Batch{
		DeviceID: "dev-1",
		Items: []syncpkg.ChangeRecord{{
			ClientID:      "t-001",
			ServerID:      serverID,
			ClientVersion: 1,
			Payload:       map[string]any{"status": "completed", "latitude": 31.9105, "longitude": 35.205},
		}},
	})
	if resp.Results[0].Outcome != syncpkg.Applied {
		t.Fatalf("expected applied, got %+v", resp.Results[0])
	}
	if resp.Results[0].Message == "" {
		t.Fatal("expected a warning annotation")
	}

	worker, err := st.WorkerByID(t.Context(), workerID)
	if err != nil || worker == nil {
		t.Fatalf("load worker: %v", err)
	}
	if worker.WarningCount != 1 {
		t.Fatalf("expected 1 warning, got %d", worker.WarningCount)
	}
}
