// Package syncclient is the HTTP client for the fieldsync server, used by
// the fieldops CLI and the monitor TUI.
package syncclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for the fieldsync server.
type Client struct {
	BaseURL    string
	DeviceKey  string
	AdminToken string
	HTTP       *http.Client
}

// New creates a new client. DeviceKey authenticates sync endpoints,
// AdminToken the supervisor surface; either may be empty.
func New(baseURL, deviceKey, adminToken string) *Client {
	return &Client{
		BaseURL:    baseURL,
		DeviceKey:  deviceKey,
		AdminToken: adminToken,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Wire types (mirror internal/api, independently defined) ---

// Vertex is one polygon ring coordinate.
type Vertex struct {
	Lat float64
	Lon float64
}

// Zone is one authorization zone as exchanged with the server.
type Zone struct {
	ID       int64    `json:"id,omitempty"`
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	District string   `json:"district,omitempty"`
	Ring     []Vertex `json:"ring"`
	Version  int      `json:"version,omitempty"`
	Active   bool     `json:"active"`
}

// ChangeRecord is one client-authored mutation in an upload.
type ChangeRecord struct {
	ClientID        string         `json:"client_id"`
	ServerID        int64          `json:"server_id,omitempty"`
	ClientVersion   int            `json:"client_version"`
	ClientTimestamp time.Time      `json:"client_timestamp,omitempty"`
	Payload         map[string]any `json:"payload"`
}

// Batch is the body for POST /v1/sync/{tasks,attendance,issues}.
type Batch struct {
	DeviceID   string         `json:"device_id"`
	ClientTime time.Time      `json:"client_time,omitempty"`
	Items      []ChangeRecord `json:"items"`
}

// ItemResult is the per-item outcome returned by the server.
type ItemResult struct {
	ClientID      string `json:"client_id"`
	ServerID      int64  `json:"server_id,omitempty"`
	Success       bool   `json:"success"`
	Outcome       string `json:"outcome,omitempty"`
	Message       string `json:"message,omitempty"`
	ServerVersion int    `json:"server_version,omitempty"`
}

// BatchResponse summarizes one processed upload.
type BatchResponse struct {
	TotalItems   int          `json:"total_items"`
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	Results      []ItemResult `json:"results"`
}

// BatchRecord is one row of the server's sync audit log.
type BatchRecord struct {
	ID           int64  `json:"id"`
	DeviceID     string `json:"device_id"`
	TotalItems   int    `json:"total_items"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	ReceivedAt   string `json:"received_at"`
}

// Entity is a versioned server record.
type Entity struct {
	Kind      string         `json:"kind"`
	ServerID  int64          `json:"server_id"`
	ClientID  string         `json:"client_id"`
	DeviceID  string         `json:"device_id,omitempty"`
	WorkerID  int64          `json:"worker_id,omitempty"`
	ZoneID    int64          `json:"zone_id,omitempty"`
	Version   int            `json:"version"`
	State     string         `json:"state"`
	Payload   map[string]any `json:"payload"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Appeal is a worker's request to override an automatic rejection.
type Appeal struct {
	ID          int64  `json:"id"`
	EntityKind  string `json:"entity_kind"`
	EntityID    int64  `json:"entity_id"`
	WorkerID    int64  `json:"worker_id"`
	Explanation string `json:"explanation"`
	EvidenceURL string `json:"evidence_url,omitempty"`
	Status      string `json:"status"`
	ReviewedBy  int64  `json:"reviewed_by,omitempty"`
	ReviewNotes string `json:"review_notes,omitempty"`
	SubmittedAt string `json:"submitted_at"`
	ReviewedAt  string `json:"reviewed_at,omitempty"`
}

// Worker is a field worker account with its warning counters.
type Worker struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	DeviceID          string `json:"device_id,omitempty"`
	WarningCount      int    `json:"warning_count"`
	LastWarningReason string `json:"last_warning_reason,omitempty"`
}

// TaskTemplate is a recurring task definition.
type TaskTemplate struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ZoneID          int64  `json:"zone_id,omitempty"`
	AssigneeID      int64  `json:"assignee_id,omitempty"`
	IntervalMinutes int    `json:"interval_minutes"`
	Active          bool   `json:"active"`
}

// DeviceKeyMeta is a stored device credential without its secret.
type DeviceKeyMeta struct {
	ID         string `json:"id"`
	DeviceID   string `json:"device_id"`
	KeyPrefix  string `json:"key_prefix"`
	Name       string `json:"name"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// MetricsSnapshot mirrors the server's /metricz payload.
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

// StatusResponse mirrors GET /v1/status.
type StatusResponse struct {
	Metrics      MetricsSnapshot `json:"metrics"`
	EntityCounts map[string]int  `json:"entity_counts"`
	ZoneCount    int             `json:"zone_count"`
	Batches      []BatchRecord   `json:"recent_batches"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do("GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics fetches the server metrics snapshot.
func (c *Client) Metrics() (*MetricsSnapshot, error) {
	var resp MetricsSnapshot
	if err := c.do("GET", "/metricz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the aggregated operational status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do("GET", "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Sync ---

// syncPath maps an entity kind to its upload endpoint.
func syncPath(kind string) (string, error) {
	switch kind {
	case "task":
		return "/v1/sync/tasks", nil
	case "attendance":
		return "/v1/sync/attendance", nil
	case "issue":
		return "/v1/sync/issues", nil
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

// PushBatch uploads one batch of changes for the given entity kind.
func (c *Client) PushBatch(kind string, batch *Batch) (*BatchResponse, error) {
	path, err := syncPath(kind)
	if err != nil {
		return nil, err
	}
	var resp BatchResponse
	if err := c.do("POST", path, batch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecentBatches fetches the sync audit log.
func (c *Client) RecentBatches(deviceID string, limit int) ([]BatchRecord, error) {
	params := url.Values{}
	if deviceID != "" {
		params.Set("device", deviceID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Batches []BatchRecord `json:"batches"`
	}
	if err := c.do("GET", "/v1/sync/batches?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// --- Zones ---

// ImportZones uploads zone definitions. With replace set, active zones
// missing from the import are deactivated.
func (c *Client) ImportZones(zs []Zone, replace bool) error {
	body := map[string]any{"zones": zs, "replace": replace}
	return c.do("PUT", "/v1/zones", body, nil)
}

// ListZones fetches every stored zone.
func (c *Client) ListZones() ([]Zone, error) {
	var resp struct {
		Zones []Zone `json:"zones"`
	}
	if err := c.do("GET", "/v1/zones", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Zones, nil
}

// DeactivateZone retires a zone by code.
func (c *Client) DeactivateZone(code string) error {
	return c.do("DELETE", "/v1/zones/"+url.PathEscape(code), nil, nil)
}

// --- Appeals ---

// SubmitAppeal files an appeal against a rejected task or attendance record.
func (c *Client) SubmitAppeal(entityKind string, entityID, workerID int64, explanation, evidenceURL string) (*Appeal, error) {
	body := map[string]any{
		"entity_kind": entityKind,
		"entity_id":   entityID,
		"worker_id":   workerID,
		"explanation": explanation,
	}
	if evidenceURL != "" {
		body["evidence_url"] = evidenceURL
	}
	var resp Appeal
	if err := c.do("POST", "/v1/appeals", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAppeals fetches appeals, optionally filtered by status.
func (c *Client) ListAppeals(status string) ([]Appeal, error) {
	path := "/v1/appeals"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Appeals []Appeal `json:"appeals"`
	}
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Appeals, nil
}

// GetAppeal fetches one appeal by id.
func (c *Client) GetAppeal(id int64) (*Appeal, error) {
	var resp Appeal
	if err := c.do("GET", fmt.Sprintf("/v1/appeals/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewAppeal records a supervisor verdict on a pending appeal.
func (c *Client) ReviewAppeal(id, reviewerID int64, approve bool, notes string) (*Appeal, error) {
	body := map[string]any{"reviewer_id": reviewerID, "approve": approve, "notes": notes}
	var resp Appeal
	if err := c.do("POST", fmt.Sprintf("/v1/appeals/%d/review", id), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Entities & review ---

// ListEntities fetches entities of one kind, optionally filtered by state.
func (c *Client) ListEntities(kind, state string, limit int) ([]Entity, error) {
	params := url.Values{}
	if state != "" {
		params.Set("state", state)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Entities []Entity `json:"entities"`
	}
	if err := c.do("GET", "/v1/entities/"+kind+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

// ReviewTask records a supervisor verdict on a completed task.
func (c *Client) ReviewTask(id int64, approve bool, notes string) (*Entity, error) {
	return c.review(fmt.Sprintf("/v1/tasks/%d/review", id), approve, notes)
}

// ReviewAttendance records a supervisor verdict on a pending attendance
// record.
func (c *Client) ReviewAttendance(id int64, approve bool, notes string) (*Entity, error) {
	return c.review(fmt.Sprintf("/v1/attendance/%d/review", id), approve, notes)
}

func (c *Client) review(path string, approve bool, notes string) (*Entity, error) {
	body := map[string]any{"approve": approve, "notes": notes}
	var resp Entity
	if err := c.do("POST", path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Workers, templates, device keys ---

// CreateWorker registers a field worker account.
func (c *Client) CreateWorker(name, deviceID string) (int64, error) {
	body := map[string]string{"name": name, "device_id": deviceID}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do("POST", "/v1/workers", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// ListWorkers fetches every worker account.
func (c *Client) ListWorkers() ([]Worker, error) {
	var resp struct {
		Workers []Worker `json:"workers"`
	}
	if err := c.do("GET", "/v1/workers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workers, nil
}

// CreateTemplate registers a recurring task template.
func (c *Client) CreateTemplate(t TaskTemplate) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do("POST", "/v1/templates", t, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// ListTemplates fetches every task template.
func (c *Client) ListTemplates() ([]TaskTemplate, error) {
	var resp struct {
		Templates []TaskTemplate `json:"templates"`
	}
	if err := c.do("GET", "/v1/templates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

// CreateDeviceKey provisions a sync credential; the plaintext is returned
// exactly once.
func (c *Client) CreateDeviceKey(deviceID, name string) (string, *DeviceKeyMeta, error) {
	body := map[string]string{"device_id": deviceID, "name": name}
	var resp struct {
		Key  string        `json:"key"`
		Meta DeviceKeyMeta `json:"meta"`
	}
	if err := c.do("POST", "/v1/devices/keys", body, &resp); err != nil {
		return "", nil, err
	}
	return resp.Key, &resp.Meta, nil
}

// ListDeviceKeys fetches device credentials, optionally for one device.
func (c *Client) ListDeviceKeys(deviceID string) ([]DeviceKeyMeta, error) {
	path := "/v1/devices/keys"
	if deviceID != "" {
		path += "?device=" + url.QueryEscape(deviceID)
	}
	var resp struct {
		Keys []DeviceKeyMeta `json:"keys"`
	}
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// RevokeDeviceKey revokes a credential by key id.
func (c *Client) RevokeDeviceKey(keyID string) error {
	return c.do("DELETE", "/v1/devices/keys/"+url.PathEscape(keyID), nil, nil)
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.DeviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.DeviceKey)
	}
	if c.AdminToken != "" {
		req.Header.Set("X-Admin-Token", c.AdminToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error apiError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, envelope.Error.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, envelope.Error.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, envelope.Error.Message)
			default:
				return &envelope.Error
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
