package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadim/fieldsync/internal/geo"
	"github.com/nadim/fieldsync/internal/models"
	"github.com/nadim/fieldsync/internal/workflow"
)

// EntityStore is the persistence surface the coordinator needs. Lookups
// return (nil, nil) when no row matches; UpdateEntity reports false when the
// stored version no longer matches expectVersion.
type EntityStore interface {
	EntityByServerID(ctx context.Context, kind models.EntityKind, serverID int64) (*models.Entity, error)
	EntityByClientID(ctx context.Context, kind models.EntityKind, clientID string) (*models.Entity, error)
	CreateEntity(ctx context.Context, e *models.Entity) (int64, error)
	UpdateEntity(ctx context.Context, e *models.Entity, expectVersion int) (bool, error)
}

// ZoneCatalog supplies candidate zone polygons for geofence validation. A
// zero zoneID means "no pinned zone, consider all".
type ZoneCatalog interface {
	Candidates(zoneID int64) ([]geo.Polygon, error)
}

// WarningSink receives worker warning counter bumps for borderline geofence
// outcomes. Failures are logged, never surfaced to the device.
type WarningSink interface {
	AddWorkerWarning(ctx context.Context, workerID int64, reason string) error
}

// Coordinator processes device batches: it maps each change record onto a
// stored entity, runs the version resolver and, where the record changes
// lifecycle state, the state machines and geofence engine. Stateless per
// call; concurrent batches contend only through the store's compare-and-set.
type Coordinator struct {
	store      EntityStore
	zones      ZoneCatalog
	thresholds geo.Thresholds
	tasks      *workflow.Machine
	attendance *workflow.Machine
	issues     *workflow.Machine
	warnings   WarningSink
	logger     *slog.Logger
	now        func() time.Time
}

func NewCoordinator(store EntityStore, catalog ZoneCatalog, th geo.Thresholds, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		zones:      catalog,
		thresholds: th,
		tasks:      workflow.TaskMachine(),
		attendance: workflow.AttendanceMachine(),
		issues:     workflow.IssueMachine(),
		logger:     logger,
		now:        time.Now,
	}
}

// SetWarningSink wires worker warning bookkeeping into the coordinator.
// Without a sink, borderline outcomes are still annotated but not counted.
func (c *Coordinator) SetWarningSink(s WarningSink) {
	c.warnings = s
}

func (c *Coordinator) noteWarning(ctx context.Context, workerID int64, reason string) {
	if c.warnings == nil || workerID == 0 || reason == "" {
		return
	}
	if err := c.warnings.AddWorkerWarning(ctx, workerID, reason); err != nil {
		c.logger.Warn("worker warning not recorded", "worker_id", workerID, "err", err)
	}
}

// clockSkewWarn is the device clock drift beyond which a batch gets a
// diagnostic log line. Skew never affects ordering decisions.
const clockSkewWarn = 5 * time.Minute

// ProcessBatch applies every item of a device batch independently and
// returns per-item results. A storage failure aborts the whole batch with an
// error and no partial response; items already committed stay committed and
// are recovered as duplicates on retry.
func (c *Coordinator) ProcessBatch(ctx context.Context, deviceID string, clientTime time.Time, items []ChangeRecord) (*BatchResponse, error) {
	if !clientTime.IsZero() {
		if skew := c.now().Sub(clientTime); skew > clockSkewWarn || skew < -clockSkewWarn {
			c.logger.Warn("device clock skew", "device", deviceID, "skew", skew.Round(time.Second))
		}
	}

	resp := &BatchResponse{TotalItems: len(items), Results: make([]Result, 0, len(items))}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled after %d items: %w", i, err)
		}
		res, err := c.processItem(ctx, deviceID, items[i])
		if err != nil {
			return nil, fmt.Errorf("device %s item %d (%s): %w", deviceID, i, items[i].ClientID, err)
		}
		resp.Results = append(resp.Results, res)
		if res.Success {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
	}
	return resp, nil
}

// processItem handles one change record. A returned error means the store is
// unavailable and the batch must abort; every other failure becomes a failed
// Result so the rest of the batch proceeds.
func (c *Coordinator) processItem(ctx context.Context, deviceID string, item ChangeRecord) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic processing sync item", "device", deviceID, "client_id", item.ClientID, "panic", r)
			res = failed(item, "internal error processing item")
			err = nil
		}
	}()

	if msg, ok := validateItem(item); !ok {
		return failed(item, msg), nil
	}

	stored, err := c.lookup(ctx, item)
	if err != nil {
		return Result{}, err
	}
	if stored == nil {
		if item.ServerID != 0 {
			return failed(item, fmt.Sprintf("unknown server id %d", item.ServerID)), nil
		}
		return c.createEntity(ctx, deviceID, item)
	}
	return c.updateEntity(ctx, stored, item)
}

func (c *Coordinator) lookup(ctx context.Context, item ChangeRecord) (*models.Entity, error) {
	if item.ServerID != 0 {
		e, err := c.store.EntityByServerID(ctx, item.EntityType, item.ServerID)
		if err != nil {
			return nil, fmt.Errorf("load entity %d: %w", item.ServerID, err)
		}
		return e, nil
	}
	// Guards against re-uploading a batch whose response was lost.
	e, err := c.store.EntityByClientID(ctx, item.EntityType, item.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load entity by client id %s: %w", item.ClientID, err)
	}
	return e, nil
}

// createEntity materializes a record the server has never seen. The new
// entity's version mirrors the incoming client version so later replays land
// in the duplicate path.
func (c *Coordinator) createEntity(ctx context.Context, deviceID string, item ChangeRecord) (Result, error) {
	now := c.now().UTC()
	e := &models.Entity{
		Kind:      item.EntityType,
		ClientID:  item.ClientID,
		DeviceID:  deviceID,
		ZoneID:    payloadID(item.Payload, "zone_id"),
		WorkerID:  payloadID(item.Payload, "worker_id"),
		Version:   item.ClientVersion,
		State:     initialState(item.EntityType),
		Payload:   clientPayload(item.EntityType, item.Payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.Payload[models.FieldStatus] = e.State

	var annotation string
	var warned bool
	switch item.EntityType {
	case models.KindAttendance:
		annotation, warned = c.validateCheckIn(e, item)
	case models.KindTask:
		msg, w, failMsg, aerr := c.applyTaskState(e, item)
		if aerr != nil {
			return Result{}, aerr
		}
		if failMsg != "" {
			return failed(item, failMsg), nil
		}
		annotation, warned = msg, w
	}

	id, err := c.store.CreateEntity(ctx, e)
	if err != nil {
		// A concurrent upload of the same client id may have won the race.
		existing, lerr := c.store.EntityByClientID(ctx, item.EntityType, item.ClientID)
		if lerr == nil && existing != nil {
			return c.updateEntity(ctx, existing, item)
		}
		return Result{}, fmt.Errorf("create %s %s: %w", item.EntityType, item.ClientID, err)
	}
	e.ServerID = id
	if warned {
		c.noteWarning(ctx, e.WorkerID, annotation)
	}

	c.logger.Debug("entity created", "kind", e.Kind, "server_id", id, "client_id", e.ClientID, "state", e.State)
	return Result{
		ClientID:      item.ClientID,
		ServerID:      id,
		Success:       true,
		Outcome:       Applied,
		Message:       annotation,
		ServerVersion: e.Version,
	}, nil
}

// updateEntity runs the resolver against the stored entity and persists an
// effective update through a compare-and-set, re-reading once on a
// concurrent write.
func (c *Coordinator) updateEntity(ctx context.Context, stored *models.Entity, item ChangeRecord) (Result, error) {
	for attempt := 0; ; attempt++ {
		r := Resolve(stored, item)

		switch r.Outcome {
		case DuplicateIgnored:
			return Result{
				ClientID:      item.ClientID,
				ServerID:      stored.ServerID,
				Success:       true,
				Outcome:       DuplicateIgnored,
				Message:       r.Message,
				ServerVersion: stored.Version,
			}, nil
		case RejectedOutcome:
			res := failed(item, r.Message)
			res.ServerID = stored.ServerID
			res.ServerVersion = stored.Version
			return res, nil
		}

		updated := stored.Clone()
		updated.Payload = r.Payload
		updated.Version = stored.Version + 1
		updated.UpdatedAt = c.now().UTC()

		var annotation string
		var warned bool
		if r.Outcome == Applied {
			// Overridden conflicts never move workflow state: the status
			// field is server-authoritative in the merge.
			msg, w, failMsg, aerr := c.applyTaskState(updated, item)
			if aerr != nil {
				return Result{}, aerr
			}
			if failMsg != "" {
				res := failed(item, failMsg)
				res.ServerID = stored.ServerID
				res.ServerVersion = stored.Version
				return res, nil
			}
			annotation, warned = msg, w
		}

		ok, err := c.store.UpdateEntity(ctx, updated, stored.Version)
		if err != nil {
			return Result{}, fmt.Errorf("update %s %d: %w", updated.Kind, updated.ServerID, err)
		}
		if ok {
			if warned {
				c.noteWarning(ctx, updated.WorkerID, annotation)
			}
			c.logger.Debug("entity updated", "kind", updated.Kind, "server_id", updated.ServerID,
				"version", updated.Version, "outcome", r.Outcome)
			return Result{
				ClientID:           item.ClientID,
				ServerID:           updated.ServerID,
				Success:            true,
				Outcome:            r.Outcome,
				Message:            joinMessages(r.Message, annotation),
				ConflictResolution: r.Conflict,
				ServerVersion:      updated.Version,
			}, nil
		}

		if attempt > 0 {
			res := failed(item, "entity changed concurrently; retry the batch")
			res.ServerID = stored.ServerID
			return res, nil
		}
		stored, err = c.store.EntityByServerID(ctx, stored.Kind, stored.ServerID)
		if err != nil {
			return Result{}, fmt.Errorf("re-read entity %w", err)
		}
		if stored == nil {
			return failed(item, "entity disappeared during update"), nil
		}
	}
}

// applyTaskState moves a task toward the status the device asked for. It
// returns a worker-facing annotation for warned or rejected geofence
// outcomes, or a failure message for invalid transitions and unusable
// payloads. The error return is reserved for zone catalog failures.
func (c *Coordinator) applyTaskState(e *models.Entity, item ChangeRecord) (annotation string, warned bool, failMsg string, err error) {
	if e.Kind != models.KindTask {
		return "", false, "", nil
	}
	desired, _ := item.Payload[models.FieldStatus].(string)
	if desired == "" || desired == e.State {
		return "", false, "", nil
	}

	if desired != string(models.TaskCompleted) {
		if terr := c.tasks.Transition(e, desired, false); terr != nil {
			return "", false, terr.Error(), nil
		}
		return "", false, "", nil
	}

	// Completion is geofence-gated.
	pt, ok := pointFromPayload(item.Payload)
	if !ok {
		return "", false, "task completion requires a GPS fix", nil
	}
	candidates, err := c.zones.Candidates(e.ZoneID)
	if err != nil {
		return "", false, fmt.Sprintf("task zone unavailable: %v", err), nil
	}
	out := geo.Validate(pt, candidates, c.thresholds)

	// A device can legitimately complete a task it started offline.
	if e.State == string(models.TaskPending) {
		if terr := c.tasks.Transition(e, string(models.TaskInProgress), false); terr != nil {
			return "", false, terr.Error(), nil
		}
	}
	if e.State != string(models.TaskInProgress) {
		return "", false, (&workflow.TransitionError{Kind: e.Kind, From: e.State, To: desired}).Error(), nil
	}

	d, derr := workflow.ApplyTaskCompletion(c.tasks, e, out, c.now())
	if derr != nil {
		return "", false, derr.Error(), nil
	}
	return d.Message, d.Warned, "", nil
}

// validateCheckIn runs the geofence gate on a new attendance record and
// returns the worker-facing annotation, if any. Records without a usable
// fix fall back to the manual approval path.
func (c *Coordinator) validateCheckIn(e *models.Entity, item ChangeRecord) (string, bool) {
	pt, ok := pointFromPayload(item.Payload)
	if !ok {
		workflow.ApplyCheckIn(e, nil)
	} else {
		candidates, err := c.zones.Candidates(e.ZoneID)
		if err != nil {
			c.logger.Warn("zone catalog lookup failed for check-in", "zone_id", e.ZoneID, "err", err)
			workflow.ApplyCheckIn(e, nil)
		} else {
			out := geo.Validate(pt, candidates, c.thresholds)
			workflow.ApplyCheckIn(e, &out)
		}
	}
	warned, _ := e.Payload[models.FieldDistanceWarning].(bool)
	if msg, ok := e.Payload[models.FieldValidationMessage].(string); ok {
		return msg, warned
	}
	return "", warned
}

func validateItem(item ChangeRecord) (string, bool) {
	if item.ClientID == "" {
		return "missing client_id", false
	}
	if !item.EntityType.Valid() {
		return fmt.Sprintf("unknown entity type %q", item.EntityType), false
	}
	if item.ClientVersion < 0 {
		return fmt.Sprintf("invalid client_version %d", item.ClientVersion), false
	}
	if item.Payload == nil {
		return "missing payload", false
	}
	if lat, lon, present := rawCoordinates(item.Payload); present && !geo.ValidCoordinate(lat, lon) {
		return fmt.Sprintf("coordinate out of range: %.6f,%.6f", lat, lon), false
	}
	return "", true
}

func initialState(kind models.EntityKind) string {
	switch kind {
	case models.KindTask:
		return string(models.TaskPending)
	case models.KindAttendance:
		return string(models.AttendancePending)
	case models.KindIssue:
		return string(models.IssueReported)
	}
	return ""
}

// clientPayload keeps only the fields the device is authoritative for,
// so a new record can never seed server-owned bookkeeping.
func clientPayload(kind models.EntityKind, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for _, f := range models.ClientOwnedFields(kind) {
		if v, ok := payload[f]; ok {
			out[f] = v
		}
	}
	return out
}

func pointFromPayload(p map[string]any) (geo.Point, bool) {
	lat, lon, present := rawCoordinates(p)
	if !present || !geo.ValidCoordinate(lat, lon) {
		return geo.Point{}, false
	}
	pt := geo.Point{Lat: lat, Lon: lon}
	if acc, ok := toFloat(p[models.FieldAccuracyMeters]); ok {
		pt.AccuracyMeters = acc
	}
	return pt, true
}

func rawCoordinates(p map[string]any) (lat, lon float64, present bool) {
	lat, okLat := toFloat(p[models.FieldLatitude])
	lon, okLon := toFloat(p[models.FieldLongitude])
	return lat, lon, okLat && okLon
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func payloadID(p map[string]any, key string) int64 {
	if f, ok := toFloat(p[key]); ok {
		return int64(f)
	}
	return 0
}

func failed(item ChangeRecord, msg string) Result {
	return Result{ClientID: item.ClientID, Success: false, Outcome: RejectedOutcome, Message: msg}
}

func joinMessages(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
