package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nadim/fieldsync/internal/geo"
	"github.com/nadim/fieldsync/internal/models"
	"github.com/nadim/fieldsync/internal/zones"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	s, err := New(conn)
	if err != nil {
		t.Fatalf("init test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsFreshDatabase(t *testing.T) {
	s := newTestStore(t)
	if got := s.getSchemaVersion(); got != SchemaVersion {
		t.Errorf("schema version = %d, want %d", got, SchemaVersion)
	}
	// Running again is a no-op.
	n, err := s.RunMigrations()
	if err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if n != 0 {
		t.Errorf("migrations run on current schema = %d, want 0", n)
	}
}

func taskEntity(clientID string) *models.Entity {
	return &models.Entity{
		Kind: models.KindTask, ClientID: clientID, DeviceID: "dev1",
		WorkerID: 3, ZoneID: 1, Version: 0, State: string(models.TaskPending),
		Payload: map[string]any{
			models.FieldStatus: string(models.TaskPending),
			models.FieldNotes:  "check hydrant",
		},
	}
}

func TestEntityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateEntity(ctx, taskEntity("c-1"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	e, err := s.EntityByServerID(ctx, models.KindTask, id)
	if err != nil {
		t.Fatalf("EntityByServerID: %v", err)
	}
	if e == nil {
		t.Fatal("entity not found")
	}
	if e.ClientID != "c-1" || e.State != string(models.TaskPending) || e.Version != 0 {
		t.Errorf("entity = %+v", e)
	}
	if e.Payload[models.FieldNotes] != "check hydrant" {
		t.Errorf("payload = %v", e.Payload)
	}
	if e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}

	byClient, err := s.EntityByClientID(ctx, models.KindTask, "c-1")
	if err != nil {
		t.Fatalf("EntityByClientID: %v", err)
	}
	if byClient == nil || byClient.ServerID != id {
		t.Errorf("lookup by client id = %+v", byClient)
	}

	// Wrong kind does not match.
	if e, _ := s.EntityByServerID(ctx, models.KindIssue, id); e != nil {
		t.Error("kind filter ignored")
	}
	if e, _ := s.EntityByClientID(ctx, models.KindTask, "ghost"); e != nil {
		t.Error("unknown client id should return nil")
	}
}

func TestEntityClientIDUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateEntity(ctx, taskEntity("dup")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.CreateEntity(ctx, taskEntity("dup")); err == nil {
		t.Fatal("duplicate client id accepted")
	}
	// Server-created rows without a client id never collide.
	for i := 0; i < 2; i++ {
		e := taskEntity("")
		if _, err := s.CreateEntity(ctx, e); err != nil {
			t.Fatalf("create without client id: %v", err)
		}
	}
}

func TestEntityCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.CreateEntity(ctx, taskEntity("cas-1"))
	e, _ := s.EntityByServerID(ctx, models.KindTask, id)

	e.Version = 1
	e.State = string(models.TaskInProgress)
	e.Payload[models.FieldStatus] = e.State
	ok, err := s.UpdateEntity(ctx, e, 0)
	if err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}
	if !ok {
		t.Fatal("CAS with matching version failed")
	}

	// Stale expectVersion loses.
	e.Version = 2
	ok, err = s.UpdateEntity(ctx, e, 0)
	if err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}
	if ok {
		t.Fatal("CAS with stale version succeeded")
	}

	fresh, _ := s.EntityByServerID(ctx, models.KindTask, id)
	if fresh.Version != 1 || fresh.State != string(models.TaskInProgress) {
		t.Errorf("stored entity = v%d %s", fresh.Version, fresh.State)
	}
}

func TestListEntitiesAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateEntity(ctx, taskEntity("l-1"))
	inProg := taskEntity("l-2")
	inProg.State = string(models.TaskInProgress)
	s.CreateEntity(ctx, inProg)

	all, err := s.ListEntities(ctx, models.KindTask, "", 10)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}

	pending, err := s.ListEntities(ctx, models.KindTask, string(models.TaskPending), 10)
	if err != nil {
		t.Fatalf("ListEntities filtered: %v", err)
	}
	if len(pending) != 1 || pending[0].ClientID != "l-1" {
		t.Errorf("filtered = %+v", pending)
	}

	counts, err := s.EntityStateCounts(ctx)
	if err != nil {
		t.Fatalf("EntityStateCounts: %v", err)
	}
	if counts["task/pending"] != 1 || counts["task/in_progress"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func testRing() []geo.Vertex {
	return []geo.Vertex{
		{Lat: 31.900, Lon: 35.200},
		{Lat: 31.910, Lon: 35.200},
		{Lat: 31.910, Lon: 35.210},
		{Lat: 31.900, Lon: 35.210},
	}
}

func TestZoneUpsertAndIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertZone(ctx, zones.Zone{Code: "Z-01", Name: "North", Ring: testRing(), Active: true})
	if err != nil {
		t.Fatalf("UpsertZone: %v", err)
	}

	// Re-import with the same code bumps the version, keeps the id.
	id2, err := s.UpsertZone(ctx, zones.Zone{Code: "Z-01", Name: "North v2", Ring: testRing(), Active: true})
	if err != nil {
		t.Fatalf("UpsertZone update: %v", err)
	}
	if id2 != id {
		t.Errorf("upsert changed id: %d -> %d", id, id2)
	}

	zs, err := s.ListZones(ctx)
	if err != nil {
		t.Fatalf("ListZones: %v", err)
	}
	if len(zs) != 1 || zs[0].Version != 2 || zs[0].Name != "North v2" {
		t.Errorf("zones = %+v", zs)
	}
	if len(zs[0].Ring) != 4 {
		t.Errorf("ring length = %d", len(zs[0].Ring))
	}

	idx, err := s.LoadZoneIndex(ctx)
	if err != nil {
		t.Fatalf("LoadZoneIndex: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("index len = %d", idx.Len())
	}

	if err := s.DeactivateZone(ctx, "Z-01"); err != nil {
		t.Fatalf("DeactivateZone: %v", err)
	}
	idx, _ = s.LoadZoneIndex(ctx)
	if idx.Len() != 0 {
		t.Error("deactivated zone still indexed")
	}

	if _, err := s.UpsertZone(ctx, zones.Zone{Code: "BAD", Ring: testRing()[:2], Active: true}); err == nil {
		t.Error("degenerate ring accepted")
	}
}

func TestAppealLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.Appeal{
		EntityKind: models.KindTask, EntityID: 12, WorkerID: 3,
		Explanation: "GPS glitch", Status: models.AppealPending,
	}
	id, err := s.CreateAppeal(ctx, a)
	if err != nil {
		t.Fatalf("CreateAppeal: %v", err)
	}

	// One appeal per entity.
	if _, err := s.CreateAppeal(ctx, a); err == nil {
		t.Fatal("second appeal for same entity accepted")
	}

	got, err := s.AppealByID(ctx, id)
	if err != nil {
		t.Fatalf("AppealByID: %v", err)
	}
	if got == nil || got.Status != models.AppealPending || got.SubmittedAt.IsZero() {
		t.Fatalf("appeal = %+v", got)
	}

	byEntity, err := s.AppealByEntity(ctx, models.KindTask, 12)
	if err != nil {
		t.Fatalf("AppealByEntity: %v", err)
	}
	if byEntity == nil || byEntity.ID != id {
		t.Errorf("by entity = %+v", byEntity)
	}

	now := time.Now().UTC()
	got.Status = models.AppealApproved
	got.ReviewedBy = 99
	got.ReviewNotes = "checks out"
	got.ReviewedAt = &now
	if err := s.UpdateAppeal(ctx, got); err != nil {
		t.Fatalf("UpdateAppeal: %v", err)
	}

	reviewed, _ := s.AppealByID(ctx, id)
	if reviewed.Status != models.AppealApproved || reviewed.ReviewedAt == nil {
		t.Errorf("reviewed = %+v", reviewed)
	}

	pending, err := s.ListAppeals(ctx, models.AppealPending, 10)
	if err != nil {
		t.Fatalf("ListAppeals: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestWorkerWarnings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateWorker(ctx, "Samir", "dev1")
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	if err := s.AddWorkerWarning(ctx, id, "completed 180m outside zone"); err != nil {
		t.Fatalf("AddWorkerWarning: %v", err)
	}
	if err := s.AddWorkerWarning(ctx, id, "checked in 140m outside zone"); err != nil {
		t.Fatalf("AddWorkerWarning: %v", err)
	}

	w, err := s.WorkerByID(ctx, id)
	if err != nil {
		t.Fatalf("WorkerByID: %v", err)
	}
	if w.WarningCount != 2 || w.LastWarningAt == nil {
		t.Errorf("worker = %+v", w)
	}
	if !strings.Contains(w.LastWarningReason, "checked in") {
		t.Errorf("last reason = %q", w.LastWarningReason)
	}

	if err := s.AddWorkerWarning(ctx, 9999, "x"); err == nil {
		t.Error("warning for unknown worker accepted")
	}
}

func TestTemplatesDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.CreateTemplate(ctx, &models.TaskTemplate{
		Title: "inspect pump station", ZoneID: 1, IntervalMinutes: 60, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	// Never generated: due immediately.
	due, err := s.DueTemplates(ctx, now)
	if err != nil {
		t.Fatalf("DueTemplates: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d, want 1", len(due))
	}

	if err := s.MarkTemplateGenerated(ctx, id, now); err != nil {
		t.Fatalf("MarkTemplateGenerated: %v", err)
	}
	if due, _ = s.DueTemplates(ctx, now.Add(30*time.Minute)); len(due) != 0 {
		t.Errorf("due after 30m = %d, want 0", len(due))
	}
	if due, _ = s.DueTemplates(ctx, now.Add(61*time.Minute)); len(due) != 1 {
		t.Errorf("due after 61m = %d, want 1", len(due))
	}

	if err := s.SetTemplateActive(ctx, id, false); err != nil {
		t.Fatalf("SetTemplateActive: %v", err)
	}
	if due, _ = s.DueTemplates(ctx, now.Add(2*time.Hour)); len(due) != 0 {
		t.Error("inactive template still due")
	}

	if _, err := s.CreateTemplate(ctx, &models.TaskTemplate{Title: "bad", IntervalMinutes: 0}); err == nil {
		t.Error("zero interval accepted")
	}
}

func TestBatchAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	clientTime := time.Now().UTC().Add(-2 * time.Minute)

	for i := 0; i < 3; i++ {
		err := s.RecordBatch(ctx, BatchRecord{
			DeviceID: "dev1", TotalItems: 5, SuccessCount: 4, FailureCount: 1, ClientTime: &clientTime,
		})
		if err != nil {
			t.Fatalf("RecordBatch: %v", err)
		}
	}
	s.RecordBatch(ctx, BatchRecord{DeviceID: "dev2", TotalItems: 1, SuccessCount: 1})

	all, err := s.RecentBatches(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	if all[0].DeviceID != "dev2" {
		t.Errorf("newest first: got %s", all[0].DeviceID)
	}

	dev1, err := s.RecentBatches(ctx, "dev1", 2)
	if err != nil {
		t.Fatalf("RecentBatches dev1: %v", err)
	}
	if len(dev1) != 2 || dev1[0].ClientTime == nil {
		t.Errorf("dev1 batches = %+v", dev1)
	}
}

func TestDeviceKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plaintext, key, err := s.GenerateDeviceKey(ctx, "dev1", "tablet 4")
	if err != nil {
		t.Fatalf("GenerateDeviceKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, "fs_live_") {
		t.Errorf("plaintext prefix: %s", plaintext[:8])
	}
	if !strings.HasPrefix(key.ID, "dk_") {
		t.Errorf("key id: %s", key.ID)
	}

	verified, err := s.VerifyDeviceKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("VerifyDeviceKey: %v", err)
	}
	if verified == nil || verified.DeviceID != "dev1" {
		t.Fatalf("verified = %+v", verified)
	}
	if verified.LastUsedAt == nil {
		t.Error("last_used_at not stamped")
	}

	if unknown, _ := s.VerifyDeviceKey(ctx, "fs_live_notakey"); unknown != nil {
		t.Error("unknown key verified")
	}

	keys, err := s.ListDeviceKeys(ctx, "dev1")
	if err != nil {
		t.Fatalf("ListDeviceKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys = %d, want 1", len(keys))
	}

	if err := s.RevokeDeviceKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeDeviceKey: %v", err)
	}
	if gone, _ := s.VerifyDeviceKey(ctx, plaintext); gone != nil {
		t.Error("revoked key still verifies")
	}
}
