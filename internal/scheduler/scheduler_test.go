package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

type fakeStore struct {
	templates []*models.TaskTemplate
	created   []*models.Entity
	failDue   bool
}

func (s *fakeStore) DueTemplates(_ context.Context, now time.Time) ([]*models.TaskTemplate, error) {
	if s.failDue {
		return nil, errors.New("store offline")
	}
	var due []*models.TaskTemplate
	for _, t := range s.templates {
		interval := time.Duration(t.IntervalMinutes) * time.Minute
		if t.Active && (t.LastGeneratedAt.IsZero() || now.Sub(t.LastGeneratedAt) >= interval) {
			due = append(due, t)
		}
	}
	return due, nil
}

func (s *fakeStore) MarkTemplateGenerated(_ context.Context, id int64, at time.Time) error {
	for _, t := range s.templates {
		if t.ID == id {
			t.LastGeneratedAt = at
			return nil
		}
	}
	return errors.New("template not found")
}

func (s *fakeStore) CreateEntity(_ context.Context, e *models.Entity) (int64, error) {
	s.created = append(s.created, e.Clone())
	return int64(len(s.created)), nil
}

func TestRunOnceGeneratesDueTasks(t *testing.T) {
	store := &fakeStore{templates: []*models.TaskTemplate{
		{ID: 1, Title: "inspect pump", ZoneID: 4, AssigneeID: 7, IntervalMinutes: 60, Active: true},
		{ID: 2, Title: "sweep lot", IntervalMinutes: 30, Active: false},
	}}
	s := New(store, time.Minute, slog.New(slog.DiscardHandler))

	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("created = %d, want 1", n)
	}

	e := store.created[0]
	if e.Kind != models.KindTask || e.State != string(models.TaskPending) {
		t.Errorf("entity = %+v", e)
	}
	if e.ZoneID != 4 || e.WorkerID != 7 {
		t.Errorf("assignment: zone=%d worker=%d", e.ZoneID, e.WorkerID)
	}
	if e.Payload["title"] != "inspect pump" || e.Payload["template_id"] != int64(1) {
		t.Errorf("payload = %v", e.Payload)
	}

	// The template is no longer due.
	n, err = s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("created on second run = %d, want 0", n)
	}
}

func TestRunOnceStoreError(t *testing.T) {
	store := &fakeStore{failDue: true}
	s := New(store, time.Minute, slog.New(slog.DiscardHandler))
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("want error when store is down")
	}
}
