// Package scheduler runs the fixed-interval loop that instantiates pending
// tasks from recurring templates. It creates entities only; it carries no
// sync or geofence semantics.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	DueTemplates(ctx context.Context, now time.Time) ([]*models.TaskTemplate, error)
	MarkTemplateGenerated(ctx context.Context, id int64, at time.Time) error
	CreateEntity(ctx context.Context, e *models.Entity) (int64, error)
}

// Scheduler polls for due templates and creates one pending task per due
// template per tick.
type Scheduler struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, interval: interval, logger: logger, now: time.Now}
}

// Run polls until the context is cancelled. One failing tick is logged and
// the loop continues.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("task scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("task scheduler stopped")
			return
		case <-ticker.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("template generation tick failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("generated tasks from templates", "count", n)
			}
		}
	}
}

// RunOnce generates tasks for every currently due template and returns how
// many were created.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.DueTemplates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load due templates: %w", err)
	}

	created := 0
	for _, tpl := range due {
		e := &models.Entity{
			Kind:     models.KindTask,
			WorkerID: tpl.AssigneeID,
			ZoneID:   tpl.ZoneID,
			State:    string(models.TaskPending),
			Payload: map[string]any{
				models.FieldStatus: string(models.TaskPending),
				"title":            tpl.Title,
				"description":      tpl.Description,
				"template_id":      tpl.ID,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := s.store.CreateEntity(ctx, e)
		if err != nil {
			return created, fmt.Errorf("create task for template %d: %w", tpl.ID, err)
		}
		if err := s.store.MarkTemplateGenerated(ctx, tpl.ID, now); err != nil {
			return created, fmt.Errorf("mark template %d: %w", tpl.ID, err)
		}
		created++
		s.logger.Debug("task generated", "template_id", tpl.ID, "task_id", id, "zone_id", tpl.ZoneID)
	}
	return created, nil
}
