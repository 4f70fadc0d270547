package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

// CreateTemplate registers a recurring task template.
func (s *Store) CreateTemplate(ctx context.Context, t *models.TaskTemplate) (int64, error) {
	if t.Title == "" {
		return 0, fmt.Errorf("template title required")
	}
	if t.IntervalMinutes <= 0 {
		return 0, fmt.Errorf("template interval must be positive, got %d", t.IntervalMinutes)
	}
	active := 0
	if t.Active {
		active = 1
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO task_templates (title, description, zone_id, assignee_id, interval_minutes, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.ZoneID, t.AssigneeID, t.IntervalMinutes, active,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// DueTemplates returns active templates whose interval has elapsed since
// their last generation, as of now.
func (s *Store) DueTemplates(ctx context.Context, now time.Time) ([]*models.TaskTemplate, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, title, description, zone_id, assignee_id, interval_minutes, active, last_generated_at, created_at
		 FROM task_templates WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var due []*models.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		interval := time.Duration(t.IntervalMinutes) * time.Minute
		if t.LastGeneratedAt.IsZero() || now.Sub(t.LastGeneratedAt) >= interval {
			due = append(due, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: iterate: %w", err)
	}
	return due, nil
}

// ListTemplates returns every template ordered by id.
func (s *Store) ListTemplates(ctx context.Context) ([]*models.TaskTemplate, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, title, description, zone_id, assignee_id, interval_minutes, active, last_generated_at, created_at
		 FROM task_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: iterate: %w", err)
	}
	return out, nil
}

// MarkTemplateGenerated records the instant a template last produced a task.
func (s *Store) MarkTemplateGenerated(ctx context.Context, id int64, at time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE task_templates SET last_generated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark template %d generated: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template %d not found", id)
	}
	return nil
}

// SetTemplateActive enables or disables a template.
func (s *Store) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := s.conn.ExecContext(ctx, `UPDATE task_templates SET active = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set template %d active: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template %d not found", id)
	}
	return nil
}

func scanTemplate(sc scanner) (*models.TaskTemplate, error) {
	var (
		t               models.TaskTemplate
		active          int
		lastGeneratedAt sql.NullString
		createdAt       string
	)
	err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.ZoneID, &t.AssigneeID,
		&t.IntervalMinutes, &active, &lastGeneratedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Active = active == 1
	if lastGeneratedAt.Valid && lastGeneratedAt.String != "" {
		if t.LastGeneratedAt, err = parseTimestamp(lastGeneratedAt.String); err != nil {
			return nil, fmt.Errorf("template %d last_generated_at: %w", t.ID, err)
		}
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("template %d created_at: %w", t.ID, err)
	}
	return &t, nil
}
