package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

// CreateWorker registers a field worker and returns the new id.
func (s *Store) CreateWorker(ctx context.Context, name, deviceID string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("worker name required")
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO workers (name, device_id, created_at) VALUES (?, ?, ?)`,
		name, deviceID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert worker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// WorkerByID loads one worker. Returns (nil, nil) when no row matches.
func (s *Store) WorkerByID(ctx context.Context, id int64) (*models.Worker, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, device_id, warning_count, last_warning_at, last_warning_reason, created_at
		 FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// AddWorkerWarning bumps the worker's geofence warning counter and records
// the most recent reason.
func (s *Store) AddWorkerWarning(ctx context.Context, workerID int64, reason string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE workers SET warning_count = warning_count + 1, last_warning_at = ?, last_warning_reason = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), reason, workerID)
	if err != nil {
		return fmt.Errorf("add warning for worker %d: %w", workerID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("worker %d not found", workerID)
	}
	return nil
}

// ListWorkers returns all workers ordered by id.
func (s *Store) ListWorkers(ctx context.Context) ([]*models.Worker, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, device_id, warning_count, last_warning_at, last_warning_reason, created_at
		 FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workers: iterate: %w", err)
	}
	return out, nil
}

func scanWorker(sc scanner) (*models.Worker, error) {
	var (
		w             models.Worker
		lastWarningAt sql.NullString
		createdAt     string
	)
	err := sc.Scan(&w.ID, &w.Name, &w.DeviceID, &w.WarningCount, &lastWarningAt, &w.LastWarningReason, &createdAt)
	if err != nil {
		return nil, err
	}
	if w.LastWarningAt, err = nullTime(lastWarningAt); err != nil {
		return nil, fmt.Errorf("worker %d last_warning_at: %w", w.ID, err)
	}
	if w.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("worker %d created_at: %w", w.ID, err)
	}
	return &w, nil
}
