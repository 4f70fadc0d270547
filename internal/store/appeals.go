package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

const appealColumns = `id, entity_kind, entity_id, worker_id, explanation, evidence_url, status, reviewed_by, review_notes, submitted_at, reviewed_at`

// CreateAppeal inserts a new appeal and returns its id. A second appeal for
// the same entity fails on the unique index.
func (s *Store) CreateAppeal(ctx context.Context, a *models.Appeal) (int64, error) {
	submittedAt := a.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO appeals (entity_kind, entity_id, worker_id, explanation, evidence_url, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.EntityKind, a.EntityID, a.WorkerID, a.Explanation, a.EvidenceURL, a.Status,
		submittedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert appeal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// AppealByID loads one appeal. Returns (nil, nil) when no row matches.
func (s *Store) AppealByID(ctx context.Context, id int64) (*models.Appeal, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+appealColumns+` FROM appeals WHERE id = ?`, id)
	a, err := scanAppeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// AppealByEntity loads the appeal filed against an entity, if any.
func (s *Store) AppealByEntity(ctx context.Context, kind models.EntityKind, entityID int64) (*models.Appeal, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+appealColumns+` FROM appeals WHERE entity_kind = ? AND entity_id = ?`, kind, entityID)
	a, err := scanAppeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// UpdateAppeal writes back a reviewed appeal.
func (s *Store) UpdateAppeal(ctx context.Context, a *models.Appeal) error {
	var reviewedAt any
	if a.ReviewedAt != nil {
		reviewedAt = a.ReviewedAt.Format(time.RFC3339Nano)
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE appeals SET status = ?, reviewed_by = ?, review_notes = ?, reviewed_at = ? WHERE id = ?`,
		a.Status, a.ReviewedBy, a.ReviewNotes, reviewedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update appeal %d: %w", a.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("appeal %d not found", a.ID)
	}
	return nil
}

// ListAppeals returns appeals, optionally filtered by status, oldest pending
// first so supervisors work the backlog in order.
func (s *Store) ListAppeals(ctx context.Context, status models.AppealStatus, limit int) ([]*models.Appeal, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT `+appealColumns+` FROM appeals WHERE status = ? ORDER BY submitted_at ASC LIMIT ?`, status, limit)
	} else {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT `+appealColumns+` FROM appeals ORDER BY submitted_at ASC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list appeals: %w", err)
	}
	defer rows.Close()

	var out []*models.Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appeals: iterate: %w", err)
	}
	return out, nil
}

func scanAppeal(sc scanner) (*models.Appeal, error) {
	var (
		a           models.Appeal
		submittedAt string
		reviewedAt  sql.NullString
	)
	err := sc.Scan(&a.ID, &a.EntityKind, &a.EntityID, &a.WorkerID, &a.Explanation,
		&a.EvidenceURL, &a.Status, &a.ReviewedBy, &a.ReviewNotes, &submittedAt, &reviewedAt)
	if err != nil {
		return nil, err
	}
	if a.SubmittedAt, err = parseTimestamp(submittedAt); err != nil {
		return nil, fmt.Errorf("appeal %d submitted_at: %w", a.ID, err)
	}
	if a.ReviewedAt, err = nullTime(reviewedAt); err != nil {
		return nil, fmt.Errorf("appeal %d reviewed_at: %w", a.ID, err)
	}
	return &a, nil
}
