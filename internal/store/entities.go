package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nadim/fieldsync/internal/models"
)

const entityColumns = `server_id, kind, client_id, device_id, worker_id, zone_id, sync_version, state, payload, created_at, updated_at`

// EntityByServerID loads one entity by its server identity. Returns
// (nil, nil) when no row matches.
func (s *Store) EntityByServerID(ctx context.Context, kind models.EntityKind, serverID int64) (*models.Entity, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE server_id = ? AND kind = ?`, serverID, kind)
	return scanEntity(row)
}

// EntityByClientID loads one entity by its device-assigned correlation key.
// Returns (nil, nil) when no row matches.
func (s *Store) EntityByClientID(ctx context.Context, kind models.EntityKind, clientID string) (*models.Entity, error) {
	if clientID == "" {
		return nil, nil
	}
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND client_id = ?`, kind, clientID)
	return scanEntity(row)
}

// CreateEntity inserts a new entity and returns its server id. A duplicate
// client id for the kind fails on the unique index.
func (s *Store) CreateEntity(ctx context.Context, e *models.Entity) (int64, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	now := time.Now().UTC()
	createdAt, updatedAt := e.CreatedAt, e.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO entities (kind, client_id, device_id, worker_id, zone_id, sync_version, state, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.ClientID, e.DeviceID, e.WorkerID, e.ZoneID, e.Version, e.State,
		string(payload), createdAt.Format(time.RFC3339Nano), updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// UpdateEntity writes the entity back if its stored version still equals
// expectVersion. Reports false when a concurrent writer won.
func (s *Store) UpdateEntity(ctx context.Context, e *models.Entity, expectVersion int) (bool, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE entities SET worker_id = ?, zone_id = ?, sync_version = ?, state = ?, payload = ?, updated_at = ?
		 WHERE server_id = ? AND kind = ? AND sync_version = ?`,
		e.WorkerID, e.ZoneID, e.Version, e.State, string(payload),
		updatedAt.Format(time.RFC3339Nano), e.ServerID, e.Kind, expectVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update entity %d: %w", e.ServerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListEntities returns entities of a kind, optionally filtered by state,
// newest first.
func (s *Store) ListEntities(ctx context.Context, kind models.EntityKind, state string, limit int) ([]*models.Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if state != "" {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND state = ? ORDER BY updated_at DESC, server_id DESC LIMIT ?`,
			kind, state, limit)
	} else {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT `+entityColumns+` FROM entities WHERE kind = ? ORDER BY updated_at DESC, server_id DESC LIMIT ?`,
			kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: iterate: %w", err)
	}
	return out, nil
}

// EntityStateCounts returns the number of entities per kind and state.
func (s *Store) EntityStateCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT kind, state, COUNT(*) FROM entities GROUP BY kind, state`)
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind, state string
		var n int
		if err := rows.Scan(&kind, &state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[kind+"/"+state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count entities: iterate: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row *sql.Row) (*models.Entity, error) {
	e, err := scanEntityFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func scanEntityRow(rows *sql.Rows) (*models.Entity, error) {
	return scanEntityFrom(rows)
}

func scanEntityFrom(sc scanner) (*models.Entity, error) {
	var (
		e                    models.Entity
		payload              string
		createdAt, updatedAt string
	)
	err := sc.Scan(&e.ServerID, &e.Kind, &e.ClientID, &e.DeviceID, &e.WorkerID, &e.ZoneID,
		&e.Version, &e.State, &payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for entity %d: %w", e.ServerID, err)
	}
	if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("entity %d created_at: %w", e.ServerID, err)
	}
	if e.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("entity %d updated_at: %w", e.ServerID, err)
	}
	return &e, nil
}
