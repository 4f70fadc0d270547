package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nadim/fieldsync/internal/geo"
	"github.com/nadim/fieldsync/internal/zones"
)

// UpsertZone inserts a zone or, when the code already exists, replaces its
// ring and metadata and bumps the stored version. Returns the zone id.
func (s *Store) UpsertZone(ctx context.Context, z zones.Zone) (int64, error) {
	if len(z.Ring) < 3 {
		return 0, fmt.Errorf("zone %s: ring needs at least 3 vertices", z.Code)
	}
	ring, err := json.Marshal(z.Ring)
	if err != nil {
		return 0, fmt.Errorf("marshal ring: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var id int64
	var version int
	err = s.conn.QueryRowContext(ctx, `SELECT id, version FROM zones WHERE code = ?`, z.Code).Scan(&id, &version)
	switch {
	case err == nil:
		active := 0
		if z.Active {
			active = 1
		}
		_, err = s.conn.ExecContext(ctx,
			`UPDATE zones SET name = ?, district = ?, ring = ?, version = ?, active = ?, updated_at = ? WHERE id = ?`,
			z.Name, z.District, string(ring), version+1, active, now, id)
		if err != nil {
			return 0, fmt.Errorf("update zone %s: %w", z.Code, err)
		}
		return id, nil
	case err == sql.ErrNoRows:
		active := 0
		if z.Active {
			active = 1
		}
		res, err := s.conn.ExecContext(ctx,
			`INSERT INTO zones (code, name, district, ring, version, active, created_at, updated_at) VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
			z.Code, z.Name, z.District, string(ring), active, now, now)
		if err != nil {
			return 0, fmt.Errorf("insert zone %s: %w", z.Code, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("lookup zone %s: %w", z.Code, err)
	}
}

// DeactivateZone soft-disables a zone without touching its geometry.
func (s *Store) DeactivateZone(ctx context.Context, code string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE zones SET active = 0, updated_at = ? WHERE code = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), code)
	if err != nil {
		return fmt.Errorf("deactivate zone %s: %w", code, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("zone %s not found", code)
	}
	return nil
}

// ListZones returns all zones ordered by id, inactive ones included; the
// caller's index filters them.
func (s *Store) ListZones(ctx context.Context) ([]zones.Zone, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, code, name, district, ring, version, active FROM zones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var out []zones.Zone
	for rows.Next() {
		var (
			z      zones.Zone
			ring   string
			active int
		)
		if err := rows.Scan(&z.ID, &z.Code, &z.Name, &z.District, &ring, &z.Version, &active); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		var verts []geo.Vertex
		if err := json.Unmarshal([]byte(ring), &verts); err != nil {
			return nil, fmt.Errorf("decode ring for zone %s: %w", z.Code, err)
		}
		z.Ring = verts
		z.Active = active == 1
		out = append(out, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list zones: iterate: %w", err)
	}
	return out, nil
}

// LoadZoneIndex builds the in-memory zone index from the stored polygons.
func (s *Store) LoadZoneIndex(ctx context.Context) (*zones.Index, error) {
	zs, err := s.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	return zones.NewIndex(zs), nil
}
