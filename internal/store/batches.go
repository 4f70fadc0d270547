package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BatchRecord is one row of the sync audit log.
type BatchRecord struct {
	ID           int64      `json:"id"`
	DeviceID     string     `json:"device_id"`
	TotalItems   int        `json:"total_items"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	ClientTime   *time.Time `json:"client_time,omitempty"`
	ReceivedAt   time.Time  `json:"received_at"`
}

// RecordBatch appends one processed batch to the audit log.
func (s *Store) RecordBatch(ctx context.Context, b BatchRecord) error {
	var clientTime any
	if b.ClientTime != nil {
		clientTime = b.ClientTime.UTC().Format(time.RFC3339Nano)
	}
	receivedAt := b.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sync_batches (device_id, total_items, success_count, failure_count, client_time, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.DeviceID, b.TotalItems, b.SuccessCount, b.FailureCount, clientTime,
		receivedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}

// RecentBatches returns the latest audit rows, newest first, optionally
// limited to one device.
func (s *Store) RecentBatches(ctx context.Context, deviceID string, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if deviceID != "" {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT id, device_id, total_items, success_count, failure_count, client_time, received_at
			 FROM sync_batches WHERE device_id = ? ORDER BY id DESC LIMIT ?`, deviceID, limit)
	} else {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT id, device_id, total_items, success_count, failure_count, client_time, received_at
			 FROM sync_batches ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var (
			b          BatchRecord
			clientTime sql.NullString
			receivedAt string
		)
		if err := rows.Scan(&b.ID, &b.DeviceID, &b.TotalItems, &b.SuccessCount, &b.FailureCount, &clientTime, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if b.ClientTime, err = nullTime(clientTime); err != nil {
			return nil, fmt.Errorf("batch %d client_time: %w", b.ID, err)
		}
		if b.ReceivedAt, err = parseTimestamp(receivedAt); err != nil {
			return nil, fmt.Errorf("batch %d received_at: %w", b.ID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: iterate: %w", err)
	}
	return out, nil
}
