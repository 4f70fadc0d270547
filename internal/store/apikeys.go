package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	apiKeyPrefix = "fs_live_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// DeviceKey is a stored device credential (without the plaintext secret).
type DeviceKey struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"device_id"`
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// GenerateDeviceKey creates a credential for a device. The plaintext is
// returned once and only its hash is stored.
func (s *Store) GenerateDeviceKey(ctx context.Context, deviceID, name string) (string, *DeviceKey, error) {
	if deviceID == "" {
		return "", nil, fmt.Errorf("device id required")
	}

	id, err := generateID("dk_")
	if err != nil {
		return "", nil, fmt.Errorf("generate key id: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := apiKeyPrefix + string(secret)
	prefix := string(secret[:8])

	hash := sha256.Sum256([]byte(plaintext))
	keyHash := hex.EncodeToString(hash[:])

	now := time.Now().UTC()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO api_keys (id, device_id, key_hash, key_prefix, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, deviceID, keyHash, prefix, name, now.Format(time.RFC3339Nano))
	if err != nil {
		return "", nil, fmt.Errorf("insert device key: %w", err)
	}

	return plaintext, &DeviceKey{
		ID: id, DeviceID: deviceID, KeyPrefix: prefix, Name: name, CreatedAt: now,
	}, nil
}

// VerifyDeviceKey checks a plaintext key against stored hashes. Returns nil
// without error when the key is unknown.
func (s *Store) VerifyDeviceKey(ctx context.Context, plaintext string) (*DeviceKey, error) {
	hash := sha256.Sum256([]byte(plaintext))
	keyHash := hex.EncodeToString(hash[:])

	var (
		k          DeviceKey
		lastUsedAt sql.NullString
		createdAt  string
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, device_id, key_prefix, name, last_used_at, created_at FROM api_keys WHERE key_hash = ?`,
		keyHash).Scan(&k.ID, &k.DeviceID, &k.KeyPrefix, &k.Name, &lastUsedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify device key: %w", err)
	}
	if k.LastUsedAt, err = nullTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("device key %s last_used_at: %w", k.ID, err)
	}
	if k.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("device key %s created_at: %w", k.ID, err)
	}

	now := time.Now().UTC()
	if _, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now.Format(time.RFC3339Nano), k.ID); err == nil {
		k.LastUsedAt = &now
	}
	return &k, nil
}

// RevokeDeviceKey deletes a device credential by id.
func (s *Store) RevokeDeviceKey(ctx context.Context, keyID string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, keyID)
	if err != nil {
		return fmt.Errorf("revoke device key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("device key %s not found", keyID)
	}
	return nil
}

// ListDeviceKeys returns all credentials for a device (without secrets).
func (s *Store) ListDeviceKeys(ctx context.Context, deviceID string) ([]*DeviceKey, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, device_id, key_prefix, name, last_used_at, created_at FROM api_keys WHERE device_id = ? ORDER BY created_at`,
		deviceID)
	if err != nil {
		return nil, fmt.Errorf("list device keys: %w", err)
	}
	defer rows.Close()

	var keys []*DeviceKey
	for rows.Next() {
		var (
			k          DeviceKey
			lastUsedAt sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&k.ID, &k.DeviceID, &k.KeyPrefix, &k.Name, &lastUsedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan device key: %w", err)
		}
		if k.LastUsedAt, err = nullTime(lastUsedAt); err != nil {
			return nil, fmt.Errorf("device key %s last_used_at: %w", k.ID, err)
		}
		if k.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("device key %s created_at: %w", k.ID, err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list device keys: iterate: %w", err)
	}
	return keys, nil
}

// generateID creates a prefixed ID with 8 random hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
