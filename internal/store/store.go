// Package store is the sqlite persistence layer: the versioned entity
// arena plus zones, appeals, workers, task templates, device keys and the
// sync audit log.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the database connection.
type Store struct {
	conn *sql.DB
	path string
	lock *writeLocker
}

// Open opens the database at path and runs any pending migrations. The file
// and its directory are created if missing. A process-wide write lock next
// to the database guards against a second process opening it for writes.
func Open(dbPath string) (*Store, error) {
	var lock *writeLocker
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		lock = newWriteLocker(filepath.Dir(dbPath))
		if err := lock.acquire(lockTimeout); err != nil {
			return nil, fmt.Errorf("acquire write lock: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		if lock != nil {
			lock.release()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		if lock != nil {
			lock.release()
		}
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		if lock != nil {
			lock.release()
		}
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	s, err := New(conn)
	if err != nil {
		conn.Close()
		if lock != nil {
			lock.release()
		}
		return nil, err
	}
	s.path = dbPath
	s.lock = lock
	return s, nil
}

// New wraps an already opened connection, creating the schema and running
// migrations. Used directly by tests that supply their own driver.
func New(conn *sql.DB) (*Store, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{conn: conn}
	if _, err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Ping checks the database connection is alive.
func (s *Store) Ping() error {
	return s.conn.Ping()
}

// Close checkpoints the WAL, closes the connection and drops the write lock.
func (s *Store) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.conn.Close()
	if s.lock != nil {
		s.lock.release()
		s.lock = nil
	}
	return err
}

// RunMigrations applies any migrations newer than the stored schema version.
func (s *Store) RunMigrations() (int, error) {
	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion := s.getSchemaVersion()
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version > currentVersion {
			if _, err := s.conn.Exec(m.SQL); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := s.setSchemaVersion(m.Version); err != nil {
				return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
	}

	if currentVersion == 0 {
		if err := s.setSchemaVersion(SchemaVersion); err != nil {
			return migrationsRun, err
		}
	}

	return migrationsRun, nil
}

func (s *Store) getSchemaVersion() int {
	var version string
	if err := s.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (s *Store) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// parseTimestamp tries the timestamp formats the sqlite drivers produce.
func parseTimestamp(v string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05 -0700 -0700",
		"2006-01-02 15:04:05 -0700 MST",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", v)
}

// nullTime converts a scanned optional timestamp string.
func nullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
