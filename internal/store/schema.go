package store

// SchemaVersion is the current database schema version
const SchemaVersion = 3

const schema = `
-- Versioned entity arena: tasks, attendance records and reported issues.
CREATE TABLE IF NOT EXISTS entities (
    server_id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL CHECK(kind IN ('task', 'attendance', 'issue')),
    client_id TEXT NOT NULL DEFAULT '',
    device_id TEXT NOT NULL DEFAULT '',
    worker_id INTEGER NOT NULL DEFAULT 0,
    zone_id INTEGER NOT NULL DEFAULT 0,
    sync_version INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    payload JSON NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Authorization zone polygons. Ring is a JSON array of {lat, lon} vertices.
CREATE TABLE IF NOT EXISTS zones (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    district TEXT NOT NULL DEFAULT '',
    ring JSON NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Field worker accounts with geofence warning counters.
CREATE TABLE IF NOT EXISTS workers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    warning_count INTEGER NOT NULL DEFAULT 0,
    last_warning_at DATETIME,
    last_warning_reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Appeals: exactly one per entity, reviewed at most once.
CREATE TABLE IF NOT EXISTS appeals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_kind TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    worker_id INTEGER NOT NULL DEFAULT 0,
    explanation TEXT NOT NULL,
    evidence_url TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    reviewed_by INTEGER NOT NULL DEFAULT 0,
    review_notes TEXT NOT NULL DEFAULT '',
    submitted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    reviewed_at DATETIME,
    UNIQUE(entity_kind, entity_id)
);

-- Device API keys (hashes only, never the plaintext).
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_client ON entities(kind, client_id) WHERE client_id != '';
CREATE INDEX IF NOT EXISTS idx_entities_state ON entities(kind, state);
CREATE INDEX IF NOT EXISTS idx_entities_worker ON entities(worker_id);
CREATE INDEX IF NOT EXISTS idx_appeals_status ON appeals(status);
CREATE INDEX IF NOT EXISTS idx_api_keys_device ON api_keys(device_id);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add sync_batches audit log",
		SQL: `CREATE TABLE IF NOT EXISTS sync_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			total_items INTEGER NOT NULL,
			success_count INTEGER NOT NULL,
			failure_count INTEGER NOT NULL,
			client_time DATETIME,
			received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sync_batches_device ON sync_batches(device_id, received_at);`,
	},
	{
		Version:     3,
		Description: "Add task_templates for recurring task generation",
		SQL: `CREATE TABLE IF NOT EXISTS task_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			zone_id INTEGER NOT NULL DEFAULT 0,
			assignee_id INTEGER NOT NULL DEFAULT 0,
			interval_minutes INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			last_generated_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_task_templates_active ON task_templates(active);`,
	},
}
