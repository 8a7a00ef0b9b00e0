package healthstore

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates the store tables for driver. Safe to call multiple times.
func CreateSchema(ctx context.Context, db *sql.DB, driver string) error {
	changeLog := sqliteChangeLog
	if driver == DriverPostgres {
		changeLog = postgresChangeLog
	}
	for _, stmt := range []string{schema, changeLog, changesTokenSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Timestamps are unix milliseconds so both drivers store them identically.
const schema = `
CREATE TABLE IF NOT EXISTS health_record (
    id TEXT PRIMARY KEY,
    record_type TEXT NOT NULL,
    start_time BIGINT NOT NULL,
    end_time BIGINT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_health_record_type_start ON health_record(record_type, start_time);

CREATE TABLE IF NOT EXISTS permission_grant (
    permission TEXT PRIMARY KEY,
    granted_at BIGINT NOT NULL
);
`

// The change log differs only in how the sequence column is generated.
const (
	sqliteChangeLog = `
CREATE TABLE IF NOT EXISTS record_change (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    record_type TEXT NOT NULL,
    record_id TEXT NOT NULL,
    deleted BOOLEAN NOT NULL,
    changed_at BIGINT NOT NULL
);
`
	postgresChangeLog = `
CREATE TABLE IF NOT EXISTS record_change (
    seq BIGSERIAL PRIMARY KEY,
    record_type TEXT NOT NULL,
    record_id TEXT NOT NULL,
    deleted BOOLEAN NOT NULL,
    changed_at BIGINT NOT NULL
);
`
)

const changesTokenSchema = `
CREATE TABLE IF NOT EXISTS changes_token (
    token TEXT PRIMARY KEY,
    record_types TEXT NOT NULL,
    after_seq BIGINT NOT NULL,
    issued_at BIGINT NOT NULL
);
`
