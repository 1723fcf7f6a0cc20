package api

import (
	"database/sql"
	"fmt"
)

// Schema of the events search index.
// Times are unix nanoseconds; visible_at models index propagation delay.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    -- record id
    id TEXT PRIMARY KEY,
    -- current etag
    etag TEXT NOT NULL DEFAULT '',
    -- series id, empty for single events
    recurrence_id TEXT NOT NULL DEFAULT '',
    -- workflow state
    state TEXT NOT NULL DEFAULT 'draft',
    -- scheduled start
    starts_at INTEGER NOT NULL DEFAULT 0,
    -- full record as JSON
    body TEXT NOT NULL,
    -- first moment the record is returned by searches
    visible_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_recurrence_id
    ON events(recurrence_id);

CREATE INDEX IF NOT EXISTS idx_events_starts_at
    ON events(starts_at, id);
`

// initSchema applies the schema to db.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}
