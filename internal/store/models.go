package store

import (
	"database/sql"
	"encoding/json"
)

// CachedRecord is a locally persisted copy of a remote row. The payload is
// opaque to the sync layer; LastSync records the last local write (unix ms).
type CachedRecord struct {
	ID       string          `db:"id" json:"id"`
	Payload  json.RawMessage `db:"payload" json:"payload"`
	LastSync int64           `db:"last_sync" json:"last_sync"`
}

// SyncRun records one drain of the mutation queue.
type SyncRun struct {
	ID           string         `db:"id" json:"id"`
	StartedAt    int64          `db:"started_at" json:"started_at"`
	CompletedAt  sql.NullInt64  `db:"completed_at" json:"completed_at"`
	Synced       int            `db:"synced" json:"synced"`
	Failed       int            `db:"failed" json:"failed"`
	Status       string         `db:"status" json:"status"`
	ErrorMessage sql.NullString `db:"error_message" json:"error_message"`
}

// Collections managed by the local store, with the payload fields each one
// can be filtered on. The last_sync index exists on all of them.
var collections = map[string]map[string]bool{
	"courses":     {},
	"assignments": {"course_id": true},
	"submissions": {"status": true},
}

// IsCached reports whether the local store manages a collection of this name.
func IsCached(name string) bool {
	_, ok := collections[name]
	return ok
}

// KnownCollections returns the names of all managed record collections.
func KnownCollections() []string {
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	return names
}
