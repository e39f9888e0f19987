package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"eduai-sync-service/internal/config"
	"eduai-sync-service/internal/logger"
)

// migrations are idempotent schema steps. The database's PRAGMA user_version
// records how many have been applied; a version bump re-runs only the missing
// steps, and every statement is written to create what is absent without
// touching existing data.
var migrations = []string{
	// v1: record collections and the mutation queue
	`CREATE TABLE IF NOT EXISTS courses (
		id        TEXT PRIMARY KEY,
		payload   TEXT NOT NULL,
		last_sync INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_courses_last_sync ON courses (last_sync);

	CREATE TABLE IF NOT EXISTS assignments (
		id        TEXT PRIMARY KEY,
		payload   TEXT NOT NULL,
		last_sync INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_last_sync ON assignments (last_sync);
	CREATE INDEX IF NOT EXISTS idx_assignments_course ON assignments (json_extract(payload, '$.course_id'));

	CREATE TABLE IF NOT EXISTS submissions (
		id        TEXT PRIMARY KEY,
		payload   TEXT NOT NULL,
		last_sync INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_last_sync ON submissions (last_sync);
	CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions (json_extract(payload, '$.status'));

	CREATE TABLE IF NOT EXISTS sync_queue (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		collection  TEXT NOT NULL,
		op          TEXT NOT NULL,
		data        TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL,
		attempts    INTEGER NOT NULL DEFAULT 0,
		dead        INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sync_queue_enqueued ON sync_queue (enqueued_at);`,

	// v2: sync run history
	`CREATE TABLE IF NOT EXISTS sync_history (
		id            TEXT PRIMARY KEY,
		started_at    INTEGER NOT NULL,
		completed_at  INTEGER,
		synced        INTEGER NOT NULL DEFAULT 0,
		failed        INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sync_history_started ON sync_history (started_at);`,
}

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the local database under cfg.DataDir and
// brings its schema up to date. The handle survives process restarts; it is
// the durability anchor for both the record cache and the mutation queue.
func NewSQLiteStore(cfg config.StoreConfig) (*SQLiteStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	path := filepath.Join(cfg.DataDir, "eduai-offline.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Log.Info("Opened local store",
		zap.String("path", path),
		zap.Int("schemaVersion", len(migrations)),
	)

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return err
		}
		logger.Log.Info("Applied schema migration", zap.Int("version", i+1))
	}

	return nil
}

// Handle exposes the underlying database so the mutation queue can share the
// single process-wide connection.
func (s *SQLiteStore) Handle() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkCollection(collection string) error {
	if _, ok := collections[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return nil
}

// Put upserts a record by id and stamps its last_sync. Last write wins.
func (s *SQLiteStore) Put(ctx context.Context, collection, id string, payload []byte) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("record id is required")
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, payload, last_sync) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, last_sync = excluded.last_sync`,
		collection)

	_, err := s.db.ExecContext(ctx, query, id, string(payload), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*CachedRecord, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT id, payload, last_sync FROM %s WHERE id = ?", collection)
	row := s.db.QueryRowContext(ctx, query, id)

	var rec CachedRecord
	var payload string
	err := row.Scan(&rec.ID, &payload, &rec.LastSync)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Payload = []byte(payload)

	return &rec, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, collection string) ([]CachedRecord, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT id, payload, last_sync FROM %s", collection)
	return s.queryRecords(ctx, query)
}

// GetAllByIndex returns records whose indexed payload field equals value,
// e.g. assignments by course_id or submissions by status.
func (s *SQLiteStore) GetAllByIndex(ctx context.Context, collection, field, value string) ([]CachedRecord, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if !collections[collection][field] {
		return nil, fmt.Errorf("collection %s has no index on %q", collection, field)
	}

	query := fmt.Sprintf("SELECT id, payload, last_sync FROM %s WHERE json_extract(payload, '$.%s') = ?",
		collection, field)

	return s.queryRecords(ctx, query, value)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]CachedRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CachedRecord
	for rows.Next() {
		var rec CachedRecord
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.LastSync); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection)
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s", collection)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// ClearAll empties every record collection and the mutation queue. Used by
// logout and storage-reset flows.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	for name := range collections {
		if err := s.Clear(ctx, name); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue")
	return err
}

func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	query := `INSERT INTO sync_history (id, started_at, completed_at, synced, failed, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.StartedAt,
		run.CompletedAt,
		run.Synced,
		run.Failed,
		run.Status,
		run.ErrorMessage,
	)

	return err
}

func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, run *SyncRun) error {
	query := `UPDATE sync_history SET completed_at = ?, synced = ?, failed = ?, status = ?, error_message = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query,
		run.CompletedAt,
		run.Synced,
		run.Failed,
		run.Status,
		run.ErrorMessage,
		run.ID,
	)

	return err
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit, offset int) ([]*SyncRun, error) {
	query := `SELECT id, started_at, completed_at, synced, failed, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		err := rows.Scan(
			&r.ID,
			&r.StartedAt,
			&r.CompletedAt,
			&r.Synced,
			&r.Failed,
			&r.Status,
			&r.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}

	return runs, rows.Err()
}
