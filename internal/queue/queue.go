// Package queue implements the durable mutation queue: an ordered log of
// pending remote writes, persisted in the shared local database so that
// nothing enqueued is lost across process restarts.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of remote write a queued mutation represents.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Mutation is one pending remote write. Seq is assigned by SQLite's
// AUTOINCREMENT on insert and is strictly increasing across restarts; it
// defines replay order.
type Mutation struct {
	Seq        int64           `db:"seq" json:"seq"`
	Collection string          `db:"collection" json:"collection"`
	Op         Operation       `db:"op" json:"op"`
	Data       json.RawMessage `db:"data" json:"data"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	Attempts   int             `db:"attempts" json:"attempts"`
	Dead       bool            `db:"dead" json:"dead"`
}

type Queue struct {
	db *sql.DB
}

// New wraps the shared database handle. The sync_queue table itself is
// created by the store's schema migrations.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue appends a mutation. It is durable before return: the row is
// committed before the caller may consider the write queued.
func (q *Queue) Enqueue(ctx context.Context, collection string, op Operation, data json.RawMessage) (int64, error) {
	if !op.Valid() {
		return 0, fmt.Errorf("invalid operation %q", op)
	}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO sync_queue (collection, op, data, enqueued_at) VALUES (?, ?, ?, ?)`,
		collection, string(op), string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s %s: %w", op, collection, err)
	}

	return res.LastInsertId()
}

// DrainInOrder returns a snapshot of the pending queue in ascending seq
// order, excluding dead entries. Calling it again after a partial drain
// returns whatever remains, since replayed entries were removed.
func (q *Queue) DrainInOrder(ctx context.Context) ([]Mutation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, collection, op, data, enqueued_at, attempts, dead
		 FROM sync_queue WHERE dead = 0 ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMutations(rows)
}

// ListDead returns entries that exceeded the replay attempt limit.
func (q *Queue) ListDead(ctx context.Context) ([]Mutation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, collection, op, data, enqueued_at, attempts, dead
		 FROM sync_queue WHERE dead = 1 ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMutations(rows)
}

func scanMutations(rows *sql.Rows) ([]Mutation, error) {
	var items []Mutation
	for rows.Next() {
		var m Mutation
		var op, data string
		if err := rows.Scan(&m.Seq, &m.Collection, &op, &data, &m.EnqueuedAt, &m.Attempts, &m.Dead); err != nil {
			return nil, err
		}
		m.Op = Operation(op)
		m.Data = []byte(data)
		items = append(items, m)
	}
	return items, rows.Err()
}

// Remove deletes one entry by seq. Removing an already-removed seq is a no-op.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, seq)
	return err
}

// MarkFailed increments an entry's attempt counter after a failed replay.
// When maxAttempts > 0 and the counter reaches it, the entry is marked dead
// and excluded from future drains. maxAttempts 0 retries forever.
func (q *Queue) MarkFailed(ctx context.Context, seq int64, maxAttempts int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sync_queue
		 SET attempts = attempts + 1,
		     dead = CASE WHEN ? > 0 AND attempts + 1 >= ? THEN 1 ELSE dead END
		 WHERE seq = ?`,
		maxAttempts, maxAttempts, seq)
	return err
}

// Requeue revives a dead entry for another round of drains.
func (q *Queue) Requeue(ctx context.Context, seq int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sync_queue SET dead = 0, attempts = 0 WHERE seq = ?`, seq)
	return err
}

// Len counts pending (non-dead) entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE dead = 0`).Scan(&n)
	return n, err
}

// Clear empties the whole queue, dead entries included. This is an
// administrative reset; normal sync flow never calls it.
func (q *Queue) Clear(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue`)
	return err
}
