package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"eduai-sync-service/internal/queue"
	"eduai-sync-service/internal/remote"
	"eduai-sync-service/internal/store"
)

// Handler maps a queued mutation onto the remote call appropriate for its
// collection. The registry is populated and checked at engine construction,
// so a missing mapping is a startup error rather than a silent runtime gap.
type Handler func(ctx context.Context, rc remote.Client, op queue.Operation, data json.RawMessage) error

// rowHandler issues the standard per-operation remote calls for a table.
func rowHandler(table string) Handler {
	return func(ctx context.Context, rc remote.Client, op queue.Operation, data json.RawMessage) error {
		switch op {
		case queue.OpInsert:
			return rc.Insert(ctx, table, data)
		case queue.OpUpdate:
			id, err := recordID(data)
			if err != nil {
				return err
			}
			return rc.Update(ctx, table, id, data)
		case queue.OpDelete:
			id, err := recordID(data)
			if err != nil {
				return err
			}
			return rc.Delete(ctx, table, id)
		}
		return fmt.Errorf("no remote call for %s %s", op, table)
	}
}

// upsertHandler always upserts, whatever operation was recorded. Used for
// progress records, which merge idempotently.
func upsertHandler(table string) Handler {
	return func(ctx context.Context, rc remote.Client, _ queue.Operation, data json.RawMessage) error {
		return rc.Upsert(ctx, table, data)
	}
}

func defaultHandlers() map[string]Handler {
	handlers := make(map[string]Handler)
	for _, name := range store.KnownCollections() {
		handlers[name] = rowHandler(name)
	}
	handlers["student_progress"] = upsertHandler("student_progress")
	return handlers
}

// recordID extracts the primary key from a mutation payload.
func recordID(data json.RawMessage) (string, error) {
	var row struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return "", fmt.Errorf("failed to parse record id: %w", err)
	}
	if row.ID == "" {
		return "", fmt.Errorf("record has no id")
	}
	return row.ID, nil
}
