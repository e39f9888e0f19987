package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eduai-sync-service/internal/connectivity"
	"eduai-sync-service/internal/logger"
	"eduai-sync-service/internal/notify"
	"eduai-sync-service/internal/queue"
	"eduai-sync-service/internal/remote"
	"eduai-sync-service/internal/store"
)

// StatusSource reports the current connectivity status.
type StatusSource interface {
	Status() connectivity.Status
}

// Engine is the reconciler between the local store and the remote one. Every
// write lands in the local store first; the engine then either applies it
// remotely or queues it, and drains the queue when connectivity returns.
type Engine struct {
	cache       store.Store
	queue       *queue.Queue
	remote      remote.Client
	status      StatusSource
	notifier    notify.Notifier
	handlers    map[string]Handler
	maxAttempts int

	mu      gosync.Mutex
	syncing bool
}

func NewEngine(cache store.Store, q *queue.Queue, rc remote.Client, status StatusSource, notifier notify.Notifier, maxAttempts int) (*Engine, error) {
	handlers := defaultHandlers()
	for _, name := range store.KnownCollections() {
		if _, ok := handlers[name]; !ok {
			return nil, fmt.Errorf("no dispatch handler registered for collection %q", name)
		}
	}

	return &Engine{
		cache:       cache,
		queue:       q,
		remote:      rc,
		status:      status,
		notifier:    notifier,
		handlers:    handlers,
		maxAttempts: maxAttempts,
	}, nil
}

// Write applies a mutation cache-then-sync: the local store first (making it
// immediately visible and durable), then the remote store directly when
// online, falling back to the queue on any remote failure. A write is never
// lost; the only fatal error is a local storage failure.
func (e *Engine) Write(ctx context.Context, collection string, op queue.Operation, data json.RawMessage) error {
	if !op.Valid() {
		return fmt.Errorf("invalid operation %q", op)
	}
	handler, ok := e.handlers[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}

	if store.IsCached(collection) {
		id, err := recordID(data)
		if err != nil {
			return err
		}
		if op == queue.OpDelete {
			if err := e.cache.Delete(ctx, collection, id); err != nil {
				return fmt.Errorf("local store delete failed: %w", err)
			}
		} else {
			if err := e.cache.Put(ctx, collection, id, data); err != nil {
				return fmt.Errorf("local store write failed: %w", err)
			}
		}
	}

	if e.status.Status() == connectivity.Online {
		if err := handler(ctx, e.remote, op, data); err != nil {
			logger.Log.Error("Direct remote write failed, queueing",
				zap.String("collection", collection),
				zap.String("op", string(op)),
				zap.Error(err),
			)
			return e.enqueue(ctx, collection, op, data, "Saved locally. Will sync when back online.")
		}
		return nil
	}

	return e.enqueue(ctx, collection, op, data, "Saved offline. Will sync when back online.")
}

func (e *Engine) enqueue(ctx context.Context, collection string, op queue.Operation, data json.RawMessage, message string) error {
	if _, err := e.queue.Enqueue(ctx, collection, op, data); err != nil {
		return fmt.Errorf("failed to queue %s %s: %w", op, collection, err)
	}
	e.notifier.Notify(notify.Info, message)
	return nil
}

// SaveSubmission is the offline-aware save used by submission flows: upsert
// on the direct path, insert on the queued one.
func (e *Engine) SaveSubmission(ctx context.Context, data json.RawMessage) error {
	id, err := recordID(data)
	if err != nil {
		return err
	}
	if err := e.cache.Put(ctx, "submissions", id, data); err != nil {
		return fmt.Errorf("local store write failed: %w", err)
	}

	if e.status.Status() == connectivity.Online {
		if err := e.remote.Upsert(ctx, "submissions", data); err != nil {
			logger.Log.Error("Failed to save submission online",
				zap.String("id", id),
				zap.Error(err),
			)
			return e.enqueue(ctx, "submissions", queue.OpInsert, data, "Saved locally. Will sync when back online.")
		}
		e.notifier.Notify(notify.Success, "Submission saved successfully")
		return nil
	}

	return e.enqueue(ctx, "submissions", queue.OpInsert, data, "Saved offline. Will sync when back online.")
}

// Syncing reports whether a drain is in progress.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

func (e *Engine) beginDrain() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing || e.status.Status() != connectivity.Online {
		return false
	}
	e.syncing = true
	return true
}

func (e *Engine) endDrain() {
	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()
}

// Drain replays the queue snapshot against the remote store in enqueue order,
// removing each entry as its remote call succeeds and leaving failures in
// place for the next drain. It is a silent no-op when a drain is already
// running, the monitor reports offline, or the queue is empty. Mutations
// enqueued while the drain runs wait for the next trigger.
func (e *Engine) Drain(ctx context.Context) DrainResult {
	if !e.beginDrain() {
		return DrainResult{}
	}
	defer e.endDrain()

	items, err := e.queue.DrainInOrder(ctx)
	if err != nil {
		logger.Log.Error("Failed to read sync queue", zap.Error(err))
		e.notifier.Notify(notify.Error, "Failed to read offline changes")
		return DrainResult{Ran: true}
	}
	if len(items) == 0 {
		return DrainResult{Ran: true}
	}

	e.notifier.Notify(notify.Info, "Syncing offline changes...")

	run := &store.SyncRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UnixMilli(),
		Status:    RunStatusRunning,
	}
	if err := e.cache.CreateSyncRun(ctx, run); err != nil {
		logger.Log.Warn("Failed to record sync run", zap.Error(err))
	}

	var synced, failed int
	for _, item := range items {
		if err := e.replay(ctx, item); err != nil {
			failed++
			logger.Log.Error("Sync error for queued mutation",
				zap.Int64("seq", item.Seq),
				zap.String("collection", item.Collection),
				zap.String("op", string(item.Op)),
				zap.ByteString("data", item.Data),
				zap.Error(err),
			)
			if err := e.queue.MarkFailed(ctx, item.Seq, e.maxAttempts); err != nil {
				logger.Log.Error("Failed to record replay failure", zap.Int64("seq", item.Seq), zap.Error(err))
			}
			continue
		}
		if err := e.queue.Remove(ctx, item.Seq); err != nil {
			// The remote call succeeded; a re-replay on the next drain is
			// the safe direction for this entry.
			logger.Log.Error("Failed to remove replayed mutation", zap.Int64("seq", item.Seq), zap.Error(err))
		}
		synced++
	}

	run.CompletedAt = sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true}
	run.Synced = synced
	run.Failed = failed
	run.Status = RunStatusCompleted
	if failed > 0 {
		run.Status = RunStatusPartial
	}
	if err := e.cache.CompleteSyncRun(ctx, run); err != nil {
		logger.Log.Warn("Failed to complete sync run record", zap.Error(err))
	}

	if failed == 0 {
		e.notifier.Notify(notify.Success, fmt.Sprintf("Successfully synced %d changes", synced))
	} else {
		e.notifier.Notify(notify.Error, fmt.Sprintf("Synced %d changes, %d failed", synced, failed))
	}

	return DrainResult{Ran: true, Synced: synced, Failed: failed}
}

func (e *Engine) replay(ctx context.Context, item queue.Mutation) error {
	handler, ok := e.handlers[item.Collection]
	if !ok {
		return fmt.Errorf("no dispatch handler for collection %q", item.Collection)
	}
	return handler(ctx, e.remote, item.Op, item.Data)
}
