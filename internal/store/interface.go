package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist in a collection.
var ErrNotFound = errors.New("record not found")

// ErrUnknownCollection is returned for a collection name the store does not manage.
var ErrUnknownCollection = errors.New("unknown collection")

type Store interface {
	// Cached records
	Put(ctx context.Context, collection, id string, payload []byte) error
	Get(ctx context.Context, collection, id string) (*CachedRecord, error)
	GetAll(ctx context.Context, collection string) ([]CachedRecord, error)
	GetAllByIndex(ctx context.Context, collection, field, value string) ([]CachedRecord, error)
	Delete(ctx context.Context, collection, id string) error
	Clear(ctx context.Context, collection string) error
	ClearAll(ctx context.Context) error

	// Sync runs
	CreateSyncRun(ctx context.Context, run *SyncRun) error
	CompleteSyncRun(ctx context.Context, run *SyncRun) error
	ListSyncRuns(ctx context.Context, limit, offset int) ([]*SyncRun, error)

	// General
	Close() error
}
