package storage

import (
	"context"

	"github.com/poiesic/assetpipe/core"
)

// DocumentStore is a schema-flexible, collection-oriented document store.
// Every call commits before it returns, so its writes are visible to the
// next call. Implementations must be safe for concurrent use.
type DocumentStore interface {
	// Ping checks that the store answers. Failures wrap ErrConnectivity.
	Ping(ctx context.Context) error

	// Exists reports whether a collection exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Create creates a collection. Returns ErrCollectionExists if it exists and
	// ErrSettingsNotSupported if settings are sent to a mapping-only deployment.
	Create(ctx context.Context, req CreateRequest) error

	// Collection returns the description of an existing collection.
	// Returns ErrNotFound if it doesn't exist.
	Collection(ctx context.Context, name string) (*Collection, error)

	// Bulk applies index operations. Per-operation failures are reported in
	// the response; the error is reserved for calls that could not run at all.
	Bulk(ctx context.Context, req BulkRequest) (*BulkResponse, error)

	// CopyAll copies every document and field from one collection into another.
	// Returns ErrNotFound if either collection is missing.
	CopyAll(ctx context.Context, req CopyRequest) (*ByQueryStats, error)

	// UpdateWhere runs a script over every document matching the query.
	UpdateWhere(ctx context.Context, req UpdateRequest) (*ByQueryStats, error)

	// DeleteWhere removes every document matching the query.
	DeleteWhere(ctx context.Context, req DeleteRequest) (*ByQueryStats, error)

	// Get retrieves a document by identity. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (core.Document, error)

	// Count returns the number of documents matching the query.
	Count(ctx context.Context, collection string, q Query) (int64, error)

	// Search returns up to limit documents matching the query, keyed by identity.
	// A limit <= 0 returns every match.
	Search(ctx context.Context, collection string, q Query, limit int) (map[string]core.Document, error)

	// Close releases the store.
	Close() error
}

// CheckpointRepository persists the outcome of pipeline stages.
type CheckpointRepository interface {
	// SaveCheckpoint records the checkpoint for its stage and collection.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves a checkpoint. Returns nil, nil if none exists.
	LoadCheckpoint(ctx context.Context, stage, collection string) (*core.Checkpoint, error)

	// ListCheckpoints returns every stored checkpoint.
	ListCheckpoints(ctx context.Context) ([]*core.Checkpoint, error)
}
