// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package assetpipe

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/poiesic/assetpipe/config"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/ingest"
	"github.com/poiesic/assetpipe/provision"
	"github.com/poiesic/assetpipe/storage"
	"github.com/poiesic/assetpipe/storage/badger"
	"github.com/poiesic/assetpipe/transform"
)

// Database owns the store handle shared by ingestion and the transform
// pipeline.
type Database struct {
	backend     *badger.Backend
	store       *badger.Store
	checkpoints *badger.CheckpointRepository
	cfg         *config.Config
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open opens the store described by cfg.
func Open(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	profile, err := provision.ParseProfile(cfg.Store.Profile)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(cfg.Store.Path, cfg.Store.InMemory,
		badger.WithBackendLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	store, err := badger.NewStore(backend,
		badger.WithServerless(profile == provision.ProfileServerless),
		badger.WithCompression(cfg.Store.Compression),
		badger.WithLogger(options.logger),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}

	checkpoints, err := badger.NewCheckpointRepository(backend)
	if err != nil {
		store.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:     backend,
		store:       store,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      options.logger,
	}, nil
}

// Close releases the store and closes the database.
func (db *Database) Close() error {
	if err := db.checkpoints.Close(); err != nil {
		db.logger.Error("error closing checkpoint repository", "err", err)
	}
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing document store", "err", err)
		return err
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) Store() storage.DocumentStore {
	return db.store
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpoints
}

func (db *Database) Config() *config.Config {
	return db.cfg
}

// NewProvisioner returns a provisioner using the configured profile.
func (db *Database) NewProvisioner() (*provision.Provisioner, error) {
	profile, err := provision.ParseProfile(db.cfg.Store.Profile)
	if err != nil {
		return nil, err
	}
	return provision.NewProvisioner(db.store,
		provision.WithProfile(profile), provision.WithLogger(db.logger))
}

// NewLoader returns a loader tuned by the bulk configuration. opts are
// applied after the configured values.
func (db *Database) NewLoader(opts ...ingest.Option) (*ingest.Loader, error) {
	base := []ingest.Option{
		ingest.WithBatchSize(db.cfg.Bulk.BatchSize),
		ingest.WithConcurrency(db.cfg.Bulk.Concurrency),
		ingest.WithReportInterval(db.cfg.Bulk.ReportInterval),
		ingest.WithRetries(db.cfg.MaxRetries, db.cfg.RetryDelay),
		ingest.WithRequestTimeout(db.cfg.RequestTimeout),
		ingest.WithLogger(db.logger),
	}
	return ingest.NewLoader(db.store, append(base, opts...)...)
}

// NewPipeline returns the transform pipeline over the configured collections.
func (db *Database) NewPipeline(opts ...transform.Option) (*transform.Pipeline, error) {
	base := []transform.Option{transform.WithLogger(db.logger)}
	return transform.NewPipeline(db.store, db.checkpoints, db.cfg, append(base, opts...)...)
}

// Ingest ensures collection exists with the asset mapping and loads rows into
// it. A *ingest.PartialBatchError is returned alongside a result.
func (db *Database) Ingest(ctx context.Context, rows iter.Seq2[core.Row, error], collection string) (*ingest.LoadResult, error) {
	provisioner, err := db.NewProvisioner()
	if err != nil {
		return nil, err
	}
	if _, err := provisioner.Ensure(ctx, collection, provision.DefaultSchema()); err != nil {
		return nil, err
	}

	loader, err := db.NewLoader()
	if err != nil {
		return nil, err
	}
	defer loader.Release()

	result, err := loader.Load(ctx, rows, collection)
	if err == nil || errors.Is(err, ingest.ErrPartialBatch) {
		db.saveLoadCheckpoint(ctx, collection, result)
	}
	return result, err
}

// StageIngest names the checkpoint written after a load.
const StageIngest = "ingest"

func (db *Database) saveLoadCheckpoint(ctx context.Context, collection string, result *ingest.LoadResult) {
	err := db.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Stage:      StageIngest,
		Collection: collection,
		Total:      result.Indexed + result.Failed,
		Affected:   result.Indexed,
	})
	if err != nil {
		db.logger.Warn("failed to save checkpoint", "stage", StageIngest, "err", err)
	}
}

// Status returns the last checkpoint of every stage.
func (db *Database) Status(ctx context.Context) ([]*core.Checkpoint, error) {
	return db.checkpoints.ListCheckpoints(ctx)
}
