package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/storage"
)

const (
	// DefaultNumberOfShards is used when a collection is created without settings.
	DefaultNumberOfShards = 1
	// DefaultScrollSize is the number of matching documents handled per write round.
	DefaultScrollSize = 1000
)

// Store implements storage.DocumentStore on BadgerDB.
type Store struct {
	backend    *Backend
	codec      *storage.Codec
	pool       *ants.Pool
	serverless bool
	compress   bool
	poolSize   int
	scrollSize int
	logger     *slog.Logger

	// beforeWrite runs between reading a matched document and writing it back.
	beforeWrite func(collection, id string)
}

var _ storage.DocumentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithServerless restricts collection creation to mappings only, as managed
// deployments do. Create requests carrying settings then fail.
func WithServerless(serverless bool) Option {
	return func(s *Store) error {
		s.serverless = serverless
		return nil
	}
}

// WithCompression enables zstd compression of stored values.
func WithCompression(compress bool) Option {
	return func(s *Store) error {
		s.compress = compress
		return nil
	}
}

// WithPoolSize sets the number of slices that may run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Store) error {
		if size < 1 {
			size = 1
		}
		s.poolSize = size
		return nil
	}
}

// WithScrollSize sets how many matched documents a slice handles per round.
func WithScrollSize(size int) Option {
	return func(s *Store) error {
		if size < 1 {
			return fmt.Errorf("scroll size must be greater than 0, got %d", size)
		}
		s.scrollSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore creates a document store on an open backend.
// The backend stays owned by the caller.
func NewStore(backend *Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	s := &Store{
		backend:    backend,
		poolSize:   poolSize,
		scrollSize: DefaultScrollSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	codec, err := storage.NewCodec(s.compress)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		codec.Close()
		return nil, err
	}
	s.codec = codec
	s.pool = pool
	return s, nil
}

// Close releases the slice pool and codec. The backend is not closed.
func (s *Store) Close() error {
	s.pool.Release()
	s.codec.Close()
	return nil
}

// Ping delegates to the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Exists reports whether a collection exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateCollectionName(name); err != nil {
		return false, err
	}
	_, err := s.Collection(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create creates a collection with its mapping and, on self-managed stores, settings.
func (s *Store) Create(ctx context.Context, req storage.CreateRequest) error {
	if err := validateCollectionName(req.Name); err != nil {
		return err
	}
	if req.Settings != nil && s.serverless {
		return fmt.Errorf("create %s: %w", req.Name, storage.ErrSettingsNotSupported)
	}

	col := &storage.Collection{
		Name:      req.Name,
		Mapping:   req.Mapping,
		Settings:  storage.Settings{NumberOfShards: DefaultNumberOfShards},
		CreatedAt: time.Now().UTC(),
	}
	if col.Mapping.Dynamic == "" {
		col.Mapping.Dynamic = storage.DynamicTrue
	}
	if req.Settings != nil {
		col.Settings = *req.Settings
		if col.Settings.NumberOfShards < 1 {
			col.Settings.NumberOfShards = DefaultNumberOfShards
		}
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionKey(req.Name)
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("create %s: %w", req.Name, storage.ErrCollectionExists)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		value, err := s.codec.MarshalCollection(col)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Collection returns the description of a collection.
func (s *Store) Collection(ctx context.Context, name string) (*storage.Collection, error) {
	var col *storage.Collection
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		col, err = s.readCollection(tx, name)
		return err
	}, false)
	return col, err
}

// maxBulkConflictRetries bounds how often a bulk transaction is replayed after
// losing a commit race to a concurrent writer.
const maxBulkConflictRetries = 5

// Bulk applies index operations. Operations that fail validation are reported
// per item and do not stop the others.
//
// Operations are committed in as few transactions as Badger allows. A
// transaction that conflicts with a concurrent writer of the same documents is
// replayed from its first operation; if it keeps conflicting the call fails with
// storage.ErrWriteConflict, which callers may retry.
func (s *Store) Bulk(ctx context.Context, req storage.BulkRequest) (*storage.BulkResponse, error) {
	start := time.Now()
	resp := &storage.BulkResponse{}

	ids := make([]string, len(req.Operations))
	for i, op := range req.Operations {
		ids[i] = op.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
	}

	for next := 0; next < len(req.Operations); {
		var (
			part *storage.BulkResponse
			end  int
			err  error
		)
		for attempt := 1; ; attempt++ {
			part, end, err = s.bulkTx(ctx, req.Operations, ids, next)
			if !errors.Is(err, badger.ErrConflict) {
				break
			}
			if attempt == maxBulkConflictRetries {
				return nil, fmt.Errorf("%w: operations %d-%d: %w",
					storage.ErrWriteConflict, next, len(req.Operations)-1, err)
			}
			s.logger.Debug("bulk transaction conflicted, replaying", "from", next, "attempt", attempt)
		}
		if err != nil {
			return nil, err
		}
		resp.Created += part.Created
		resp.Updated += part.Updated
		resp.Errors = append(resp.Errors, part.Errors...)
		next = end
	}

	resp.Took = time.Since(start)
	return resp, nil
}

// bulkTx applies operations from index start in one write transaction and
// commits it. It stops early when the transaction is full and returns the index
// of the first operation it did not apply. Nothing is counted unless the commit
// succeeds.
//
// Existence checks read a separate snapshot so the write transaction carries no
// reads; concurrent upserts of the same document then never conflict and the
// last commit wins.
func (s *Store) bulkTx(ctx context.Context, ops []storage.BulkOp, ids []string, start int) (*storage.BulkResponse, int, error) {
	resp := &storage.BulkResponse{}
	end := len(ops)

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		snap := s.backend.db.NewTransaction(false)
		defer snap.Discard()

		collections := make(map[string]*storage.Collection)
		written := make(map[string]bool)

		for i := start; i < len(ops); i++ {
			if err := ctxErr(ctx); err != nil {
				return err
			}
			op := ops[i]

			col, ok := collections[op.Collection]
			if !ok {
				var err error
				col, err = s.readCollection(snap, op.Collection)
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				collections[op.Collection] = col
			}

			itemErr := func(err error) {
				resp.Errors = append(resp.Errors, storage.BulkItemError{
					Index:      i,
					Collection: op.Collection,
					ID:         ids[i],
					Err:        err,
					Reason:     err.Error(),
				})
			}

			if col == nil {
				itemErr(fmt.Errorf("collection %s: %w", op.Collection, storage.ErrNotFound))
				continue
			}
			body := op.Body.Clone()
			if body == nil {
				body = core.Document{}
			}
			storage.NormalizeDocument(body)
			if err := col.Mapping.Check(body); err != nil {
				itemErr(err)
				continue
			}
			col.Mapping.Coerce(body)
			value, err := s.codec.MarshalDocument(body)
			if err != nil {
				itemErr(err)
				continue
			}

			key := makeDocumentKey(op.Collection, ids[i])
			created := false
			if !written[string(key)] {
				_, err := snap.Get(key)
				if err != nil && err != badger.ErrKeyNotFound {
					return err
				}
				created = err == badger.ErrKeyNotFound
			}
			if err := tx.Set(key, value); err != nil {
				if errors.Is(err, badger.ErrTxnTooBig) && i > start {
					end = i
					break
				}
				return err
			}
			written[string(key)] = true
			if created {
				resp.Created++
			} else {
				resp.Updated++
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, start, err
	}
	return resp, end, nil
}

// indexInTx writes a document, reporting whether it did not exist before.
func indexInTx(tx *badger.Txn, key, value []byte) (bool, error) {
	_, err := tx.Get(key)
	created := err == badger.ErrKeyNotFound
	if err != nil && !created {
		return false, err
	}
	if err := tx.Set(key, value); err != nil {
		return false, err
	}
	return created, nil
}

// Get retrieves a document by identity.
func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	var doc core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := s.readCollection(tx, collection); err != nil {
			return err
		}
		item, err := tx.Get(makeDocumentKey(collection, id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("document %s/%s: %w", collection, id, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			doc, err = s.codec.UnmarshalDocument(val)
			return err
		})
	}, false)
	return doc, err
}

// Count returns the number of documents matching the query.
func (s *Store) Count(ctx context.Context, collection string, q storage.Query) (int64, error) {
	var count int64
	err := s.scan(ctx, collection, q, func(string, core.Document) bool {
		count++
		return true
	})
	return count, err
}

// Search returns up to limit matching documents keyed by identity.
func (s *Store) Search(ctx context.Context, collection string, q storage.Query, limit int) (map[string]core.Document, error) {
	results := make(map[string]core.Document)
	err := s.scan(ctx, collection, q, func(id string, doc core.Document) bool {
		results[id] = doc
		return limit <= 0 || len(results) < limit
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// scan visits matching documents in key order until fn returns false.
func (s *Store) scan(ctx context.Context, collection string, q storage.Query, fn func(id string, doc core.Document) bool) error {
	if err := storage.ValidateQuery(q); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := s.readCollection(tx, collection); err != nil {
			return err
		}
		prefix := makeDocumentPrefix(collection)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctxErr(ctx); err != nil {
				return err
			}
			item := iter.Item()
			var doc core.Document
			err := item.Value(func(val []byte) error {
				var err error
				doc, err = s.codec.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if !q.Match(doc) {
				continue
			}
			if !fn(documentIDFromKey(prefix, item.Key()), doc) {
				return nil
			}
		}
		return nil
	}, false)
}

// readCollection reads a collection description from the transaction.
func (s *Store) readCollection(tx *badger.Txn, name string) (*storage.Collection, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("collection %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var col *storage.Collection
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		col, unmarshalErr = s.codec.UnmarshalCollection(val)
		return unmarshalErr
	})
	return col, err
}

// ctxErr maps an expired deadline to storage.ErrTimeout.
func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", storage.ErrTimeout, err)
	}
	return err
}
