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


package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/storage"
	"golang.org/x/time/rate"
)

// hit is a matched document as read from the slice snapshot.
type hit struct {
	id      string
	key     []byte
	version uint64
	doc     core.Document
}

// sliceFunc handles one round of hits for a slice and returns its counts.
type sliceFunc func(ctx context.Context, hits []hit) (*storage.ByQueryStats, error)

// CopyAll copies every document of the source collection into the destination.
// Documents keep their identity; existing destination documents are replaced.
func (s *Store) CopyAll(ctx context.Context, req storage.CopyRequest) (*storage.ByQueryStats, error) {
	src, err := s.Collection(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("copy source: %w", err)
	}
	dst, err := s.Collection(ctx, req.Dest)
	if err != nil {
		return nil, fmt.Errorf("copy destination: %w", err)
	}

	limiter := newLimiter(req.RequestsPerSecond)
	return s.runSlices(ctx, src, req.Slices, storage.MatchAll(), func(ctx context.Context, hits []hit) (*storage.ByQueryStats, error) {
		stats := &storage.ByQueryStats{}
		for _, h := range hits {
			if err := limiter.Wait(ctx); err != nil {
				return stats, ctxErr(ctx)
			}
			stats.Total++
			if err := dst.Mapping.Check(h.doc); err != nil {
				stats.Failures = append(stats.Failures, storage.Failure{ID: h.id, Reason: err.Error()})
				continue
			}
			dst.Mapping.Coerce(h.doc)
			value, err := s.codec.MarshalDocument(h.doc)
			if err != nil {
				return stats, err
			}
			var created bool
			err = s.backend.WithTx(func(tx *badger.Txn) error {
				var err error
				created, err = indexInTx(tx, makeDocumentKey(dst.Name, h.id), value)
				if err != nil {
					return err
				}
				return tx.Commit()
			}, true)
			if errors.Is(err, badger.ErrConflict) {
				return stats, fmt.Errorf("%w: document %s: %w", storage.ErrWriteConflict, h.id, err)
			}
			if err != nil {
				return stats, err
			}
			if created {
				stats.Created++
			} else {
				stats.Updated++
			}
		}
		return stats, nil
	})
}

// UpdateWhere runs the script over every matching document and writes the
// result back, provided the document did not change since it was read.
func (s *Store) UpdateWhere(ctx context.Context, req storage.UpdateRequest) (*storage.ByQueryStats, error) {
	if req.Script == nil {
		return nil, fmt.Errorf("%w: update script is required", storage.ErrInvalidQuery)
	}
	col, err := s.Collection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	limiter := newLimiter(req.RequestsPerSecond)
	return s.runSlices(ctx, col, req.Slices, req.Query, func(ctx context.Context, hits []hit) (*storage.ByQueryStats, error) {
		stats := &storage.ByQueryStats{}
		for _, h := range hits {
			if err := limiter.Wait(ctx); err != nil {
				return stats, ctxErr(ctx)
			}
			stats.Total++

			doc := h.doc.Clone()
			if err := req.Script(doc, req.Params); err != nil {
				stats.Failures = append(stats.Failures, storage.Failure{
					ID:     h.id,
					Reason: fmt.Errorf("%w: %w", storage.ErrScriptFailed, err).Error(),
				})
				continue
			}
			storage.NormalizeDocument(doc)
			if err := col.Mapping.Check(doc); err != nil {
				stats.Failures = append(stats.Failures, storage.Failure{ID: h.id, Reason: err.Error()})
				continue
			}
			col.Mapping.Coerce(doc)
			value, err := s.codec.MarshalDocument(doc)
			if err != nil {
				return stats, err
			}

			err = s.writeIfUnchanged(col.Name, h, func(tx *badger.Txn) error {
				return tx.Set(h.key, value)
			})
			if err := countConflict(stats, err, req.Conflicts, h.id); err != nil {
				return stats, err
			}
			if err == nil {
				stats.Updated++
			}
		}
		return stats, nil
	})
}

// DeleteWhere removes every matching document that did not change since it was read.
func (s *Store) DeleteWhere(ctx context.Context, req storage.DeleteRequest) (*storage.ByQueryStats, error) {
	col, err := s.Collection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	limiter := newLimiter(req.RequestsPerSecond)
	return s.runSlices(ctx, col, req.Slices, req.Query, func(ctx context.Context, hits []hit) (*storage.ByQueryStats, error) {
		stats := &storage.ByQueryStats{}
		for _, h := range hits {
			if err := limiter.Wait(ctx); err != nil {
				return stats, ctxErr(ctx)
			}
			stats.Total++

			err := s.writeIfUnchanged(col.Name, h, func(tx *badger.Txn) error {
				return tx.Delete(h.key)
			})
			if err := countConflict(stats, err, req.Conflicts, h.id); err != nil {
				return stats, err
			}
			if err == nil {
				stats.Deleted++
			}
		}
		return stats, nil
	})
}

// writeIfUnchanged applies write when the stored version still equals the one
// the hit was read at. A changed or vanished document is a version conflict.
func (s *Store) writeIfUnchanged(collection string, h hit, write func(tx *badger.Txn) error) error {
	if s.beforeWrite != nil {
		s.beforeWrite(collection, h.id)
	}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(h.key)
		if err == badger.ErrKeyNotFound {
			return storage.ErrVersionConflict
		}
		if err != nil {
			return err
		}
		if item.Version() != h.version {
			return storage.ErrVersionConflict
		}
		if err := write(tx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrVersionConflict
	}
	return err
}

// countConflict records a version conflict. It returns the error to stop the
// slice with: nil when the write succeeded or the conflict may be skipped.
func countConflict(stats *storage.ByQueryStats, err error, policy storage.ConflictPolicy, id string) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrVersionConflict) {
		return err
	}
	stats.VersionConflicts++
	if policy == storage.ConflictsProceed {
		return nil
	}
	return fmt.Errorf("document %s: %w", id, storage.ErrVersionConflict)
}

// runSlices partitions the collection into slices by identity hash, runs each
// slice on the pool and merges their counts. The first failing slice cancels
// the others; its error is returned alongside the counts gathered so far.
func (s *Store) runSlices(ctx context.Context, col *storage.Collection, slices int, q storage.Query, fn sliceFunc) (*storage.ByQueryStats, error) {
	if err := storage.ValidateQuery(q); err != nil {
		return nil, err
	}
	if slices < 0 {
		return nil, fmt.Errorf("%w: slices must not be negative, got %d", storage.ErrInvalidQuery, slices)
	}
	if slices == storage.SlicesAuto {
		slices = max(col.Settings.NumberOfShards, 1)
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	total := &storage.ByQueryStats{Slices: slices}

	for slice := range slices {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			stats, err := s.runSlice(ctx, col.Name, slice, slices, q, fn)

			mu.Lock()
			defer mu.Unlock()
			total.Merge(stats)
			if err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit slice %d: %w", slice, err)
			}
			mu.Unlock()
			cancel()
			break
		}
	}
	wg.Wait()

	total.Took = time.Since(start)
	if firstErr != nil {
		s.logger.Debug("query-scoped request failed", "collection", col.Name, "slices", slices, "err", firstErr)
	}
	return total, firstErr
}

// runSlice reads the slice's share of matching documents from one snapshot and
// hands them to fn in rounds of scrollSize.
func (s *Store) runSlice(ctx context.Context, collection string, slice, slices int, q storage.Query, fn sliceFunc) (*storage.ByQueryStats, error) {
	stats := &storage.ByQueryStats{}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeDocumentPrefix(collection)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		flush := func(hits []hit) error {
			if len(hits) == 0 {
				return nil
			}
			round, err := fn(ctx, hits)
			stats.Merge(round)
			return err
		}

		hits := make([]hit, 0, s.scrollSize)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctxErr(ctx); err != nil {
				return err
			}
			item := iter.Item()
			id := documentIDFromKey(prefix, item.Key())
			if slices > 1 && core.HashID(id)%uint64(slices) != uint64(slice) {
				continue
			}
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
			hits = append(hits, hit{id: id, key: item.KeyCopy(nil), version: item.Version(), doc: doc})
			if len(hits) == s.scrollSize {
				if err := flush(hits); err != nil {
					return err
				}
				hits = hits[:0]
			}
		}
		return flush(hits)
	}, false)
	return stats, err
}

// newLimiter throttles writes to rps documents per second; rps <= 0 is unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
