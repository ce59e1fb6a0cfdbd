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


package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/storage"
)

const (
	DefaultBatchSize      = 2000
	DefaultConcurrency    = 1
	DefaultReportInterval = 10000
	DefaultMaxRetries     = 5
	DefaultRetryDelay     = time.Second
)

// LoadResult summarises a load.
type LoadResult struct {
	// Indexed counts operations the store accepted, whether they created or
	// replaced a document.
	Indexed int64
	Failed  int64
	// Errors holds rejected operations in row order. Index is the row's
	// position in the input.
	Errors []storage.BulkItemError
	// Batches counts bulk calls that completed.
	Batches int
}

// Loader writes rows to a collection in bulk batches.
type Loader struct {
	store          storage.DocumentStore
	pool           *ants.Pool
	batchSize      int
	concurrency    int
	reportInterval int
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithBatchSize sets the number of rows per bulk call.
// Default is 2000.
func WithBatchSize(size int) Option {
	return func(l *Loader) error {
		if size < 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
		}
		l.batchSize = size
		return nil
	}
}

// WithConcurrency sets how many batches may be in flight at once.
// Default is 1, which applies batches in input order.
func WithConcurrency(n int) Option {
	return func(l *Loader) error {
		if n < 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, n)
		}
		l.concurrency = n
		return nil
	}
}

// WithReportInterval sets how many rows pass between progress log lines.
// 0 disables intermediate progress.
func WithReportInterval(rows int) Option {
	return func(l *Loader) error {
		l.reportInterval = max(rows, 0)
		return nil
	}
}

// WithRetries sets the attempts per batch and the base backoff delay for
// batches that time out.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(l *Loader) error {
		if maxRetries < 1 {
			return storage.ErrInvalidMaxAttempts
		}
		l.maxRetries = maxRetries
		l.retryDelay = delay
		return nil
	}
}

// WithRequestTimeout bounds each bulk call. 0 means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(l *Loader) error {
		l.requestTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// NewLoader creates a Loader writing to store.
func NewLoader(store storage.DocumentStore, opts ...Option) (*Loader, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	l := &Loader{
		store:          store,
		batchSize:      DefaultBatchSize,
		concurrency:    DefaultConcurrency,
		reportInterval: DefaultReportInterval,
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(l.concurrency)
	if err != nil {
		return nil, err
	}
	l.pool = pool
	return l, nil
}

// Release releases the worker pool.
// The loader should not be used after calling Release.
func (l *Loader) Release() {
	if l.pool != nil {
		l.pool.Release()
	}
}

// Load indexes every row into collection. The sequence is consumed once, in
// order. Load returns only after every submitted batch has finished.
//
// If some operations were rejected the result is returned with a
// *PartialBatchError. A row source error stops reading; batches already
// submitted still complete and are counted. A batch that fails outright
// cancels the batches still in flight.
func (l *Loader) Load(ctx context.Context, rows iter.Seq2[core.Row, error], collection string) (*LoadResult, error) {
	if err := l.store.Ping(ctx); err != nil {
		l.logger.Warn("store ping failed, attempting load anyway", "err", err)
	}
	exists, err := l.store.Exists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", collection, storage.ErrNotFound)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.logger.Info("starting bulk load", "collection", collection,
		"batchSize", l.batchSize, "concurrency", l.concurrency)
	progress := newProgressTracker(l.logger, collection, l.reportInterval)

	type failure struct {
		row int
		err error
	}
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures []failure
	)
	result := &LoadResult{}

	// stop records a fatal error for the batch or row at row. Every failure is
	// kept; batches in flight are canceled when abort is set.
	stop := func(row int, err error, abort bool) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, failure{row: row, err: err})
		if abort {
			cancel()
		}
	}
	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) > 0
	}

	submit := func(offset int, ops []storage.BulkOp) {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			resp, err := l.bulk(ctx, ops)
			if err != nil {
				stop(offset, fmt.Errorf("batch at row %d: %w", offset, err), true)
				return
			}

			mu.Lock()
			result.Batches++
			result.Indexed += resp.Succeeded()
			for _, itemErr := range resp.Errors {
				itemErr.Index += offset
				result.Failed++
				result.Errors = append(result.Errors, itemErr)
			}
			mu.Unlock()
			progress.Increment(len(ops))
		}
		if err := l.pool.Submit(task); err != nil {
			wg.Done()
			stop(offset, fmt.Errorf("submit batch at row %d: %w", offset, err), true)
		}
	}

	batch := make([]storage.BulkOp, 0, l.batchSize)
	offset, n := 0, 0
	for row, err := range rows {
		if err != nil {
			stop(n, fmt.Errorf("%w: row %d: %w", ErrRowSource, n, err), false)
			break
		}
		if stopped() {
			break
		}
		if err := ctx.Err(); err != nil {
			stop(n, err, true)
			break
		}

		batch = append(batch, storage.BulkOp{
			Collection: collection,
			ID:         core.DocumentID(row),
			Body:       row.Document(),
		})
		n++
		if len(batch) == l.batchSize {
			submit(offset, batch)
			offset = n
			batch = make([]storage.BulkOp, 0, l.batchSize)
		}
	}
	if len(batch) > 0 && !stopped() {
		submit(offset, batch)
	}
	wg.Wait()
	progress.Finish()

	slices.SortFunc(result.Errors, func(a, b storage.BulkItemError) int {
		return cmp.Compare(a.Index, b.Index)
	})

	if len(failures) > 0 {
		slices.SortStableFunc(failures, func(a, b failure) int {
			return cmp.Compare(a.row, b.row)
		})
		errs := make([]error, len(failures))
		for i, f := range failures {
			errs[i] = f.err
		}
		fatalErr := errors.Join(errs...)
		l.logger.Error("bulk load failed", "collection", collection, "indexed", result.Indexed, "err", fatalErr)
		return result, fmt.Errorf("load %s: %w", collection, fatalErr)
	}
	l.logger.Info("bulk load completed", "collection", collection, "indexed", result.Indexed,
		"failed", result.Failed, "batches", result.Batches, "elapsed", progress.Elapsed())
	if result.Failed > 0 {
		return result, &PartialBatchError{
			Indexed: result.Indexed,
			Failed:  result.Failed,
			Errors:  result.Errors,
		}
	}
	return result, nil
}

// bulk submits one batch, retrying timeouts.
func (l *Loader) bulk(ctx context.Context, ops []storage.BulkOp) (*storage.BulkResponse, error) {
	var resp *storage.BulkResponse
	err := storage.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := l.callContext(ctx)
		defer cancel()

		var err error
		resp, err = l.store.Bulk(callCtx, storage.BulkRequest{Operations: ops})
		return err
	}, l.maxRetries, l.retryDelay)
	return resp, err
}

func (l *Loader) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.requestTimeout > 0 {
		return context.WithTimeout(ctx, l.requestTimeout)
	}
	return context.WithCancel(ctx)
}
