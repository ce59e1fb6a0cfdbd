package ingest

import (
	"errors"
	"fmt"

	"github.com/poiesic/assetpipe/storage"
)

var (
	// ErrStoreRequired is returned when a document store is not provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrInvalidBatchSize is returned when batch size is less than 1.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrInvalidConcurrency is returned when concurrency is less than 1.
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")

	// ErrPartialBatch matches any *PartialBatchError.
	ErrPartialBatch = errors.New("some bulk operations failed")

	// ErrRowSource is returned when the row sequence yields an error.
	ErrRowSource = errors.New("reading rows failed")
)

// PartialBatchError reports bulk operations the store rejected while the
// rest of the load succeeded.
type PartialBatchError struct {
	Indexed int64
	Failed  int64
	Errors  []storage.BulkItemError
}

func (e *PartialBatchError) Error() string {
	msg := fmt.Sprintf("%d of %d bulk operations failed", e.Failed, e.Indexed+e.Failed)
	if len(e.Errors) > 0 {
		first := e.Errors[0]
		msg += fmt.Sprintf(" (first: row %d id %q: %s)", first.Index, first.ID, first.Reason)
	}
	return msg
}

// Unwrap lets errors.Is match ErrPartialBatch.
func (e *PartialBatchError) Unwrap() error {
	return ErrPartialBatch
}
