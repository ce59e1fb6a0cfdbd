package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned when a document store is not provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrConfigRequired is returned when a configuration is not provided.
	ErrConfigRequired = errors.New("configuration required")

	// ErrMissingCurrentYear is returned by the enrichment script when the
	// current_year parameter is absent or not an int.
	ErrMissingCurrentYear = errors.New("current_year parameter required")
)

// StageError identifies the stage that ended a pipeline run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
