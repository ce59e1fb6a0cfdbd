package storage

//go:generate go run ../cmd/musgen

import (
	"time"

	"github.com/poiesic/assetpipe/core"
)

// ConflictPolicy decides what a query-scoped write does on a version conflict.
type ConflictPolicy string

const (
	// ConflictsAbort stops the request at the first version conflict.
	ConflictsAbort ConflictPolicy = "abort"
	// ConflictsProceed counts the conflict and continues with the next document.
	ConflictsProceed ConflictPolicy = "proceed"
)

// SlicesAuto lets the store pick the number of slices, one per shard.
const SlicesAuto = 0

// CreateRequest describes a collection to create.
type CreateRequest struct {
	Name    string
	Mapping Mapping
	// Settings is nil for mapping-only creation.
	Settings *Settings
}

// Collection describes an existing collection.
type Collection struct {
	Name      string    `json:"name"`
	Mapping   Mapping   `json:"mapping"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
}

// BulkOp indexes (insert-or-replace) one document.
type BulkOp struct {
	Collection string
	// ID is the document identity. Empty means the store assigns one.
	ID   string
	Body core.Document
}

// BulkRequest groups operations sent in one call.
type BulkRequest struct {
	Operations []BulkOp
}

// BulkItemError reports why a single operation failed.
type BulkItemError struct {
	Index      int    `json:"index"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Err        error  `json:"-"`
	Reason     string `json:"reason"`
}

// BulkResponse summarises a bulk call.
type BulkResponse struct {
	Created int64
	Updated int64
	Errors  []BulkItemError
	Took    time.Duration
}

// Succeeded is the number of operations applied.
func (r *BulkResponse) Succeeded() int64 {
	return r.Created + r.Updated
}

// CopyRequest copies every document of Source into Dest.
type CopyRequest struct {
	Source string
	Dest   string
	// Slices is the number of parallel partitions; SlicesAuto uses the source shard count.
	Slices int
	// RequestsPerSecond throttles document writes; zero or negative means unlimited.
	RequestsPerSecond float64
	Conflicts         ConflictPolicy
}

// Params are named values handed to an update script.
type Params map[string]any

// Script rewrites a document in place. Returning an error marks the document failed.
type Script func(doc core.Document, params Params) error

// UpdateRequest rewrites every document matching Query.
type UpdateRequest struct {
	Collection        string
	Query             Query
	Script            Script
	Params            Params
	Conflicts         ConflictPolicy
	Slices            int
	RequestsPerSecond float64
}

// DeleteRequest removes every document matching Query.
type DeleteRequest struct {
	Collection        string
	Query             Query
	Conflicts         ConflictPolicy
	Slices            int
	RequestsPerSecond float64
}

// Failure describes a document a query-scoped request could not process.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ByQueryStats summarises a copy, update or delete request.
type ByQueryStats struct {
	Total            int64         `json:"total"`
	Created          int64         `json:"created"`
	Updated          int64         `json:"updated"`
	Deleted          int64         `json:"deleted"`
	VersionConflicts int64         `json:"version_conflicts"`
	Slices           int           `json:"slices"`
	Failures         []Failure     `json:"failures,omitempty"`
	Took             time.Duration `json:"took"`
}

// Merge folds the counts of other into s.
func (s *ByQueryStats) Merge(other *ByQueryStats) {
	if other == nil {
		return
	}
	s.Total += other.Total
	s.Created += other.Created
	s.Updated += other.Updated
	s.Deleted += other.Deleted
	s.VersionConflicts += other.VersionConflicts
	s.Failures = append(s.Failures, other.Failures...)
}
