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


package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested collection or document was not found.
	ErrNotFound = errors.New("not found")

	// ErrCollectionExists indicates a create request for a collection that already exists.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidCollectionName indicates a collection name the store cannot hold.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrSettingsNotSupported indicates storage settings were sent to a store that
	// only accepts mappings (serverless deployments).
	ErrSettingsNotSupported = errors.New("collection settings not supported by this deployment")

	// ErrConnectivity indicates the store did not answer a liveness check.
	ErrConnectivity = errors.New("store unreachable")

	// ErrTimeout indicates the store gave up on a request before it completed.
	// Requests keyed by identity or scoped by query may be retried safely.
	ErrTimeout = errors.New("request timed out")

	// ErrWriteConflict indicates a write lost repeated commit races against
	// concurrent writers of the same documents. The request may be retried.
	ErrWriteConflict = errors.New("concurrent write conflict")

	// ErrVersionConflict indicates a document changed between read and write.
	ErrVersionConflict = errors.New("version conflict")

	// ErrMapping indicates a document was rejected by the collection mapping.
	ErrMapping = errors.New("mapping rejected document")

	// ErrScriptFailed indicates an update script returned an error for a document.
	ErrScriptFailed = errors.New("update script failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// MappingError describes why a field value was rejected.
type MappingError struct {
	Field  string
	Type   FieldType
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("field %q (%s): %s", e.Field, e.Type, e.Reason)
}

// Unwrap lets errors.Is match ErrMapping.
func (e *MappingError) Unwrap() error {
	return ErrMapping
}
