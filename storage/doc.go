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


// Package storage provides the document store abstraction used by assetpipe.
//
// This package defines the DocumentStore interface together with the request,
// mapping and query types every implementation shares. It decouples the
// pipeline stages from the storage engine so stages can be exercised against
// an in-memory store in tests and a persistent one in production.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the concrete store,
// which satisfies DocumentStore:
//
//	store, err := badger.NewStore(backend)
//
// Consumers depend on storage.DocumentStore, never on the concrete type.
//
// # Architecture
//
//   - DocumentStore: collection lifecycle, bulk writes, query-scoped writes
//   - CheckpointRepository: persisted stage outcomes
//   - Mapping: per-collection field types, checked at index time
//   - Query: predicates evaluated inside the store (MatchAll, Term, Present, Bool)
//   - Codec: JSON serialization with optional zstd compression
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Visibility
//
// Every write call commits before it returns. Documents written by one call
// are visible to the next; there is no separate refresh step.
//
// # Context Support
//
// All store methods accept context.Context. Long-running requests check it
// between documents; an expired deadline is reported as ErrTimeout so callers
// can retry, while cancellation is returned as the context error.
package storage
