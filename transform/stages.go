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


package transform

import (
	"context"
	"fmt"

	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/storage"
)

// ParamCurrentYear is the enrichment script parameter holding the year ages
// are computed against.
const ParamCurrentYear = "current_year"

// Copy reindexes every document of source into dest, including fields derived
// by earlier runs. Both collections must exist.
func (p *Pipeline) Copy(ctx context.Context, source, dest string) (*storage.ByQueryStats, error) {
	return p.call(ctx, func(ctx context.Context) (*storage.ByQueryStats, error) {
		return p.store.CopyAll(ctx, storage.CopyRequest{
			Source:            source,
			Dest:              dest,
			Slices:            p.cfg.Slices,
			RequestsPerSecond: p.cfg.RequestsPerSecond,
			Conflicts:         storage.ConflictsProceed,
		})
	})
}

// Enrich recomputes risk_level and system_age_years on every document of the
// collection. The current year is read once per call.
func (p *Pipeline) Enrich(ctx context.Context, collection string) (*storage.ByQueryStats, error) {
	params := storage.Params{ParamCurrentYear: p.clock().Year()}
	return p.call(ctx, func(ctx context.Context) (*storage.ByQueryStats, error) {
		return p.store.UpdateWhere(ctx, storage.UpdateRequest{
			Collection:        collection,
			Query:             storage.MatchAll(),
			Script:            EnrichScript,
			Params:            params,
			Conflicts:         storage.ConflictsProceed,
			Slices:            p.cfg.Slices,
			RequestsPerSecond: p.cfg.RequestsPerSecond,
		})
	})
}

// EnrichScript writes the derived fields into doc. It expects the current
// year as an int under ParamCurrentYear.
func EnrichScript(doc core.Document, params storage.Params) error {
	year, ok := params[ParamCurrentYear].(int)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrMissingCurrentYear, params[ParamCurrentYear])
	}
	core.Derive(doc, year).Apply(doc)
	return nil
}

// Cleanse deletes every document of the collection that has no usable
// hostname or whose provider is exactly "Unknown".
func (p *Pipeline) Cleanse(ctx context.Context, collection string) (*storage.ByQueryStats, error) {
	return p.call(ctx, func(ctx context.Context) (*storage.ByQueryStats, error) {
		return p.store.DeleteWhere(ctx, storage.DeleteRequest{
			Collection:        collection,
			Query:             CleanseQuery(),
			Conflicts:         storage.ConflictsProceed,
			Slices:            p.cfg.Slices,
			RequestsPerSecond: p.cfg.RequestsPerSecond,
		})
	})
}

// CleanseQuery selects records that fail validation. For string fields a
// document matches exactly when core.IsValid reports false.
func CleanseQuery() storage.Query {
	return storage.Any(
		storage.Not(storage.Present(core.FieldHostname)),
		storage.Term(core.FieldOSProvider, core.Unknown),
	)
}

// call runs one store request bounded by the request timeout, retrying
// timeouts with backoff.
func (p *Pipeline) call(ctx context.Context, fn func(ctx context.Context) (*storage.ByQueryStats, error)) (*storage.ByQueryStats, error) {
	var stats *storage.ByQueryStats
	err := storage.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := p.callContext(ctx)
		defer cancel()

		var err error
		stats, err = fn(callCtx)
		return err
	}, p.cfg.MaxRetries, p.cfg.RetryDelay)
	return stats, err
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}
