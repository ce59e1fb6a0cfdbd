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
	"log/slog"
	"time"

	"github.com/poiesic/assetpipe/config"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/metrics"
	"github.com/poiesic/assetpipe/provision"
	"github.com/poiesic/assetpipe/storage"
)

// Stage names, as used in reports, checkpoints and metrics.
const (
	StageProvision = "provision"
	StageCopy      = "copy"
	StageEnrich    = "enrich"
	StageCleanse   = "cleanse"
)

// StageResult is the outcome of one stage of a run.
type StageResult struct {
	Stage string
	// Stats is nil for the provision stage.
	Stats *storage.ByQueryStats
	// Created reports whether provisioning created the destination.
	Created bool
	Took    time.Duration
	Err     error
}

// Report aggregates a pipeline run.
type Report struct {
	Copied    int64
	Enriched  int64
	Conflicts int64
	Deleted   int64
	// Failed counts documents a stage could not process, such as records
	// rejected by the destination mapping.
	Failed int64
	// Stages lists the stages that ran, in order.
	Stages []StageResult
	// Failures maps a failed stage to its error. Empty on success.
	Failures map[string]error
}

// OK reports whether every stage completed.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

func (r *Report) add(res StageResult) {
	r.Stages = append(r.Stages, res)
	if res.Err != nil {
		r.Failures[res.Stage] = res.Err
	}
	if res.Stats == nil {
		return
	}
	r.Conflicts += res.Stats.VersionConflicts
	r.Failed += int64(len(res.Stats.Failures))
	switch res.Stage {
	case StageCopy:
		r.Copied += res.Stats.Created + res.Stats.Updated
	case StageEnrich:
		r.Enriched += res.Stats.Updated
	case StageCleanse:
		r.Deleted += res.Stats.Deleted
	}
}

// Pipeline drives the transform stages from the source collection into the
// destination collection.
type Pipeline struct {
	store       storage.DocumentStore
	checkpoints storage.CheckpointRepository
	provisioner *provision.Provisioner
	schema      storage.Mapping
	cfg         *config.Config
	recorder    *metrics.Recorder
	clock       func() time.Time
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithClock sets the time source the enrichment year is taken from.
// Default is time.Now.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) error {
		if clock == nil {
			clock = time.Now
		}
		p.clock = clock
		return nil
	}
}

// WithRecorder records stage metrics. Default is no metrics.
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(p *Pipeline) error {
		p.recorder = recorder
		return nil
	}
}

// WithSchema sets the mapping the destination is provisioned with.
// Default is provision.DefaultSchema().
func WithSchema(schema storage.Mapping) Option {
	return func(p *Pipeline) error {
		p.schema = schema
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a Pipeline. checkpoints may be nil, in which case stage
// outcomes are not persisted.
func NewPipeline(store storage.DocumentStore, checkpoints storage.CheckpointRepository, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:       store,
		checkpoints: checkpoints,
		schema:      provision.DefaultSchema(),
		cfg:         cfg,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	profile, err := provision.ParseProfile(cfg.Store.Profile)
	if err != nil {
		return nil, err
	}
	p.provisioner, err = provision.NewProvisioner(store,
		provision.WithProfile(profile), provision.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Run executes provision, copy, enrich and cleanse in order. It stops at the
// first failing stage and returns the report so far with a *StageError.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if err := p.store.Ping(ctx); err != nil {
		p.logger.Warn("store ping failed, attempting pipeline anyway", "err", err)
	}

	source, dest := p.cfg.SourceCollection, p.cfg.DestCollection
	p.logger.Info("starting pipeline", "source", source, "dest", dest)
	start := time.Now()

	stages := []struct {
		name string
		run  func(ctx context.Context) StageResult
	}{
		{StageProvision, func(ctx context.Context) StageResult {
			created, err := p.provisioner.Ensure(ctx, dest, p.schema)
			return StageResult{Created: created, Err: err}
		}},
		{StageCopy, func(ctx context.Context) StageResult {
			stats, err := p.Copy(ctx, source, dest)
			return StageResult{Stats: stats, Err: err}
		}},
		{StageEnrich, func(ctx context.Context) StageResult {
			stats, err := p.Enrich(ctx, dest)
			return StageResult{Stats: stats, Err: err}
		}},
		{StageCleanse, func(ctx context.Context) StageResult {
			stats, err := p.Cleanse(ctx, dest)
			return StageResult{Stats: stats, Err: err}
		}},
	}

	report := &Report{Failures: make(map[string]error)}
	for _, stage := range stages {
		res := p.runStage(ctx, stage.name, dest, stage.run)
		report.add(res)
		if res.Err != nil {
			p.logger.Error("pipeline aborted", "stage", stage.name, "err", res.Err)
			return report, &StageError{Stage: stage.name, Err: res.Err}
		}
	}

	p.logger.Info("pipeline completed",
		"copied", report.Copied,
		"enriched", report.Enriched,
		"conflicts", report.Conflicts,
		"deleted", report.Deleted,
		"failed", report.Failed,
		"elapsed", time.Since(start))
	return report, nil
}

// runStage runs one stage with logging, metrics and a checkpoint on success.
func (p *Pipeline) runStage(ctx context.Context, name, collection string, run func(ctx context.Context) StageResult) StageResult {
	p.logger.Info("stage started", "stage", name, "collection", collection)
	start := time.Now()

	res := run(ctx)
	res.Stage = name
	res.Took = time.Since(start)

	outcome := metrics.OutcomeSuccess
	if res.Err != nil {
		outcome = metrics.OutcomeFailure
		p.logger.Error("stage failed", "stage", name, "collection", collection, "took", res.Took, "err", res.Err)
	} else {
		p.logStage(res, collection)
	}
	p.record(res, outcome)

	if res.Err == nil && res.Stats != nil {
		if err := p.saveCheckpoint(ctx, name, collection, res.Stats); err != nil {
			p.logger.Warn("failed to save checkpoint", "stage", name, "err", err)
		}
	}
	return res
}

func (p *Pipeline) logStage(res StageResult, collection string) {
	if res.Stats == nil {
		p.logger.Info("stage completed", "stage", res.Stage, "collection", collection,
			"created", res.Created, "took", res.Took)
		return
	}
	s := res.Stats
	p.logger.Info("stage completed", "stage", res.Stage, "collection", collection,
		"total", s.Total, "created", s.Created, "updated", s.Updated, "deleted", s.Deleted,
		"conflicts", s.VersionConflicts, "failures", len(s.Failures), "slices", s.Slices, "took", res.Took)
	for _, f := range s.Failures {
		p.logger.Warn("document not processed", "stage", res.Stage, "id", f.ID, "reason", f.Reason)
	}
}

func (p *Pipeline) record(res StageResult, outcome metrics.Outcome) {
	if p.recorder == nil {
		return
	}
	p.recorder.ObserveStage(res.Stage, outcome, res.Took)
	if res.Stats == nil {
		return
	}
	p.recorder.AddDocuments(res.Stage, metrics.ResultCreated, res.Stats.Created)
	p.recorder.AddDocuments(res.Stage, metrics.ResultUpdated, res.Stats.Updated)
	p.recorder.AddDocuments(res.Stage, metrics.ResultDeleted, res.Stats.Deleted)
	p.recorder.AddDocuments(res.Stage, metrics.ResultConflict, res.Stats.VersionConflicts)
	p.recorder.AddDocuments(res.Stage, metrics.ResultFailed, int64(len(res.Stats.Failures)))
}

func (p *Pipeline) saveCheckpoint(ctx context.Context, stage, collection string, stats *storage.ByQueryStats) error {
	if p.checkpoints == nil {
		return nil
	}
	err := p.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Stage:      stage,
		Collection: collection,
		Total:      stats.Total,
		Affected:   stats.Created + stats.Updated + stats.Deleted,
		Conflicts:  stats.VersionConflicts,
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", stage, err)
	}
	return nil
}
