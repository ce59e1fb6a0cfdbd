package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/assetpipe/config"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/ingest"
	"github.com/poiesic/assetpipe/metrics"
	"github.com/poiesic/assetpipe/storage"
	"github.com/poiesic/assetpipe/storage/badger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsOf(rows ...core.Row) func(yield func(core.Row, error) bool) {
	return func(yield func(core.Row, error) bool) {
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

// loadSource provisions the source collection and loads rows into it.
func loadSource(t *testing.T, store storage.DocumentStore, rows ...core.Row) {
	t.Helper()
	seed(t, store, sourceCollection, nil)
	loader, err := ingest.NewLoader(store)
	require.NoError(t, err)
	defer loader.Release()
	_, err = loader.Load(context.Background(), rowsOf(rows...), sourceCollection)
	require.NoError(t, err)
}

// timeoutStore times out the first failures update calls.
type timeoutStore struct {
	storage.DocumentStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *timeoutStore) UpdateWhere(ctx context.Context, req storage.UpdateRequest) (*storage.ByQueryStats, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("update: %w", storage.ErrTimeout)
	}
	return s.DocumentStore.UpdateWhere(ctx, req)
}

func TestNewPipeline_Validation(t *testing.T) {
	store, _ := setupStore(t)

	_, err := NewPipeline(nil, nil, testConfig())
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(store, nil, nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	cfg := testConfig()
	cfg.DestCollection = cfg.SourceCollection
	_, err = NewPipeline(store, nil, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestPipeline_EndToEnd(t *testing.T) {
	store, checkpoints := setupStore(t)
	ctx := context.Background()
	loadSource(t, store,
		core.Row{core.FieldHostname: "host-a", core.FieldLifecycleStatus: "EOL",
			core.FieldInstallationDate: "2010-01-01", core.FieldOSProvider: "Microsoft"},
		core.Row{core.FieldHostname: "host-b", core.FieldLifecycleStatus: "Active",
			core.FieldInstallationDate: "Unknown", core.FieldOSProvider: "Canonical"},
		core.Row{core.FieldHostname: "", core.FieldLifecycleStatus: "EOL",
			core.FieldInstallationDate: "2020-01-01", core.FieldOSProvider: "Microsoft"},
	)
	p := newPipeline(t, store, checkpoints)

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, int64(3), report.Copied)
	assert.Equal(t, int64(3), report.Enriched)
	assert.Equal(t, int64(1), report.Deleted)
	assert.Zero(t, report.Conflicts)
	require.Len(t, report.Stages, 4)
	assert.Equal(t, StageProvision, report.Stages[0].Stage)
	assert.True(t, report.Stages[0].Created)
	assert.Equal(t, StageCleanse, report.Stages[3].Stage)

	docs, err := store.Search(ctx, destCollection, storage.MatchAll(), 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	a := docs["host-a"]
	require.NotNil(t, a)
	assert.Equal(t, "High", a[core.FieldRiskLevel])
	assert.Equal(t, int64(14), a[core.FieldSystemAgeYears])

	b := docs["host-b"]
	require.NotNil(t, b)
	assert.Equal(t, "Low", b[core.FieldRiskLevel])
	assert.Contains(t, b, core.FieldSystemAgeYears)
	assert.Nil(t, b[core.FieldSystemAgeYears])

	// The source keeps every loaded record.
	count, err := store.Count(ctx, sourceCollection, storage.MatchAll())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPipeline_NoUnknownProvidersSurvive(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	loadSource(t, store,
		core.Row{core.FieldHostname: "a", core.FieldOSProvider: core.Unknown, core.FieldLifecycleStatus: "EOL"},
		core.Row{core.FieldHostname: "b", core.FieldOSProvider: "Microsoft", core.FieldLifecycleStatus: "EOL"},
	)
	p := newPipeline(t, store, nil)

	_, err := p.Run(ctx)
	require.NoError(t, err)

	count, err := store.Count(ctx, destCollection, storage.Term(core.FieldOSProvider, core.Unknown))
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = store.Count(ctx, destCollection, storage.Term(core.FieldRiskLevel, "High"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPipeline_RerunIsStable(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	loadSource(t, store,
		core.Row{core.FieldHostname: "a", core.FieldOSProvider: "Microsoft", core.FieldInstallationDate: "2019-05-05"},
		core.Row{core.FieldHostname: "b", core.FieldOSProvider: core.Unknown},
	)
	p := newPipeline(t, store, nil)

	_, err := p.Run(ctx)
	require.NoError(t, err)
	first, err := store.Search(ctx, destCollection, storage.MatchAll(), 0)
	require.NoError(t, err)

	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Stages[0].Created)
	second, err := store.Search(ctx, destCollection, storage.MatchAll(), 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPipeline_MissingSourceAbortsAtCopy(t *testing.T) {
	store, checkpoints := setupStore(t)
	ctx := context.Background()
	p := newPipeline(t, store, checkpoints)

	report, err := p.Run(ctx)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCopy, stageErr.Stage)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NotNil(t, report)
	assert.False(t, report.OK())
	assert.Contains(t, report.Failures, StageCopy)
	assert.Len(t, report.Stages, 2)

	// Later stages never ran, so nothing was checkpointed for them.
	list, err := checkpoints.ListCheckpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPipeline_ProvisionFailureAborts(t *testing.T) {
	store, _ := setupStore(t, badger.WithServerless(true))
	p := newPipeline(t, store, nil)

	report, err := p.Run(context.Background())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageProvision, stageErr.Stage)
	assert.ErrorIs(t, err, storage.ErrSettingsNotSupported)
	assert.Len(t, report.Stages, 1)
}

func TestPipeline_ServerlessProfile(t *testing.T) {
	store, _ := setupStore(t, badger.WithServerless(true))
	loadSource(t, store, core.Row{core.FieldHostname: "a", core.FieldOSProvider: "Microsoft"})

	cfg := testConfig()
	cfg.Store.Profile = "serverless"
	p, err := NewPipeline(store, nil, cfg, WithClock(fixedClock(2024)))
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Copied)
}

func TestPipeline_Checkpoints(t *testing.T) {
	store, checkpoints := setupStore(t)
	ctx := context.Background()
	loadSource(t, store,
		core.Row{core.FieldHostname: "a", core.FieldOSProvider: "Microsoft"},
		core.Row{core.FieldHostname: "b", core.FieldOSProvider: core.Unknown},
	)
	p := newPipeline(t, store, checkpoints)

	_, err := p.Run(ctx)
	require.NoError(t, err)

	copied, err := checkpoints.LoadCheckpoint(ctx, StageCopy, destCollection)
	require.NoError(t, err)
	require.NotNil(t, copied)
	assert.Equal(t, int64(2), copied.Total)
	assert.Equal(t, int64(2), copied.Affected)

	cleansed, err := checkpoints.LoadCheckpoint(ctx, StageCleanse, destCollection)
	require.NoError(t, err)
	require.NotNil(t, cleansed)
	assert.Equal(t, int64(1), cleansed.Affected)

	provisioned, err := checkpoints.LoadCheckpoint(ctx, StageProvision, destCollection)
	require.NoError(t, err)
	assert.Nil(t, provisioned)
}

func TestPipeline_RecordsMetrics(t *testing.T) {
	store, _ := setupStore(t)
	loadSource(t, store, core.Row{core.FieldHostname: "a", core.FieldOSProvider: "Microsoft"})
	recorder := metrics.NewRecorder()
	p := newPipeline(t, store, nil, WithRecorder(recorder))

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(recorder.Registry(), "assetpipe_stage_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPipeline_RetriesTimedOutStage(t *testing.T) {
	inner, _ := setupStore(t)
	loadSource(t, inner, core.Row{core.FieldHostname: "a", core.FieldOSProvider: "Microsoft"})
	store := &timeoutStore{DocumentStore: inner, failures: 2}
	p := newPipeline(t, store, nil)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Enriched)
	assert.Equal(t, 3, store.calls)
}

func TestPipeline_RetriesExhausted(t *testing.T) {
	inner, _ := setupStore(t)
	loadSource(t, inner, core.Row{core.FieldHostname: "a", core.FieldOSProvider: "Microsoft"})
	store := &timeoutStore{DocumentStore: inner, failures: 100}
	p := newPipeline(t, store, nil)

	_, err := p.Run(context.Background())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageEnrich, stageErr.Stage)
	assert.ErrorIs(t, err, storage.ErrTimeout)
	assert.Equal(t, 3, store.calls)
}

func TestPipeline_Canceled(t *testing.T) {
	store, _ := setupStore(t)
	p := newPipeline(t, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx)
	assert.Error(t, err)
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageEnrich, Err: storage.ErrTimeout}
	assert.Equal(t, "stage enrich: request timed out", err.Error())
	assert.True(t, errors.Is(err, storage.ErrTimeout))
}

func TestReport_Add(t *testing.T) {
	r := &Report{Failures: make(map[string]error)}
	r.add(StageResult{Stage: StageCopy, Stats: &storage.ByQueryStats{Created: 2, Updated: 1}})
	r.add(StageResult{Stage: StageEnrich, Stats: &storage.ByQueryStats{Updated: 3, VersionConflicts: 1,
		Failures: []storage.Failure{{ID: "x"}}}})
	r.add(StageResult{Stage: StageCleanse, Stats: &storage.ByQueryStats{Deleted: 1, VersionConflicts: 2}})

	assert.Equal(t, int64(3), r.Copied)
	assert.Equal(t, int64(3), r.Enriched)
	assert.Equal(t, int64(3), r.Conflicts)
	assert.Equal(t, int64(1), r.Deleted)
	assert.Equal(t, int64(1), r.Failed)
	assert.True(t, r.OK())

	r.add(StageResult{Stage: StageCleanse, Err: errors.New("boom")})
	assert.False(t, r.OK())
}
