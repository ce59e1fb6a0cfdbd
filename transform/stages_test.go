package transform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/assetpipe/config"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/provision"
	"github.com/poiesic/assetpipe/storage"
	"github.com/poiesic/assetpipe/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sourceCollection = "assets"
	destCollection   = "assets_final"
)

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.March, 1, 12, 0, 0, 0, time.UTC)
	}
}

func testConfig() *config.Config {
	return config.New(
		config.WithInMemory(),
		config.WithCollections(sourceCollection, destCollection),
		config.WithRetries(3, time.Millisecond),
	)
}

func setupStore(t *testing.T, opts ...badger.Option) (*badger.Store, *badger.CheckpointRepository) {
	t.Helper()
	store, checkpoints, backend, err := badger.NewMemoryStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		checkpoints.Close()
		store.Close()
		backend.Close()
	})
	return store, checkpoints
}

func seed(t *testing.T, store storage.DocumentStore, collection string, docs map[string]core.Document) {
	t.Helper()
	ctx := context.Background()
	err := store.Create(ctx, storage.CreateRequest{Name: collection, Mapping: provision.DefaultSchema()})
	if !errors.Is(err, storage.ErrCollectionExists) {
		require.NoError(t, err)
	}

	req := storage.BulkRequest{}
	for id, doc := range docs {
		req.Operations = append(req.Operations, storage.BulkOp{Collection: collection, ID: id, Body: doc})
	}
	resp, err := store.Bulk(ctx, req)
	require.NoError(t, err)
	require.Empty(t, resp.Errors)
}

func newPipeline(t *testing.T, store storage.DocumentStore, checkpoints storage.CheckpointRepository, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock(2024))}, opts...)
	p, err := NewPipeline(store, checkpoints, testConfig(), opts...)
	require.NoError(t, err)
	return p
}

func TestEnrichScript(t *testing.T) {
	doc := core.Document{
		core.FieldLifecycleStatus:  "EOS",
		core.FieldInstallationDate: "2015-06-01",
	}
	require.NoError(t, EnrichScript(doc, storage.Params{ParamCurrentYear: 2024}))
	assert.Equal(t, "High", doc[core.FieldRiskLevel])
	assert.Equal(t, int64(9), doc[core.FieldSystemAgeYears])

	err := EnrichScript(core.Document{}, storage.Params{})
	assert.ErrorIs(t, err, ErrMissingCurrentYear)
	err = EnrichScript(core.Document{}, storage.Params{ParamCurrentYear: "2024"})
	assert.ErrorIs(t, err, ErrMissingCurrentYear)
}

func TestEnrich(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seed(t, store, destCollection, map[string]core.Document{
		"eol":     {core.FieldLifecycleStatus: "EOL", core.FieldInstallationDate: "2015-06-01"},
		"active":  {core.FieldLifecycleStatus: "Active", core.FieldInstallationDate: core.Unknown},
		"absent":  {},
		"garbled": {core.FieldInstallationDate: "20xx-01-01"},
		"future":  {core.FieldInstallationDate: "2999-01-01"},
	})
	p := newPipeline(t, store, nil)

	stats, err := p.Enrich(ctx, destCollection)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Updated)
	assert.Zero(t, stats.VersionConflicts)
	assert.Empty(t, stats.Failures)

	tests := []struct {
		id   string
		risk string
		age  any
	}{
		{"eol", "High", int64(9)},
		{"active", "Low", nil},
		{"absent", "Low", nil},
		{"garbled", "Low", nil},
		{"future", "Low", int64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			doc, err := store.Get(ctx, destCollection, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.risk, doc[core.FieldRiskLevel])
			age, ok := doc[core.FieldSystemAgeYears]
			assert.True(t, ok, "age field is always written")
			assert.Equal(t, tt.age, age)
		})
	}
}

func TestEnrich_Idempotent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seed(t, store, destCollection, map[string]core.Document{
		"a": {core.FieldLifecycleStatus: "eol", core.FieldInstallationDate: "2010-01-01"},
		"b": {core.FieldLifecycleStatus: "Active", core.FieldInstallationDate: core.Unknown},
	})
	p := newPipeline(t, store, nil)

	_, err := p.Enrich(ctx, destCollection)
	require.NoError(t, err)
	first, err := store.Search(ctx, destCollection, storage.MatchAll(), 0)
	require.NoError(t, err)

	_, err = p.Enrich(ctx, destCollection)
	require.NoError(t, err)
	second, err := store.Search(ctx, destCollection, storage.MatchAll(), 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnrich_UsesClockYear(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seed(t, store, destCollection, map[string]core.Document{
		"a": {core.FieldInstallationDate: "2000-01-01"},
	})
	p := newPipeline(t, store, nil, WithClock(fixedClock(2030)))

	_, err := p.Enrich(ctx, destCollection)
	require.NoError(t, err)
	doc, err := store.Get(ctx, destCollection, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(30), doc[core.FieldSystemAgeYears])
}

func TestCleanse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seed(t, store, destCollection, map[string]core.Document{
		"empty-hostname":   {core.FieldHostname: "", core.FieldOSProvider: "Microsoft"},
		"blank-hostname":   {core.FieldHostname: "  ", core.FieldOSProvider: "Microsoft"},
		"no-hostname":      {core.FieldOSProvider: "Canonical"},
		"unknown-provider": {core.FieldHostname: "host-u", core.FieldOSProvider: core.Unknown},
		"lowercase":        {core.FieldHostname: "host-l", core.FieldOSProvider: "unknown"},
		"valid":            {core.FieldHostname: "host-v", core.FieldOSProvider: "Microsoft"},
		"no-provider":      {core.FieldHostname: "host-n"},
	})
	p := newPipeline(t, store, nil)

	stats, err := p.Cleanse(ctx, destCollection)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Deleted)

	docs, err := store.Search(ctx, destCollection, storage.MatchAll(), 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Contains(t, docs, "lowercase")
	assert.Contains(t, docs, "valid")
	assert.Contains(t, docs, "no-provider")
	for _, doc := range docs {
		assert.True(t, core.IsValid(doc))
	}
}

func TestCleanse_KeepsNumericHostname(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seed(t, store, destCollection, map[string]core.Document{
		"numeric": {core.FieldHostname: int64(7), core.FieldOSProvider: "Microsoft"},
		"blank":   {core.FieldHostname: " ", core.FieldOSProvider: "Microsoft"},
	})
	p := newPipeline(t, store, nil)

	stats, err := p.Cleanse(ctx, destCollection)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Deleted)

	doc, err := store.Get(ctx, destCollection, "numeric")
	require.NoError(t, err)
	assert.True(t, core.IsValid(doc))
}

func TestCleanseQueryAgreesWithIsValid(t *testing.T) {
	docs := []core.Document{
		{},
		{core.FieldHostname: "a"},
		{core.FieldHostname: " "},
		{core.FieldHostname: nil},
		{core.FieldHostname: "a", core.FieldOSProvider: core.Unknown},
		{core.FieldHostname: "a", core.FieldOSProvider: "UNKNOWN"},
		{core.FieldHostname: "", core.FieldOSProvider: core.Unknown},
		{core.FieldOSProvider: nil},
		{core.FieldHostname: int64(7)},
		{core.FieldHostname: int64(7), core.FieldOSProvider: core.Unknown},
	}
	q := CleanseQuery()
	for _, doc := range docs {
		assert.Equal(t, !core.IsValid(doc), q.Match(doc), "doc %v", doc)
	}
}

func TestCopy(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seed(t, store, sourceCollection, map[string]core.Document{
		"a": {core.FieldHostname: "a", core.FieldRiskLevel: "High", "extra": "kept"},
		"b": {core.FieldHostname: "b"},
	})
	seed(t, store, destCollection, nil)
	p := newPipeline(t, store, nil)

	stats, err := p.Copy(ctx, sourceCollection, destCollection)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Created)

	doc, err := store.Get(ctx, destCollection, "a")
	require.NoError(t, err)
	assert.Equal(t, "High", doc[core.FieldRiskLevel])
	assert.Equal(t, "kept", doc["extra"])
}

func TestCopy_MissingSource(t *testing.T) {
	store, _ := setupStore(t)
	seed(t, store, destCollection, nil)
	p := newPipeline(t, store, nil)

	_, err := p.Copy(context.Background(), sourceCollection, destCollection)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
