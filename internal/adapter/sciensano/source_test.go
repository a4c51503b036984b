package sciensano

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/covid-map-etl/internal/adapter/cache"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *stubFetcher) Get(_ context.Context, source, _ string) ([]byte, error) {
	f.calls++
	if source != SourceName {
		return nil, errors.New("unexpected source " + source)
	}
	return f.data, f.err
}

func newTestSource(f Fetcher, store *cache.Store, refresh bool) (*Source, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSource(f, store, "https://example.test/cases.json", refresh, m, logger), m
}

func TestSource_RefreshWritesCache(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	f := &stubFetcher{data: []byte(sampleCases)}
	src, m := newTestSource(f, store, true)

	obs, err := src.LoadCases(context.Background())
	require.NoError(t, err)
	assert.Len(t, obs, 3)
	assert.Equal(t, 1, f.calls)
	assert.True(t, store.Exists(CacheFile))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLoads.WithLabelValues(SourceName, "refresh")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsRead.WithLabelValues(SourceName, "dropped")))
}

func TestSource_CachedSkipsNetwork(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	require.NoError(t, store.Write(CacheFile, []byte(sampleCases)))
	f := &stubFetcher{err: errors.New("network must not be used")}
	src, m := newTestSource(f, store, false)

	obs, err := src.LoadCases(context.Background())
	require.NoError(t, err)
	assert.Len(t, obs, 3)
	assert.Zero(t, f.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLoads.WithLabelValues(SourceName, "hit")))
}

func TestSource_StageAttribution(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		src, _ := newTestSource(&stubFetcher{err: errors.New("connection refused")}, cache.NewStore(t.TempDir()), true)
		_, err := src.LoadCases(context.Background())
		require.Error(t, err)
		assert.Equal(t, domain.StageFetch, domain.StageOf(err))
	})

	t.Run("missing cache", func(t *testing.T) {
		src, _ := newTestSource(&stubFetcher{}, cache.NewStore(t.TempDir()), false)
		_, err := src.LoadCases(context.Background())
		require.Error(t, err)
		assert.Equal(t, domain.StageFetch, domain.StageOf(err))
	})

	t.Run("decode", func(t *testing.T) {
		f := &stubFetcher{data: []byte(`[{"NIS5":"11002","DATE":"2020-03-31","CASES":"lots"}]`)}
		src, _ := newTestSource(f, cache.NewStore(t.TempDir()), true)
		_, err := src.LoadCases(context.Background())
		require.Error(t, err)
		assert.Equal(t, domain.StageDecode, domain.StageOf(err))
		assert.True(t, errors.Is(err, domain.ErrInvalidCaseCount))
	})
}
