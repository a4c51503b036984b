package sciensano

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/couchcryptid/covid-map-etl/internal/adapter/cache"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
)

const (
	// CacheFile is the name of the cached case document in the data directory.
	CacheFile = "COVID19BE_CASES_MUNI.json"
	// SourceName labels case fetches in logs and metrics.
	SourceName = "cases"
)

// Fetcher downloads a document.
type Fetcher interface {
	Get(ctx context.Context, source, url string) ([]byte, error)
}

// Source loads case observations, either fresh from the network (refreshing
// the local cache) or from the cache alone.
type Source struct {
	fetcher Fetcher
	store   *cache.Store
	url     string
	refresh bool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSource creates a case source. When refresh is false the fetcher is never used.
func NewSource(fetcher Fetcher, store *cache.Store, url string, refresh bool, metrics *observability.Metrics, logger *slog.Logger) *Source {
	return &Source{
		fetcher: fetcher,
		store:   store,
		url:     url,
		refresh: refresh,
		metrics: metrics,
		logger:  logger,
	}
}

// LoadCases returns the decoded observations. Errors carry the fetch, persist
// or decode stage.
func (s *Source) LoadCases(ctx context.Context) ([]domain.CaseObservation, error) {
	var (
		data []byte
		err  error
	)
	if s.refresh {
		data, err = s.fetcher.Get(ctx, SourceName, s.url)
		if err != nil {
			return nil, domain.WrapStage(domain.StageFetch, err)
		}
		if err := s.store.Write(CacheFile, data); err != nil {
			return nil, domain.WrapStage(domain.StagePersist, err)
		}
		s.metrics.CacheLoads.WithLabelValues(SourceName, "refresh").Inc()
	} else {
		data, err = s.store.Read(CacheFile)
		if err != nil {
			return nil, domain.WrapStage(domain.StageFetch, err)
		}
		s.metrics.CacheLoads.WithLabelValues(SourceName, "hit").Inc()
		s.logger.Info("using cached cases", "path", s.store.Path(CacheFile))
	}

	obs, stats, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapStage(domain.StageDecode, err)
	}

	s.metrics.RecordsRead.WithLabelValues(SourceName, "accepted").Add(float64(stats.Accepted))
	s.metrics.RecordsRead.WithLabelValues(SourceName, "dropped").Add(float64(stats.Dropped))
	if stats.Dropped > 0 {
		s.logger.Warn("dropped case records with missing fields", "dropped", stats.Dropped)
	}
	s.logger.Info("cases decoded", "records", stats.Accepted)
	return obs, nil
}
