package statbel

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/covid-map-etl/internal/adapter/cache"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
)

const (
	// MunicipalityCacheFile holds the dissolved municipality boundaries.
	MunicipalityCacheFile = "sh_statbel_statistical_nis.geojson"
	// RegionCacheFile holds the dissolved region boundaries.
	RegionCacheFile = "sh_statbel_statistical_rgn.geojson"
	// SourceName labels geometry fetches in logs and metrics.
	SourceName = "geometry"
)

// Fetcher downloads a document.
type Fetcher interface {
	Get(ctx context.Context, source, url string) ([]byte, error)
}

// Loader produces dissolved geometry. With refresh set it downloads the sector
// archive, dissolves it and rewrites both cache files; otherwise it rebuilds
// the geometry from the cache files alone.
type Loader struct {
	fetcher Fetcher
	store   *cache.Store
	url     string
	fields  Fields
	refresh bool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLoader creates a geometry loader.
func NewLoader(fetcher Fetcher, store *cache.Store, url string, fields Fields, refresh bool, metrics *observability.Metrics, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		store:   store,
		url:     url,
		fields:  fields,
		refresh: refresh,
		metrics: metrics,
		logger:  logger,
	}
}

// LoadGeometry returns municipality and region records. Errors carry the
// fetch, decode or persist stage.
func (l *Loader) LoadGeometry(ctx context.Context) (domain.Geometry, error) {
	if !l.refresh {
		return l.loadCached()
	}

	archive, err := l.fetcher.Get(ctx, SourceName, l.url)
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageFetch, err)
	}
	doc, name, err := ExtractGeoJSON(archive)
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode, err)
	}
	l.logger.Debug("extracted sector file", "entry", name, "bytes", len(doc))

	features, stats, err := DecodeFeatures(bytes.NewReader(doc), l.fields)
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode, err)
	}
	l.recordStats(stats)

	geometry, err := domain.Dissolve(features)
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode, err)
	}
	if len(geometry.Municipalities) == 0 {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode,
			fmt.Errorf("%w: no feature has property %s", domain.ErrNoGeometry, l.fields.Code))
	}

	if err := l.writeCache(geometry); err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StagePersist, err)
	}
	l.metrics.CacheLoads.WithLabelValues(SourceName, "refresh").Inc()
	l.logger.Info("geometry dissolved",
		"sectors", stats.Features,
		"municipalities", len(geometry.Municipalities),
		"regions", len(geometry.Regions),
	)
	return geometry, nil
}

func (l *Loader) loadCached() (domain.Geometry, error) {
	nis, err := l.store.Read(MunicipalityCacheFile)
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageFetch, err)
	}
	rgn, err := l.store.Read(RegionCacheFile)
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageFetch, err)
	}

	municipalities, stats, err := DecodeFeatures(bytes.NewReader(nis), Fields{Code: l.fields.Code})
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode, fmt.Errorf("%s: %w", MunicipalityCacheFile, err))
	}
	regions, _, err := DecodeFeatures(bytes.NewReader(rgn), Fields{Region: l.fields.Region})
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode, fmt.Errorf("%s: %w", RegionCacheFile, err))
	}

	geometry, err := domain.Dissolve(append(municipalities, regions...))
	if err != nil {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode, err)
	}
	if len(geometry.Municipalities) == 0 {
		return domain.Geometry{}, domain.WrapStage(domain.StageDecode,
			fmt.Errorf("%w in %s", domain.ErrNoGeometry, MunicipalityCacheFile))
	}
	l.recordStats(stats)
	l.metrics.CacheLoads.WithLabelValues(SourceName, "hit").Inc()
	l.logger.Info("using cached geometry",
		"municipalities", len(geometry.Municipalities),
		"regions", len(geometry.Regions),
	)
	return geometry, nil
}

func (l *Loader) writeCache(g domain.Geometry) error {
	nis, err := EncodeMunicipalities(g.Municipalities, l.fields.Code)
	if err != nil {
		return err
	}
	rgn, err := EncodeRegions(g.Regions, l.fields.Region)
	if err != nil {
		return err
	}
	if err := l.store.Write(MunicipalityCacheFile, nis); err != nil {
		return err
	}
	return l.store.Write(RegionCacheFile, rgn)
}

func (l *Loader) recordStats(stats DecodeStats) {
	l.metrics.RecordsRead.WithLabelValues(SourceName, "accepted").Add(float64(stats.Features - stats.MissingGeometry))
	l.metrics.RecordsRead.WithLabelValues(SourceName, "dropped").Add(float64(stats.MissingGeometry))
	if stats.MissingGeometry > 0 {
		l.logger.Warn("skipped features without geometry", "skipped", stats.MissingGeometry)
	}
}
