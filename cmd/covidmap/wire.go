package main

import (
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/covid-map-etl/internal/adapter/cache"
	"github.com/couchcryptid/covid-map-etl/internal/adapter/fetch"
	"github.com/couchcryptid/covid-map-etl/internal/adapter/gridfile"
	kafkaadapter "github.com/couchcryptid/covid-map-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-map-etl/internal/adapter/sciensano"
	"github.com/couchcryptid/covid-map-etl/internal/adapter/statbel"
	"github.com/couchcryptid/covid-map-etl/internal/adapter/xlsx"
	"github.com/couchcryptid/covid-map-etl/internal/config"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/couchcryptid/covid-map-etl/internal/pipeline"
	"github.com/couchcryptid/covid-map-etl/internal/render"
	"github.com/jonboulle/clockwork"
)

type app struct {
	pipeline  *pipeline.Pipeline
	publisher *kafkaadapter.Publisher
	logger    *slog.Logger
}

// build wires the adapters selected by cfg into a pipeline.
func build(cfg *config.Config, runID string, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	clock := clockwork.NewRealClock()
	client := fetch.NewClient(cfg.FetchTimeout, metrics, logger, clock)
	store := cache.NewStore(cfg.DataDir)

	geometry := statbel.NewLoader(client, store, cfg.GeometryURL, statbel.Fields{
		Code:   cfg.GeometryCodeField,
		Region: cfg.GeometryRegionField,
	}, cfg.RefreshGeometry, metrics, logger)
	cases := sciensano.NewSource(client, store, cfg.CasesURL, cfg.RefreshCases, metrics, logger)
	grids := gridfile.NewStore(filepath.Join(cfg.DataDir, gridfile.FileName))

	seq := render.NewSequencer(render.NewRenderer(cfg.FrameDPI), cfg.UseSmoothed, cfg.MaxFrames, metrics, logger, clock)
	sinks := func() ([]render.FrameSink, error) {
		gifSink, err := render.NewGIFSink(cfg.OutputDir, cfg.FrameRate)
		if err != nil {
			return nil, err
		}
		out := []render.FrameSink{gifSink}
		if cfg.FramesDir != "" {
			out = append(out, render.NewPNGSink(cfg.FramesDir))
		}
		return out, nil
	}

	p := pipeline.New(geometry, cases, grids, seq, sinks, pipeline.Options{
		RunID:      runID,
		StrictJoin: cfg.StrictJoin,
	}, logger, metrics, clock)

	a := &app{pipeline: p, logger: logger}
	if cfg.KafkaEnabled() {
		a.publisher = kafkaadapter.NewPublisher(cfg, metrics, logger)
		p.WithPublisher(a.publisher)
		logger.Info("grid publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.XLSXPath != "" {
		p.WithExporter(xlsx.NewExporter(cfg.XLSXPath, logger))
		logger.Info("spreadsheet export enabled", "path", cfg.XLSXPath)
	}

	logger.Info("pipeline configured",
		"geometry_url", cfg.GeometryURL,
		"cases_url", cfg.CasesURL,
		"refresh_geometry", cfg.RefreshGeometry,
		"refresh_cases", cfg.RefreshCases,
		"data_dir", cfg.DataDir,
		"output_dir", cfg.OutputDir,
		"frame_rate", cfg.FrameRate,
		"frame_dpi", cfg.FrameDPI,
	)
	return a, nil
}

func (a *app) close() {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}
}
