package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/couchcryptid/covid-map-etl/internal/render"
	"github.com/jonboulle/clockwork"
)

// GeometryLoader produces the dissolved municipality and region geometry.
type GeometryLoader interface {
	LoadGeometry(ctx context.Context) (domain.Geometry, error)
}

// CaseLoader produces the sparse case observations.
type CaseLoader interface {
	LoadCases(ctx context.Context) ([]domain.CaseObservation, error)
}

// GridStore persists the reconciled grid between the reconcile and render steps.
type GridStore interface {
	WriteGrid(g domain.Grid) error
	ReadGrid() (domain.Grid, error)
}

// GridPublisher ships the smoothed grid to a downstream consumer.
type GridPublisher interface {
	PublishGrid(ctx context.Context, runID string, g domain.Grid) error
}

// GridExporter writes the smoothed grid to a report file.
type GridExporter interface {
	ExportGrid(ctx context.Context, g domain.Grid) error
}

// FrameSequencer renders the grid's frames into the sinks.
type FrameSequencer interface {
	FrameCount(g domain.Grid) int
	Run(ctx context.Context, regions []domain.RegionRecord, g domain.Grid, sinks ...render.FrameSink) (int, error)
}

// SinkFactory opens fresh frame sinks for one render. The first sink with a
// Path method names the run's output.
type SinkFactory func() ([]render.FrameSink, error)

// Options tune a run.
type Options struct {
	RunID string
	// StrictJoin fails the reconcile step when a case code has no geometry.
	StrictJoin bool
}

// Result summarises a completed run.
type Result struct {
	GridRows  int
	Unmatched []domain.MunicipalityCode
	Frames    int
	Output    string
}

// Pipeline drives one batch run: load both sources, reconcile them into the
// grid file, then smooth the grid and render the animation from it.
type Pipeline struct {
	geometry  GeometryLoader
	cases     CaseLoader
	grids     GridStore
	sequencer FrameSequencer
	sinks     SinkFactory
	publisher GridPublisher
	exporter  GridExporter
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	ready atomic.Bool

	mu     sync.Mutex
	status domain.RunStatus
}

// New creates a Pipeline with the given stages and observability.
func New(geometry GeometryLoader, cases CaseLoader, grids GridStore, sequencer FrameSequencer, sinks SinkFactory, opts Options, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	return &Pipeline{
		geometry:  geometry,
		cases:     cases,
		grids:     grids,
		sequencer: sequencer,
		sinks:     sinks,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		status:    domain.RunStatus{RunID: opts.RunID},
	}
}

// WithPublisher enables publishing the smoothed grid.
func (p *Pipeline) WithPublisher(pub GridPublisher) *Pipeline {
	p.publisher = pub
	return p
}

// WithExporter enables the spreadsheet export of the smoothed grid.
func (p *Pipeline) WithExporter(exp GridExporter) *Pipeline {
	p.exporter = exp
	return p
}

// CheckReadiness returns nil once a grid is available to render, or an error
// describing why the run is not ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not produced a grid yet")
	}
	s := p.Status()
	if s.Error != "" {
		return fmt.Errorf("run failed: %s", s.Error)
	}
	return nil
}

// Status returns a snapshot of the current run.
func (p *Pipeline) Status() domain.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run reconciles the sources and renders the animation.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	p.begin()
	geo, res, err := p.reconcile(ctx)
	if err == nil {
		res, err = p.render(ctx, geo.Regions, res)
	}
	p.finish(err)
	return res, err
}

// Reconcile loads both sources and writes the reconciled grid.
func (p *Pipeline) Reconcile(ctx context.Context) (Result, error) {
	p.begin()
	_, res, err := p.reconcile(ctx)
	p.finish(err)
	return res, err
}

// Render renders the animation from a previously written grid. Region
// outlines come from the geometry loader.
func (p *Pipeline) Render(ctx context.Context) (Result, error) {
	p.begin()
	var geo domain.Geometry
	err := p.stage(domain.StageFetch, func() error {
		var err error
		geo, err = p.geometry.LoadGeometry(ctx)
		return err
	})
	var res Result
	if err == nil {
		res, err = p.render(ctx, geo.Regions, Result{})
	}
	p.finish(err)
	return res, err
}

func (p *Pipeline) reconcile(ctx context.Context) (domain.Geometry, Result, error) {
	var (
		geo   domain.Geometry
		cases []domain.CaseObservation
		rec   domain.ReconcileResult
	)

	err := p.stage(domain.StageFetch, func() error {
		var err error
		geo, err = p.geometry.LoadGeometry(ctx)
		if err != nil {
			return err
		}
		cases, err = p.cases.LoadCases(ctx)
		return err
	})
	if err != nil {
		return geo, Result{}, err
	}
	p.logger.Info("sources loaded",
		"municipalities", len(geo.Municipalities),
		"regions", len(geo.Regions),
		"observations", len(cases),
	)

	err = p.stage(domain.StageJoin, func() error {
		var err error
		rec, err = domain.Reconcile(geo.Municipalities, cases)
		if err != nil {
			return err
		}
		if len(rec.Unmatched) > 0 {
			p.logger.Warn("case codes without geometry", "count", len(rec.Unmatched), "codes", rec.Unmatched)
			if p.opts.StrictJoin {
				return fmt.Errorf("%w: %d codes, first %s", domain.ErrNoGeometry, len(rec.Unmatched), rec.Unmatched[0])
			}
		}
		return nil
	})
	if err != nil {
		return geo, Result{}, err
	}
	p.metrics.GridRows.Set(float64(rec.Grid.Len()))
	p.metrics.UnmatchedCodes.Set(float64(len(rec.Unmatched)))
	p.metrics.DuplicateRecords.Set(float64(rec.Duplicates))
	if rec.Duplicates > 0 {
		p.logger.Warn("duplicate observations replaced", "count", rec.Duplicates)
	}

	err = p.stage(domain.StagePersist, func() error {
		return p.grids.WriteGrid(rec.Grid)
	})
	if err != nil {
		return geo, Result{}, err
	}

	p.update(func(s *domain.RunStatus) { s.GridRows = rec.Grid.Len() })
	p.ready.Store(true)
	p.logger.Info("grid reconciled",
		"codes", len(rec.Grid.Codes),
		"dates", len(rec.Grid.Dates),
		"rows", rec.Grid.Len(),
	)
	return geo, Result{GridRows: rec.Grid.Len(), Unmatched: rec.Unmatched}, nil
}

func (p *Pipeline) render(ctx context.Context, regions []domain.RegionRecord, res Result) (Result, error) {
	var g domain.Grid
	err := p.stage(domain.StageDecode, func() error {
		var err error
		g, err = p.grids.ReadGrid()
		return err
	})
	if err != nil {
		return res, err
	}
	p.ready.Store(true)

	plotted := g.DropMissingCentroids()
	if dropped := len(g.Codes) - len(plotted.Codes); dropped > 0 {
		p.logger.Warn("municipalities without centroid not plotted", "count", dropped)
	}
	smoothed := domain.Smooth(plotted)
	res.GridRows = g.Len()

	if p.publisher != nil {
		err := p.stage(domain.StagePublish, func() error {
			return p.publisher.PublishGrid(ctx, p.opts.RunID, smoothed)
		})
		if err != nil {
			return res, err
		}
	}
	if p.exporter != nil {
		err := p.stage(domain.StagePersist, func() error {
			return p.exporter.ExportGrid(ctx, smoothed)
		})
		if err != nil {
			return res, err
		}
	}

	total := p.sequencer.FrameCount(smoothed)
	p.update(func(s *domain.RunStatus) {
		s.GridRows = g.Len()
		s.FramesTotal = total
	})

	err = p.stage(domain.StageRender, func() error {
		sinks, err := p.sinks()
		if err != nil {
			return domain.WrapStage(domain.StagePersist, err)
		}
		wrapped := make([]render.FrameSink, 0, len(sinks)+1)
		wrapped = append(wrapped, sinks...)
		wrapped = append(wrapped, &progressSink{p: p})
		res.Frames, err = p.sequencer.Run(ctx, regions, smoothed, wrapped...)
		if err == nil {
			res.Output = outputOf(sinks)
		}
		return err
	})
	if err != nil {
		return res, err
	}

	p.update(func(s *domain.RunStatus) { s.Output = res.Output })
	p.logger.Info("animation written", "frames", res.Frames, "output", res.Output)
	return res, nil
}

// stage runs fn as the named step, timing it and attributing its error.
func (p *Pipeline) stage(stage domain.Stage, fn func() error) error {
	p.update(func(s *domain.RunStatus) { s.Stage = stage })
	start := p.clock.Now()
	err := fn()
	p.metrics.StageSeconds.WithLabelValues(string(stage)).Observe(p.clock.Since(start).Seconds())
	if err != nil {
		err = domain.WrapStage(stage, err)
		p.metrics.StageErrors.WithLabelValues(string(domain.StageOf(err))).Inc()
	}
	return err
}

func (p *Pipeline) begin() {
	p.metrics.RunRunning.Set(1)
	p.metrics.RunSucceeded.Set(0)
	p.update(func(s *domain.RunStatus) {
		*s = domain.RunStatus{RunID: p.opts.RunID, StartedAt: p.clock.Now()}
	})
	p.logger.Info("run started")
}

func (p *Pipeline) finish(err error) {
	p.metrics.RunRunning.Set(0)
	p.update(func(s *domain.RunStatus) {
		s.FinishedAt = p.clock.Now()
		if err != nil {
			s.Stage = domain.StageOf(err)
			s.Error = err.Error()
		}
	})
	if err != nil {
		p.logger.Error("run failed", "stage", domain.StageOf(err), "error", err)
		return
	}
	p.metrics.RunSucceeded.Set(1)
	s := p.Status()
	p.logger.Info("run finished", "duration", s.FinishedAt.Sub(s.StartedAt).String())
}

func (p *Pipeline) update(fn func(*domain.RunStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.status)
}

func outputOf(sinks []render.FrameSink) string {
	for _, s := range sinks {
		if o, ok := s.(interface{ Path() string }); ok {
			return o.Path()
		}
	}
	return ""
}

// progressSink counts delivered frames into the run status.
type progressSink struct {
	p *Pipeline
}

func (s *progressSink) WriteFrame(int, domain.Date, image.Image) error {
	s.p.update(func(st *domain.RunStatus) { st.FramesDone++ })
	return nil
}

func (s *progressSink) Close() error { return nil }

func (s *progressSink) Abort() {}
