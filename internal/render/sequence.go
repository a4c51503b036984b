package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrNoDates is returned when a grid has nothing to render.
var ErrNoDates = errors.New("grid has no dates")

// FrameSink consumes rendered frames in order.
type FrameSink interface {
	WriteFrame(index int, date domain.Date, img image.Image) error
	// Close finalises the output after the last frame.
	Close() error
	// Abort discards partial output after a failure.
	Abort()
}

// FrameRenderer draws the frame of one date.
type FrameRenderer interface {
	Render(regions []domain.RegionRecord, rows []domain.ReconciledRow, date domain.Date, useSmoothed bool) (image.Image, error)
}

// Sequencer renders one frame per grid date in chronological order and hands
// each frame to the sinks before rendering the next.
type Sequencer struct {
	renderer    FrameRenderer
	useSmoothed bool
	maxFrames   int
	metrics     *observability.Metrics
	logger      *slog.Logger
	clock       clockwork.Clock
}

// NewSequencer creates a sequencer. maxFrames <= 0 renders every date.
func NewSequencer(renderer FrameRenderer, useSmoothed bool, maxFrames int, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) *Sequencer {
	return &Sequencer{
		renderer:    renderer,
		useSmoothed: useSmoothed,
		maxFrames:   maxFrames,
		metrics:     metrics,
		logger:      logger,
		clock:       clock,
	}
}

// FrameCount returns how many frames Run produces for g.
func (s *Sequencer) FrameCount(g domain.Grid) int {
	n := len(g.Dates)
	if s.maxFrames > 0 && s.maxFrames < n {
		n = s.maxFrames
	}
	return n
}

// Run renders the frames and closes the sinks. On error or cancellation every
// sink is aborted instead. Render failures carry the render stage and sink
// failures the persist stage.
func (s *Sequencer) Run(ctx context.Context, regions []domain.RegionRecord, g domain.Grid, sinks ...FrameSink) (int, error) {
	n := s.FrameCount(g)
	if n == 0 {
		abortAll(sinks)
		return 0, domain.WrapStage(domain.StageRender, ErrNoDates)
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			abortAll(sinks)
			return i, domain.WrapStage(domain.StageRender, err)
		}

		date := g.Dates[i]
		start := s.clock.Now()
		img, err := s.renderer.Render(regions, g.RowsForDate(i), date, s.useSmoothed)
		if err != nil {
			abortAll(sinks)
			return i, domain.WrapStage(domain.StageRender, fmt.Errorf("frame %d (%s): %w", i+1, date, err))
		}
		for _, sink := range sinks {
			if err := sink.WriteFrame(i, date, img); err != nil {
				abortAll(sinks)
				return i, domain.WrapStage(domain.StagePersist, fmt.Errorf("frame %d (%s): %w", i+1, date, err))
			}
		}

		s.metrics.FramesRendered.Inc()
		s.metrics.FrameRenderTime.Observe(s.clock.Since(start).Seconds())
		s.logger.Debug("frame rendered", "frame", i+1, "date", date.String())
		if (i+1)%50 == 0 {
			s.logger.Info("rendering frames", "done", i+1, "total", n)
		}
	}

	var errs []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return n, domain.WrapStage(domain.StagePersist, err)
	}
	return n, nil
}

func abortAll(sinks []FrameSink) {
	for _, sink := range sinks {
		sink.Abort()
	}
}
