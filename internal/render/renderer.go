// Package render draws per-date case maps and sequences them into animations.
package render

import (
	"fmt"
	"image"
	"math"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	// FigureSize is the width and height of a frame.
	FigureSize = 15 * vg.Inch
	// DefaultDPI is the raster resolution of a frame.
	DefaultDPI = 100

	dateFontSize = 40
	outlineWidth = 1
	dataMargin   = 0.05
)

// Axes placement as fractions of the figure, matching a default matplotlib
// subplot.
const (
	axesLeft   = 0.125
	axesRight  = 0.9
	axesBottom = 0.11
	axesTop    = 0.88
)

// Date label position relative to the axes box.
const (
	dateX = 0.38
	dateY = 1.02
)

// MarkerSize maps a case value to a marker area in points².
func MarkerSize(v float64) float64 { return v * v }

// markerRadius is the radius in points of a circle of area-style size s, whose
// diameter is sqrt(s).
func markerRadius(s float64) vg.Length { return vg.Points(math.Sqrt(s) / 2) }

// Renderer draws one frame per call. It holds no per-frame state.
type Renderer struct {
	dpi int
}

// NewRenderer returns a renderer producing FigureSize frames at dpi.
func NewRenderer(dpi int) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{dpi: dpi}
}

// Bounds returns the pixel bounds of the frames r produces.
func (r *Renderer) Bounds() image.Rectangle {
	px := int(float64(FigureSize/vg.Inch)*float64(r.dpi) + 0.5)
	return image.Rect(0, 0, px, px)
}

// Render draws the region outlines, one marker per row with a centroid, and
// the date label. Marker area is the squared smoothed or raw case value.
func (r *Renderer) Render(regions []domain.RegionRecord, rows []domain.ReconciledRow, date domain.Date, useSmoothed bool) (image.Image, error) {
	markers, err := newMarkers(rows, useSmoothed)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	ext := extentOf(regions, rows)

	canvas := vgimg.NewWith(
		vgimg.UseWH(FigureSize, FigureSize),
		vgimg.UseDPI(r.dpi),
		vgimg.UseBackgroundColor(BackgroundColor),
	)
	dc := draw.New(canvas)
	axes := draw.Canvas{
		Canvas: dc.Canvas,
		Rectangle: vg.Rectangle{
			Min: vg.Point{X: FigureSize * vg.Length(axesLeft), Y: FigureSize * vg.Length(axesBottom)},
			Max: vg.Point{X: FigureSize * vg.Length(axesRight), Y: FigureSize * vg.Length(axesTop)},
		},
	}
	ext.equalAspect(axes.Size())
	p.X.Min, p.X.Max = ext.xmin, ext.xmax
	p.Y.Min, p.Y.Max = ext.ymin, ext.ymax

	outlines{regions: regions}.Plot(axes, p)
	if markers != nil {
		markers.Plot(axes, p)
	}

	sty := p.Title.TextStyle
	sty.Color = DateColor
	sty.Font.Size = vg.Points(dateFontSize)
	sty.XAlign = draw.XLeft
	sty.YAlign = draw.YBottom
	dc.FillText(sty, vg.Point{
		X: axes.Min.X + axes.Size().X*vg.Length(dateX),
		Y: axes.Min.Y + axes.Size().Y*vg.Length(dateY),
	}, date.String())

	return canvas.Image(), nil
}

// newMarkers builds the scatter of non-empty markers, or nil if there are none.
// Rows without a centroid are skipped. Colour follows the row's rank among all
// rows of the frame.
func newMarkers(rows []domain.ReconciledRow, useSmoothed bool) (*plotter.Scatter, error) {
	var (
		xys   plotter.XYs
		sizes []float64
		ranks []int
	)
	for i, row := range rows {
		if row.Centroid == nil {
			continue
		}
		v := row.Cases
		if useSmoothed {
			v = row.Smoothed
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("marker value for %s on %s is %v", row.Code, row.Date, v)
		}
		s := MarkerSize(v)
		if s == 0 {
			continue
		}
		xys = append(xys, plotter.XY{X: row.Centroid.X, Y: row.Centroid.Y})
		sizes = append(sizes, s)
		ranks = append(ranks, i)
	}
	if len(xys) == 0 {
		return nil, nil
	}

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("markers: %w", err)
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  MarkerColor(ranks[i]),
			Radius: markerRadius(sizes[i]),
			Shape:  draw.CircleGlyph{},
		}
	}
	return sc, nil
}

// outlines strokes region boundary segments.
type outlines struct {
	regions []domain.RegionRecord
}

func (o outlines) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	sty := draw.LineStyle{Color: OutlineColor, Width: vg.Points(outlineWidth)}
	for _, r := range o.regions {
		for _, s := range r.Outline {
			c.StrokeLine2(sty, trX(s.A.X), trY(s.A.Y), trX(s.B.X), trY(s.B.Y))
		}
	}
}

type extent struct {
	xmin, xmax, ymin, ymax float64
	empty                  bool
}

func extentOf(regions []domain.RegionRecord, rows []domain.ReconciledRow) extent {
	e := extent{
		xmin: math.Inf(1), xmax: math.Inf(-1),
		ymin: math.Inf(1), ymax: math.Inf(-1),
		empty: true,
	}
	for _, r := range regions {
		for _, s := range r.Outline {
			e.add(s.A)
			e.add(s.B)
		}
	}
	for _, row := range rows {
		if row.Centroid != nil {
			e.add(*row.Centroid)
		}
	}
	if e.empty {
		return extent{xmin: 0, xmax: 1, ymin: 0, ymax: 1}
	}

	dx, dy := e.xmax-e.xmin, e.ymax-e.ymin
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}
	e.xmin -= dx * dataMargin
	e.xmax += dx * dataMargin
	e.ymin -= dy * dataMargin
	e.ymax += dy * dataMargin
	return e
}

func (e *extent) add(p domain.Point) {
	e.empty = false
	e.xmin = math.Min(e.xmin, p.X)
	e.xmax = math.Max(e.xmax, p.X)
	e.ymin = math.Min(e.ymin, p.Y)
	e.ymax = math.Max(e.ymax, p.Y)
}

// equalAspect widens one data range about its centre so that one data unit
// has the same length on both axes of a box of the given size.
func (e *extent) equalAspect(size vg.Point) {
	w, h := float64(size.X), float64(size.Y)
	dx, dy := e.xmax-e.xmin, e.ymax-e.ymin
	scale := math.Max(dx/w, dy/h)
	cx, cy := (e.xmin+e.xmax)/2, (e.ymin+e.ymax)/2
	e.xmin, e.xmax = cx-scale*w/2, cx+scale*w/2
	e.ymin, e.ymax = cy-scale*h/2, cy+scale*h/2
}
