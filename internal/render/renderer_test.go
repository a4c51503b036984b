package render

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
)

const testDPI = 10

func squareRegion(name string, x0, y0, size float64) domain.RegionRecord {
	a := domain.Point{X: x0, Y: y0}
	b := domain.Point{X: x0 + size, Y: y0}
	c := domain.Point{X: x0 + size, Y: y0 + size}
	d := domain.Point{X: x0, Y: y0 + size}
	return domain.RegionRecord{
		Name:    name,
		Outline: []domain.Segment{{A: a, B: b}, {A: b, B: c}, {A: d, B: c}, {A: a, B: d}},
	}
}

func markerRow(code domain.MunicipalityCode, x, y, cases, smoothed float64) domain.ReconciledRow {
	return domain.ReconciledRow{
		Code:     code,
		Date:     domain.NewDate(2020, time.April, 7),
		Cases:    cases,
		Smoothed: smoothed,
		Centroid: &domain.Point{X: x, Y: y},
	}
}

// centrePixel is where the data point (5, 5) lands for a 10x10 region: the
// centre of the axes box.
func centrePixel(r *Renderer) image.Point {
	b := r.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	x := (axesLeft + axesRight) / 2 * w
	y := h - (axesBottom+axesTop)/2*h
	return image.Point{X: int(x), Y: int(y)}
}

func assertColorNear(t *testing.T, want color.Color, got color.Color) {
	t.Helper()
	wr, wg, wb, _ := want.RGBA()
	gr, gg, gb, _ := got.RGBA()
	near := func(a, b uint32) bool { return math.Abs(float64(a>>8)-float64(b>>8)) <= 2 }
	assert.True(t, near(wr, gr) && near(wg, gg) && near(wb, gb), "want %v, got %v", want, got)
}

func TestMarkerSize(t *testing.T) {
	assert.Equal(t, 0.0, MarkerSize(0))
	assert.Equal(t, 9.0, MarkerSize(3))
	assert.Equal(t, 6.25, MarkerSize(domain.CensoredValue))
	assert.Equal(t, vg.Points(1.5), markerRadius(MarkerSize(3)))
}

func TestMarkerColor_Cycles(t *testing.T) {
	for i := 0; i < 12; i++ {
		assert.Equal(t, MarkerPalette[i%5], MarkerColor(i))
	}
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xd6, B: 0xd6, A: 0xff}, MarkerColor(0))
	assert.Equal(t, color.RGBA{R: 0xe1, G: 0xbf, B: 0xff, A: 0xff}, MarkerColor(4))
}

func TestFramePalette(t *testing.T) {
	require.Len(t, FramePalette, 256)
	assert.Equal(t, color.Color(BackgroundColor), FramePalette[0])
	assert.Equal(t, color.Color(OutlineColor), FramePalette[1])
	assert.Equal(t, color.Color(DateColor), FramePalette[2])
}

func TestParseHex_Invalid(t *testing.T) {
	for _, s := range []string{"", "ffd6d6", "#ffd6d", "#gggggg"} {
		_, err := parseHex(s)
		assert.Error(t, err, s)
	}
}

func TestRender_FrameSize(t *testing.T) {
	r := NewRenderer(testDPI)
	img, err := r.Render(nil, nil, domain.NewDate(2020, time.April, 1), true)
	require.NoError(t, err)
	assert.Equal(t, r.Bounds().Size(), img.Bounds().Size())
	assert.Equal(t, 150, img.Bounds().Dx())
}

func TestRender_MarkerAtCentroid(t *testing.T) {
	r := NewRenderer(testDPI)
	regions := []domain.RegionRecord{squareRegion("Région flamande", 0, 0, 10)}
	rows := []domain.ReconciledRow{markerRow("11002", 5, 5, 0, 100)}

	smoothed, err := r.Render(regions, rows, rows[0].Date, true)
	require.NoError(t, err)
	assertColorNear(t, MarkerColor(0), smoothed.At(centrePixel(r).X, centrePixel(r).Y))

	raw, err := r.Render(regions, rows, rows[0].Date, false)
	require.NoError(t, err)
	assertColorNear(t, BackgroundColor, raw.At(centrePixel(r).X, centrePixel(r).Y))
}

func TestRender_ColourFollowsRank(t *testing.T) {
	r := NewRenderer(testDPI)
	regions := []domain.RegionRecord{squareRegion("Région wallonne", 0, 0, 10)}
	rows := []domain.ReconciledRow{
		markerRow("51004", 1, 1, 0, 0),
		{Code: "52011", Date: domain.NewDate(2020, time.April, 7), Smoothed: 50},
		markerRow("53014", 5, 5, 0, 100),
	}

	img, err := r.Render(regions, rows, rows[0].Date, true)
	require.NoError(t, err)
	assertColorNear(t, MarkerColor(2), img.At(centrePixel(r).X, centrePixel(r).Y))
}

func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer(testDPI)
	regions := []domain.RegionRecord{squareRegion("Région flamande", 0, 0, 10), squareRegion("Région wallonne", 0, -10, 10)}
	rows := []domain.ReconciledRow{markerRow("11002", 5, 5, 3, 40), markerRow("57081", 5, -5, 1, 20)}

	a, err := r.Render(regions, rows, rows[0].Date, true)
	require.NoError(t, err)
	b, err := r.Render(regions, rows, rows[0].Date, true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRender_RejectsNonFiniteValues(t *testing.T) {
	r := NewRenderer(testDPI)
	rows := []domain.ReconciledRow{markerRow("11002", 5, 5, math.NaN(), 0)}
	_, err := r.Render(nil, rows, rows[0].Date, false)
	require.Error(t, err)
}

func TestExtent_EqualAspect(t *testing.T) {
	e := extentOf([]domain.RegionRecord{squareRegion("r", 0, 0, 10)}, nil)
	e.equalAspect(vg.Point{X: 200, Y: 100})

	assert.InDelta(t, (e.xmax-e.xmin)/200, (e.ymax-e.ymin)/100, 1e-12)
	assert.InDelta(t, 5.0, (e.xmin+e.xmax)/2, 1e-12)
	assert.InDelta(t, 11.0, e.ymax-e.ymin, 1e-12)
}
