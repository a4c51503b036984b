package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesGrid(t *testing.T, series map[MunicipalityCode][]float64) Grid {
	t.Helper()
	start := NewDate(2020, time.April, 1)
	var obs []CaseObservation
	for code, values := range series {
		for i, v := range values {
			obs = append(obs, CaseObservation{Code: code, Date: DateOf(start.Time().AddDate(0, 0, i)), Cases: v})
		}
	}
	res, err := Reconcile(testGeometry(), obs)
	require.NoError(t, err)
	return res.Grid
}

func smoothedOf(rows []ReconciledRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Smoothed
	}
	return out
}

func TestSmooth_SeventhSampleIsFullWindowMean(t *testing.T) {
	g := seriesGrid(t, map[MunicipalityCode][]float64{
		codeAntwerp: {0, 0, 0, 0, 0, 0, 7},
	})

	s := Smooth(g)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 1.0}, smoothedOf(s.Series(0)))
}

func TestSmooth_PartialWindowsAreZero(t *testing.T) {
	g := seriesGrid(t, map[MunicipalityCode][]float64{
		codeAntwerp: {10, 10, 10, 10, 10, 10, 10, 17},
	})

	s := Smooth(g)
	got := smoothedOf(s.Series(0))
	for i := 0; i < SmoothingWindow-1; i++ {
		assert.Zero(t, got[i], "position %d", i)
	}
	assert.InDelta(t, 10.0, got[6], 1e-12)
	assert.InDelta(t, 11.0, got[7], 1e-12)
}

func TestSmooth_PerMunicipality(t *testing.T) {
	g := seriesGrid(t, map[MunicipalityCode][]float64{
		codeAntwerp: {7, 7, 7, 7, 7, 7, 7},
		codeGhent:   {14, 0, 0, 0, 0, 0, 0},
	})

	s := Smooth(g)
	assert.InDelta(t, 7.0, s.Series(0)[6].Smoothed, 1e-12)
	assert.InDelta(t, 2.0, s.Series(1)[6].Smoothed, 1e-12)
}

func TestSmooth_ZeroFilledGapsCount(t *testing.T) {
	start := NewDate(2020, time.April, 1)
	// Antwerp reports only on day 7; Ghent defines days 1..7.
	var obs []CaseObservation
	for i := 0; i < 7; i++ {
		obs = append(obs, CaseObservation{Code: codeGhent, Date: DateOf(start.Time().AddDate(0, 0, i)), Cases: 1})
	}
	obs = append(obs, CaseObservation{Code: codeAntwerp, Date: DateOf(start.Time().AddDate(0, 0, 6)), Cases: 14})

	res, err := Reconcile(testGeometry(), obs)
	require.NoError(t, err)
	s := Smooth(res.Grid)

	assert.InDelta(t, 2.0, s.Series(0)[6].Smoothed, 1e-12)
}

func TestSmooth_DoesNotMutateInput(t *testing.T) {
	g := seriesGrid(t, map[MunicipalityCode][]float64{
		codeAntwerp: {1, 2, 3, 4, 5, 6, 7},
	})

	s := Smooth(g)
	for _, r := range g.Rows {
		assert.Zero(t, r.Smoothed)
	}
	assert.InDelta(t, 4.0, s.Rows[6].Smoothed, 1e-12)

	s.Rows[0].Centroid.X = -1
	assert.NotEqual(t, -1.0, g.Rows[0].Centroid.X)
}
