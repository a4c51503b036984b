package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	codeAntwerp  MunicipalityCode = "11002"
	codeGhent    MunicipalityCode = "44021"
	codeNoGeom   MunicipalityCode = "99999"
	codeGeomOnly MunicipalityCode = "57081"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func testGeometry() []GeometryRecord {
	return []GeometryRecord{
		{Code: codeAntwerp, Centroid: Point{X: 152000.5, Y: 212000.25}},
		{Code: codeGhent, Centroid: Point{X: 104000, Y: 194000}},
		{Code: codeGeomOnly, Centroid: Point{X: 80000, Y: 140000}},
	}
}

func TestReconcile_FullProductWithZeroFill(t *testing.T) {
	d1, d2, d3 := mustDate(t, "2020-04-01"), mustDate(t, "2020-04-02"), mustDate(t, "2020-04-03")
	obs := []CaseObservation{
		{Code: codeGhent, Date: d3, Cases: 4},
		{Code: codeAntwerp, Date: d1, Cases: 10},
		{Code: codeAntwerp, Date: d2, Cases: 2.5},
		{Code: codeGhent, Date: d1, Cases: 1},
		{Code: codeAntwerp, Date: d3, Cases: 7},
		// (Ghent, d2) is absent.
	}

	res, err := Reconcile(testGeometry(), obs)
	require.NoError(t, err)

	g := res.Grid
	assert.Equal(t, []MunicipalityCode{codeAntwerp, codeGhent}, g.Codes)
	assert.Equal(t, []Date{d1, d2, d3}, g.Dates)
	require.Equal(t, 6, g.Len())
	assert.Empty(t, res.Unmatched)
	assert.Zero(t, res.Duplicates)

	seen := make(map[[2]string]int)
	zeros := 0
	for _, r := range g.Rows {
		seen[[2]string{string(r.Code), r.Date.String()}]++
		if r.Cases == 0 {
			zeros++
		}
		require.NotNil(t, r.Centroid)
	}
	assert.Len(t, seen, 6)
	for k, n := range seen {
		assert.Equal(t, 1, n, "pair %v", k)
	}
	assert.Equal(t, 1, zeros)

	// Date-major layout: row index = date*len(codes) + code.
	assert.Equal(t, 0.0, g.Rows[1*2+1].Cases, "Ghent on d2 is zero filled")
	assert.Equal(t, 2.5, g.Rows[1*2+0].Cases)
	assert.Equal(t, 4.0, g.Rows[2*2+1].Cases)
	assert.Equal(t, Point{X: 104000, Y: 194000}, *g.Rows[5].Centroid)
}

func TestReconcile_ExtentComesFromCasesOnly(t *testing.T) {
	d1 := mustDate(t, "2020-04-01")
	res, err := Reconcile(testGeometry(), []CaseObservation{{Code: codeAntwerp, Date: d1, Cases: 3}})
	require.NoError(t, err)

	assert.Equal(t, []MunicipalityCode{codeAntwerp}, res.Grid.Codes)
	assert.NotContains(t, res.Grid.Codes, codeGeomOnly)
}

func TestReconcile_UnmatchedCodeHasNilCentroid(t *testing.T) {
	d1 := mustDate(t, "2020-04-01")
	res, err := Reconcile(testGeometry(), []CaseObservation{
		{Code: codeAntwerp, Date: d1, Cases: 3},
		{Code: codeNoGeom, Date: d1, Cases: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, []MunicipalityCode{codeNoGeom}, res.Unmatched)
	require.Equal(t, 2, res.Grid.Len())
	assert.NotNil(t, res.Grid.Rows[0].Centroid)
	assert.Nil(t, res.Grid.Rows[1].Centroid)

	dropped := res.Grid.DropMissingCentroids()
	assert.Equal(t, []MunicipalityCode{codeAntwerp}, dropped.Codes)
	assert.Equal(t, 1, dropped.Len())
}

func TestReconcile_DuplicateObservationLastWins(t *testing.T) {
	d1 := mustDate(t, "2020-04-01")
	res, err := Reconcile(testGeometry(), []CaseObservation{
		{Code: codeAntwerp, Date: d1, Cases: 3},
		{Code: codeAntwerp, Date: d1, Cases: 8},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Duplicates)
	require.Equal(t, 1, res.Grid.Len())
	assert.Equal(t, 8.0, res.Grid.Rows[0].Cases)
}

func TestReconcile_DuplicateGeometryRejected(t *testing.T) {
	geo := append(testGeometry(), GeometryRecord{Code: codeGhent})
	_, err := Reconcile(geo, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateGeometry)
}

func TestReconcile_Idempotent(t *testing.T) {
	d1, d2 := mustDate(t, "2020-04-01"), mustDate(t, "2020-04-02")
	obs := []CaseObservation{
		{Code: codeGhent, Date: d2, Cases: 1},
		{Code: codeAntwerp, Date: d1, Cases: 2},
	}
	reversed := []CaseObservation{obs[1], obs[0]}

	a, err := Reconcile(testGeometry(), obs)
	require.NoError(t, err)
	b, err := Reconcile(testGeometry(), reversed)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Grid, b.Grid, cmp.AllowUnexported(Date{})); diff != "" {
		t.Errorf("grids differ (-first +second):\n%s", diff)
	}
}

func TestReconcile_Empty(t *testing.T) {
	res, err := Reconcile(testGeometry(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Grid.Len())
	assert.Empty(t, res.Grid.Codes)
	assert.Empty(t, res.Grid.Dates)
}

func TestNewGrid(t *testing.T) {
	d1, d2 := mustDate(t, "2020-04-01"), mustDate(t, "2020-04-02")
	rows := []ReconciledRow{
		{Code: codeGhent, Date: d2, Cases: 4},
		{Code: codeAntwerp, Date: d2, Cases: 3},
		{Code: codeGhent, Date: d1, Cases: 2},
		{Code: codeAntwerp, Date: d1, Cases: 1},
	}

	g, err := NewGrid(rows)
	require.NoError(t, err)
	got := make([]float64, g.Len())
	for i, r := range g.Rows {
		got[i] = r.Cases
	}
	assert.Equal(t, []float64{1, 2, 3, 4}, got)
	assert.Equal(t, []float64{2, 4}, casesOf(g.Series(1)))
	assert.Equal(t, []float64{3, 4}, casesOf(g.RowsForDate(1)))

	_, err = NewGrid(rows[:3])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteGrid)

	dup := append([]ReconciledRow{}, rows[:3]...)
	dup = append(dup, rows[0])
	_, err = NewGrid(dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteGrid)
}

func casesOf(rows []ReconciledRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Cases
	}
	return out
}
