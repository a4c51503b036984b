package domain

import (
	"fmt"
	"slices"
)

// ReconciledRow is one cell of the municipality x date grid.
type ReconciledRow struct {
	Code     MunicipalityCode
	Date     Date
	Cases    float64
	Centroid *Point // nil when no geometry matched Code
	Smoothed float64
}

// Grid is the complete municipality x date table. Rows are date-major:
// chronological dates, codes ascending within each date, so the row for
// (Codes[c], Dates[d]) is Rows[d*len(Codes)+c].
type Grid struct {
	Codes []MunicipalityCode
	Dates []Date
	Rows  []ReconciledRow
}

// Len returns the number of rows.
func (g Grid) Len() int { return len(g.Rows) }

// RowsForDate returns the rows of the d-th date. The slice aliases g.Rows.
func (g Grid) RowsForDate(d int) []ReconciledRow {
	n := len(g.Codes)
	return g.Rows[d*n : (d+1)*n]
}

// Series returns the rows of the c-th code in chronological order.
func (g Grid) Series(c int) []ReconciledRow {
	n := len(g.Codes)
	out := make([]ReconciledRow, len(g.Dates))
	for d := range g.Dates {
		out[d] = g.Rows[d*n+c]
	}
	return out
}

// Clone returns a deep copy of g.
func (g Grid) Clone() Grid {
	out := Grid{
		Codes: slices.Clone(g.Codes),
		Dates: slices.Clone(g.Dates),
		Rows:  make([]ReconciledRow, len(g.Rows)),
	}
	for i, r := range g.Rows {
		if r.Centroid != nil {
			c := *r.Centroid
			r.Centroid = &c
		}
		out.Rows[i] = r
	}
	return out
}

// DropMissingCentroids returns a new grid without the municipalities that have
// a row without a centroid. The remaining grid is still a complete product.
func (g Grid) DropMissingCentroids() Grid {
	n := len(g.Codes)
	keep := make([]int, 0, n)
	for c := range g.Codes {
		ok := true
		for d := range g.Dates {
			if g.Rows[d*n+c].Centroid == nil {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, c)
		}
	}
	if len(keep) == len(g.Codes) {
		return g.Clone()
	}

	out := Grid{
		Codes: make([]MunicipalityCode, len(keep)),
		Dates: slices.Clone(g.Dates),
		Rows:  make([]ReconciledRow, 0, len(keep)*len(g.Dates)),
	}
	for i, c := range keep {
		out.Codes[i] = g.Codes[c]
	}
	for d := range g.Dates {
		for _, c := range keep {
			r := g.Rows[d*n+c]
			pt := *r.Centroid
			r.Centroid = &pt
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// NewGrid assembles a grid from rows in any order and verifies that they form
// exactly one row per (code, date) pair of the observed codes and dates.
func NewGrid(rows []ReconciledRow) (Grid, error) {
	codeSet := make(map[MunicipalityCode]struct{})
	dateSet := make(map[Date]struct{})
	for _, r := range rows {
		codeSet[r.Code] = struct{}{}
		dateSet[r.Date] = struct{}{}
	}

	g := Grid{
		Codes: sortedKeys(codeSet),
		Dates: make([]Date, 0, len(dateSet)),
	}
	for d := range dateSet {
		g.Dates = append(g.Dates, d)
	}
	SortDates(g.Dates)

	want := len(g.Codes) * len(g.Dates)
	if len(rows) != want {
		return Grid{}, fmt.Errorf("%w: %d rows for %d codes x %d dates",
			ErrIncompleteGrid, len(rows), len(g.Codes), len(g.Dates))
	}

	codeIdx := indexOf(g.Codes)
	dateIdx := indexOf(g.Dates)
	g.Rows = make([]ReconciledRow, want)
	seen := make([]bool, want)
	for _, r := range rows {
		i := dateIdx[r.Date]*len(g.Codes) + codeIdx[r.Code]
		if seen[i] {
			return Grid{}, fmt.Errorf("%w: duplicate row for %s on %s", ErrIncompleteGrid, r.Code, r.Date)
		}
		seen[i] = true
		g.Rows[i] = r
	}
	return g, nil
}

// ReconcileResult is the reconciled grid plus join diagnostics.
type ReconcileResult struct {
	Grid Grid
	// Unmatched lists codes with case data but no geometry; their rows carry a
	// nil centroid.
	Unmatched []MunicipalityCode
	// Duplicates counts observations that replaced an earlier observation for
	// the same (code, date).
	Duplicates int
}

// Reconcile builds the complete grid from sparse observations.
//
// The grid's extent comes from the observations only: every code and every date
// seen there, crossed. Municipalities that have geometry but no case rows are
// not included. Missing (code, date) pairs get zero cases; duplicate pairs keep
// the last observation in input order. Centroids are joined by code and left
// nil when no geometry matches.
func Reconcile(geometry []GeometryRecord, observations []CaseObservation) (ReconcileResult, error) {
	centroids, err := IndexCentroids(geometry)
	if err != nil {
		return ReconcileResult{}, err
	}

	type cell struct {
		code MunicipalityCode
		date Date
	}
	cases := make(map[cell]float64, len(observations))
	codeSet := make(map[MunicipalityCode]struct{})
	dateSet := make(map[Date]struct{})
	duplicates := 0
	for _, o := range observations {
		k := cell{o.Code, o.Date}
		if _, dup := cases[k]; dup {
			duplicates++
		}
		cases[k] = o.Cases
		codeSet[o.Code] = struct{}{}
		dateSet[o.Date] = struct{}{}
	}

	codes := sortedKeys(codeSet)
	dates := make([]Date, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	SortDates(dates)

	var unmatched []MunicipalityCode
	points := make([]*Point, len(codes))
	for i, c := range codes {
		if pt, ok := centroids[c]; ok {
			points[i] = &pt
		} else {
			unmatched = append(unmatched, c)
		}
	}

	rows := make([]ReconciledRow, 0, len(codes)*len(dates))
	for _, d := range dates {
		for i, c := range codes {
			var centroid *Point
			if points[i] != nil {
				pt := *points[i]
				centroid = &pt
			}
			rows = append(rows, ReconciledRow{
				Code:     c,
				Date:     d,
				Cases:    cases[cell{c, d}],
				Centroid: centroid,
			})
		}
	}

	return ReconcileResult{
		Grid:       Grid{Codes: codes, Dates: dates, Rows: rows},
		Unmatched:  unmatched,
		Duplicates: duplicates,
	}, nil
}

func indexOf[K comparable](keys []K) map[K]int {
	m := make(map[K]int, len(keys))
	for i, k := range keys {
		m[k] = i
	}
	return m
}
