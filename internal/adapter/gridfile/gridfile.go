// Package gridfile persists a reconciled grid as CSV with the centroid encoded
// as a WKT point, and reads it back.
package gridfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/filewriter"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// FileName is the default name of the grid file.
const FileName = "be_geo_data_nis_covid.csv"

// Header is the column layout of the grid file.
var Header = []string{"cd_munty_refnis", "DATE", "CASES", "centroid"}

// Write encodes the grid in row order. Rows without a centroid get an empty
// centroid column.
func Write(w io.Writer, g domain.Grid) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range g.Rows {
		centroid := ""
		if r.Centroid != nil {
			s, err := wkt.Marshal(r.Centroid.Geom())
			if err != nil {
				return fmt.Errorf("encode centroid of %s: %w", r.Code, err)
			}
			centroid = s
		}
		rec := []string{
			string(r.Code),
			r.Date.String(),
			strconv.FormatFloat(r.Cases, 'f', -1, 64),
			centroid,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read decodes a grid file and checks that it is a complete grid.
func Read(r io.Reader) (domain.Grid, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(head, Header) {
		return domain.Grid{}, fmt.Errorf("unexpected header %q", head)
	}

	var rows []domain.ReconciledRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Grid{}, err
		}
		line, _ := cr.FieldPos(0)
		row, err := parseRow(rec)
		if err != nil {
			return domain.Grid{}, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return domain.NewGrid(rows)
}

func parseRow(rec []string) (domain.ReconciledRow, error) {
	code, err := domain.ParseCode(rec[0])
	if err != nil {
		return domain.ReconciledRow{}, err
	}
	date, err := domain.ParseDate(rec[1])
	if err != nil {
		return domain.ReconciledRow{}, err
	}
	cases, err := domain.DecodeCaseCount(rec[2])
	if err != nil {
		return domain.ReconciledRow{}, err
	}
	row := domain.ReconciledRow{Code: code, Date: date, Cases: cases}
	if rec[3] != "" {
		g, err := wkt.Unmarshal(rec[3])
		if err != nil {
			return domain.ReconciledRow{}, fmt.Errorf("centroid %q: %w", rec[3], err)
		}
		pt, err := domain.PointFromGeom(g)
		if err != nil {
			return domain.ReconciledRow{}, fmt.Errorf("centroid %q: %w", rec[3], err)
		}
		row.Centroid = &pt
	}
	return row, nil
}

// WriteFile atomically replaces path with the encoded grid.
func WriteFile(path string, g domain.Grid) error {
	fw, err := filewriter.New(path)
	if err != nil {
		return err
	}
	if err := Write(fw, g); err != nil {
		fw.Abort()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fw.Close()
}

// ReadFile reads a grid file from disk.
func ReadFile(path string) (domain.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Grid{}, err
	}
	defer f.Close()
	g, err := Read(f)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read %s: %w", path, err)
	}
	return g, nil
}

// Store persists grids at a fixed path.
// It implements pipeline.GridStore.
type Store struct {
	path string
}

// NewStore returns a Store for path.
func NewStore(path string) *Store { return &Store{path: path} }

// Path returns the grid file location.
func (s *Store) Path() string { return s.path }

// WriteGrid atomically replaces the grid file.
func (s *Store) WriteGrid(g domain.Grid) error { return WriteFile(s.path, g) }

// ReadGrid reads the grid file back.
func (s *Store) ReadGrid() (domain.Grid, error) { return ReadFile(s.path) }
