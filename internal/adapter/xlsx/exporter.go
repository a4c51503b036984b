// Package xlsx exports a smoothed grid as an Excel workbook.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/filewriter"
	"github.com/xuri/excelize/v2"
)

const (
	GridSheet    = "Grid"
	SummarySheet = "Summary"
)

var (
	gridHeader    = []any{"cd_munty_refnis", "DATE", "CASES", "CASES_MAVG", "centroid_x", "centroid_y"}
	summaryHeader = []any{"cd_munty_refnis", "total_cases", "peak_mavg", "peak_date"}
)

// Exporter writes grid workbooks to a fixed path.
// It implements pipeline.GridExporter.
type Exporter struct {
	path   string
	logger *slog.Logger
}

// NewExporter creates an exporter writing to path.
func NewExporter(path string, logger *slog.Logger) *Exporter {
	return &Exporter{path: path, logger: logger}
}

// ExportGrid writes one sheet with every grid row and one summary row per
// municipality. The file is replaced atomically.
func (e *Exporter) ExportGrid(ctx context.Context, g domain.Grid) error {
	if g.Len()+1 > excelize.TotalRows {
		return fmt.Errorf("grid has %d rows, more than a sheet can hold", g.Len())
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Daily cases per municipality",
		Creator: "covid-map-etl",
	}); err != nil {
		return fmt.Errorf("set workbook properties: %w", err)
	}

	idx, err := f.NewSheet(GridSheet)
	if err != nil {
		return fmt.Errorf("create sheet %s: %w", GridSheet, err)
	}
	f.SetActiveSheet(idx)
	if err := writeGridSheet(ctx, f, g); err != nil {
		return err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", SummarySheet, err)
	}
	if err := writeSummarySheet(f, g); err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	fw, err := filewriter.New(e.path)
	if err != nil {
		return err
	}
	if _, err := f.WriteTo(fw); err != nil {
		fw.Abort()
		return fmt.Errorf("write workbook %s: %w", e.path, err)
	}
	if err := fw.Close(); err != nil {
		return err
	}
	e.logger.Info("grid workbook exported", "path", e.path, "rows", g.Len())
	return nil
}

func writeGridSheet(ctx context.Context, f *excelize.File, g domain.Grid) error {
	sw, err := f.NewStreamWriter(GridSheet)
	if err != nil {
		return fmt.Errorf("open stream for %s: %w", GridSheet, err)
	}
	if err := sw.SetRow("A1", gridHeader); err != nil {
		return err
	}
	for i, r := range g.Rows {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		values := []any{string(r.Code), r.Date.String(), r.Cases, r.Smoothed, nil, nil}
		if r.Centroid != nil {
			values[4], values[5] = r.Centroid.X, r.Centroid.Y
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return sw.Flush()
}

func writeSummarySheet(f *excelize.File, g domain.Grid) error {
	sw, err := f.NewStreamWriter(SummarySheet)
	if err != nil {
		return fmt.Errorf("open stream for %s: %w", SummarySheet, err)
	}
	if err := sw.SetRow("A1", summaryHeader); err != nil {
		return err
	}
	for c, code := range g.Codes {
		var total, peak float64
		peakDate := ""
		for _, r := range g.Series(c) {
			total += r.Cases
			if r.Smoothed > peak {
				peak, peakDate = r.Smoothed, r.Date.String()
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, c+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, []any{string(code), total, peak, peakDate}); err != nil {
			return fmt.Errorf("write summary for %s: %w", code, err)
		}
	}
	return sw.Flush()
}
