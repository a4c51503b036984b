// Command genmock writes a small synthetic geometry archive and case file in
// the Statbel and Sciensano formats, for running the pipeline offline against
// file:// URLs.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 30
//	GEOMETRY_URL=file://$PWD/data/mock/sectors.geojson.zip \
//	CASES_URL=file://$PWD/data/mock/COVID19BE_CASES_MUNI.json \
//	  go run ./cmd/covidmap run
package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/filewriter"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const (
	// Lambert 72 metres, roughly the south-west corner of Belgium.
	originX = 22000.0
	originY = 21000.0
	cell    = 12000.0
)

var regions = []string{
	"Région flamande",
	"Région wallonne",
	"Région de Bruxelles-Capitale",
}

type sectorFeature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type caseRecord struct {
	NIS5     *string `json:"NIS5"`
	Date     string  `json:"DATE"`
	TXDescr  string  `json:"TX_DESCR_NL,omitempty"`
	Province string  `json:"PROVINCE,omitempty"`
	Cases    any     `json:"CASES"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory")
	cols := flag.Int("cols", 6, "municipalities per row")
	rows := flag.Int("rows", 4, "municipality rows")
	days := flag.Int("days", 30, "days of case data")
	start := flag.String("start", "2020-03-01", "first case date")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *cols <= 0 || *rows <= 0 || *days <= 0 {
		flag.Usage()
		return fmt.Errorf("-cols, -rows and -days must be positive")
	}
	first, err := domain.ParseDate(*start)
	if err != nil {
		return err
	}

	codes := municipalityCodes(*rows, *cols)
	archive, err := sectorsArchive(codes, *cols)
	if err != nil {
		return fmt.Errorf("building sectors: %w", err)
	}
	zipPath := filepath.Join(*out, "sectors.geojson.zip")
	if err := filewriter.WriteFile(zipPath, archive); err != nil {
		return err
	}
	log.Printf("wrote %s: %d municipalities", zipPath, len(codes))

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	records := caseRecords(rng, codes, first, *days)
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	casesPath := filepath.Join(*out, "COVID19BE_CASES_MUNI.json")
	if err := filewriter.WriteFile(casesPath, data); err != nil {
		return err
	}
	log.Printf("wrote %s: %d records over %d days", casesPath, len(records), *days)
	return nil
}

// municipalityCodes numbers municipalities like the REFNIS codes of their
// region: 1xxxx, 2xxxx and so on by row.
func municipalityCodes(rows, cols int) []domain.MunicipalityCode {
	codes := make([]domain.MunicipalityCode, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			codes = append(codes, domain.MunicipalityCode(fmt.Sprintf("%d%04d", r%9+1, c+1)))
		}
	}
	return codes
}

// sectorsArchive lays municipalities out on a grid, splits each into two
// sectors and zips the resulting FeatureCollection.
func sectorsArchive(codes []domain.MunicipalityCode, cols int) ([]byte, error) {
	var features []sectorFeature
	for i, code := range codes {
		r, c := i/cols, i%cols
		x0 := originX + float64(c)*cell
		y0 := originY + float64(r)*cell
		region := regions[r%len(regions)]
		halves := [][2]float64{{x0, x0 + cell/2}, {x0 + cell/2, x0 + cell}}
		for j, h := range halves {
			poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
				{h[0], y0}, {h[1], y0}, {h[1], y0 + cell}, {h[0], y0 + cell}, {h[0], y0},
			}})
			if err != nil {
				return nil, err
			}
			raw, err := geojson.Marshal(poly)
			if err != nil {
				return nil, err
			}
			features = append(features, sectorFeature{
				Type: "Feature",
				Properties: map[string]any{
					"cd_sector":       fmt.Sprintf("%s%c00-", code, 'A'+j),
					"cd_munty_refnis": string(code),
					"tx_rgn_descr_fr": region,
				},
				Geometry: raw,
			})
		}
	}
	fc, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": features})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("sh_statbel_statistical_sectors_mock.geojson")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(fc); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// caseRecords emits a wave per municipality with the quirks of the published
// file: censored small counts, gaps, and a trailing record without a code.
func caseRecords(rng *rand.Rand, codes []domain.MunicipalityCode, first domain.Date, days int) []caseRecord {
	var out []caseRecord
	for i, code := range codes {
		nis := string(code)
		peak := days/3 + rng.IntN(days/3+1)
		height := 20 + rng.Float64()*80
		for d := 0; d < days; d++ {
			// Roughly one day in ten is not reported.
			if rng.IntN(10) == 0 {
				continue
			}
			dist := float64(d-peak) / float64(days/6+1)
			n := int(height / (1 + dist*dist))
			var cases any = strconv.Itoa(n)
			if n < 5 {
				cases = domain.CensoredMarker
			}
			out = append(out, caseRecord{
				NIS5:     &nis,
				Date:     first.Time().AddDate(0, 0, d).Format(time.DateOnly),
				TXDescr:  fmt.Sprintf("Gemeente %d", i+1),
				Province: regions[i%len(regions)],
				Cases:    cases,
			})
		}
	}
	out = append(out, caseRecord{Date: first.String(), Cases: "12"})
	return out
}
