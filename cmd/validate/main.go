// Command validate checks a reconciled grid file and, optionally, the case
// file it was built from and the animation rendered from it. It verifies the
// grid is a complete municipality x date product, that centroids and counts
// are consistent, and that the GIF has one frame per date.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -grid data/be_geo_data_nis_covid.csv \
//	  -cases data/COVID19BE_CASES_MUNI.json \
//	  -gif 245_days_of_covid.gif
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image/gif"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/covid-map-etl/internal/adapter/gridfile"
	"github.com/couchcryptid/covid-map-etl/internal/adapter/sciensano"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/render"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	gridPath := flag.String("grid", filepath.Join("data", gridfile.FileName), "path to the reconciled grid CSV")
	casesPath := flag.String("cases", "", "path to the Sciensano case JSON the grid was built from")
	gifPath := flag.String("gif", "", "path to the rendered animation")
	frameRate := flag.Int("frame-rate", 5, "expected animation frame rate")
	flag.Parse()

	if *gridPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*gridPath, *casesPath, *gifPath, *frameRate); code != 0 {
		os.Exit(code)
	}
}

func run(gridPath, casesPath, gifPath string, frameRate int) int {
	fmt.Println("=== Covid Map Grid Validation ===")
	fmt.Println()

	g, err := gridfile.ReadFile(gridPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load grid: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateCentroids(g),
		validateCounts(g),
	}

	if casesPath != "" {
		obs, err := loadCases(casesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load cases: %v\n", err)
			return 1
		}
		phases = append(phases, validateAgainstCases(g, obs))
	}
	if gifPath != "" {
		phases = append(phases, validateAnimation(g, gifPath, frameRate))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	first, last := "-", "-"
	if len(g.Dates) > 0 {
		first, last = g.Dates[0].String(), g.Dates[len(g.Dates)-1].String()
	}
	fmt.Printf("Grid: %d municipalities x %d dates = %d rows (%s .. %s)\n",
		len(g.Codes), len(g.Dates), g.Len(), first, last)
	if gaps := missingDays(g.Dates); gaps > 0 {
		fmt.Printf("Note: %d calendar days inside the range have no data in any municipality\n", gaps)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadCases(path string) ([]domain.CaseObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obs, _, err := sciensano.Decode(bufio.NewReader(f))
	return obs, err
}

// ── Phase 1: Centroids ──
// Every municipality has one centroid on every date, or none at all.

func validateCentroids(g domain.Grid) *phase {
	p := &phase{name: "Phase 1: Centroids"}
	missing := 0
	for c, code := range g.Codes {
		series := g.Series(c)
		first := series[0].Centroid
		if first == nil {
			missing++
		}
		for _, r := range series[1:] {
			switch {
			case (first == nil) != (r.Centroid == nil):
				p.errorf("%s: centroid present on some dates only (%s differs)", code, r.Date)
			case first != nil && *first != *r.Centroid:
				p.errorf("%s: centroid changes on %s", code, r.Date)
			default:
				continue
			}
			break
		}
	}
	if missing > 0 {
		fmt.Printf("Note: %d municipalities have no geometry and are not plotted\n", missing)
	}
	return p
}

// ── Phase 2: Counts ──

func validateCounts(g domain.Grid) *phase {
	p := &phase{name: "Phase 2: Case counts"}
	for _, r := range g.Rows {
		if r.Cases < 0 || math.IsNaN(r.Cases) || math.IsInf(r.Cases, 0) {
			p.errorf("%s %s: invalid count %v", r.Code, r.Date, r.Cases)
		}
	}
	return p
}

// ── Phase 3: Source parity ──
// Grid counts equal the last observation for each cell and zero elsewhere.

func validateAgainstCases(g domain.Grid, obs []domain.CaseObservation) *phase {
	p := &phase{name: "Phase 3: Source parity (grid vs cases)"}

	type cell struct {
		code domain.MunicipalityCode
		date domain.Date
	}
	want := make(map[cell]float64, len(obs))
	codes := make(map[domain.MunicipalityCode]struct{})
	dates := make(map[domain.Date]struct{})
	for _, o := range obs {
		want[cell{o.Code, o.Date}] = o.Cases
		codes[o.Code] = struct{}{}
		dates[o.Date] = struct{}{}
	}

	if len(codes) != len(g.Codes) {
		p.errorf("cases have %d municipalities, grid has %d", len(codes), len(g.Codes))
	}
	if len(dates) != len(g.Dates) {
		p.errorf("cases have %d dates, grid has %d", len(dates), len(g.Dates))
	}
	for _, r := range g.Rows {
		if v := want[cell{r.Code, r.Date}]; v != r.Cases {
			p.errorf("%s %s: grid=%v, cases=%v", r.Code, r.Date, r.Cases, v)
		}
	}
	return p
}

// ── Phase 4: Animation ──

func validateAnimation(g domain.Grid, path string, frameRate int) *phase {
	p := &phase{name: "Phase 4: Animation"}

	f, err := os.Open(path)
	if err != nil {
		p.errorf("open: %v", err)
		return p
	}
	defer f.Close()

	anim, err := gif.DecodeAll(bufio.NewReader(f))
	if err != nil {
		p.errorf("decode: %v", err)
		return p
	}

	if want := render.OutputName(len(anim.Image)); filepath.Base(path) != want {
		p.errorf("file name %q does not match %d frames (want %q)", filepath.Base(path), len(anim.Image), want)
	}
	if len(anim.Image) != len(g.Dates) {
		p.errorf("%d frames for %d dates", len(anim.Image), len(g.Dates))
	}
	if anim.LoopCount != 0 {
		p.errorf("loop count %d, want 0 (forever)", anim.LoopCount)
	}
	wantDelay := 100 / frameRate
	for i, d := range anim.Delay {
		if d != wantDelay {
			p.errorf("frame %d: delay %d, want %d", i+1, d, wantDelay)
			break
		}
	}
	return p
}

// missingDays counts calendar days between the first and last date that are
// absent from dates.
func missingDays(dates []domain.Date) int {
	if len(dates) < 2 {
		return 0
	}
	span := int(dates[len(dates)-1].Time().Sub(dates[0].Time()).Hours()/24) + 1
	return span - len(dates)
}
