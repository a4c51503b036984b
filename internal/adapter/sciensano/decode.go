// Package sciensano reads the daily case counts per municipality published by
// Sciensano as a JSON array of records.
package sciensano

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
)

// record holds the fields used from one published row. Other fields such as
// the municipality names and province are ignored.
type record struct {
	NIS5  any     `json:"NIS5"`
	Cases any     `json:"CASES"`
	Date  *string `json:"DATE"`
}

// DecodeStats counts the records seen by Decode.
type DecodeStats struct {
	Accepted int
	Dropped  int // records with a null or missing field
}

// Decode streams a JSON array of case records from r. Records with a null or
// missing code, count or date are dropped and counted; any other malformed
// value fails the decode.
func Decode(r io.Reader) ([]domain.CaseObservation, DecodeStats, error) {
	var stats DecodeStats

	dec := json.NewDecoder(r)
	dec.UseNumber()
	if t, err := dec.Token(); err != nil {
		return nil, stats, fmt.Errorf("read array start: %w", err)
	} else if t != json.Delim('[') {
		return nil, stats, fmt.Errorf("expected array, got %v", t)
	}

	var out []domain.CaseObservation
	for i := 0; dec.More(); i++ {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			return nil, stats, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.NIS5 == nil || rec.Cases == nil || rec.Date == nil {
			stats.Dropped++
			continue
		}
		obs, err := rec.observation()
		if err != nil {
			return nil, stats, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, obs)
		stats.Accepted++
	}

	if t, err := dec.Token(); err != nil {
		return nil, stats, fmt.Errorf("read array end: %w", err)
	} else if t != json.Delim(']') {
		return nil, stats, fmt.Errorf("expected array end, got %v", t)
	}
	return out, stats, nil
}

func (r record) observation() (domain.CaseObservation, error) {
	code, err := domain.NormalizeCode(r.NIS5)
	if err != nil {
		return domain.CaseObservation{}, err
	}
	date, err := domain.ParseDate(*r.Date)
	if err != nil {
		return domain.CaseObservation{}, err
	}
	cases, err := domain.DecodeCaseCount(r.Cases)
	if err != nil {
		return domain.CaseObservation{}, fmt.Errorf("%s on %s: %w", code, date, err)
	}
	return domain.CaseObservation{Code: code, Date: date, Cases: cases}, nil
}
