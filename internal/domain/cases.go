package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// CensoredMarker is the literal published instead of counts below five.
	CensoredMarker = "<5"
	// CensoredValue is the midpoint substituted for CensoredMarker.
	CensoredValue = 2.5
)

// CaseObservation is one reported daily case count for a municipality.
type CaseObservation struct {
	Code  MunicipalityCode
	Date  Date
	Cases float64
}

// DecodeCaseCount converts a raw CASES value into a number. The censored
// marker decodes to CensoredValue; numeric strings and JSON numbers decode to
// their value. Negative, NaN and infinite values are rejected.
func DecodeCaseCount(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: missing value", ErrInvalidCaseCount)
	case string:
		s := strings.TrimSpace(t)
		if s == CensoredMarker {
			return CensoredValue, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCaseCount, t)
		}
		f = parsed
	case json.Number:
		return DecodeCaseCount(t.String())
	case float64:
		f = t
	case int:
		f = float64(t)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidCaseCount, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCaseCount, f)
	}
	return f, nil
}
