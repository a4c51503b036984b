package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CodeWidth is the canonical width of a numeric municipality code.
const CodeWidth = 5

// MunicipalityCode is the canonical municipality identifier shared by the
// geometry and case sources.
type MunicipalityCode string

func (c MunicipalityCode) String() string { return string(c) }

// NormalizeCode converts a raw code as emitted by a source (string, JSON
// number, or Go numeric) into its canonical form. Integral numeric values are
// zero-padded to CodeWidth digits; other strings are only trimmed.
func NormalizeCode(v any) (MunicipalityCode, error) {
	switch t := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: missing code", ErrInvalidCode)
	case MunicipalityCode:
		return ParseCode(string(t))
	case string:
		return ParseCode(t)
	case json.Number:
		return ParseCode(t.String())
	case float64:
		return codeFromFloat(t)
	case int:
		return codeFromFloat(float64(t))
	case int64:
		return codeFromFloat(float64(t))
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidCode, v)
	}
}

// ParseCode normalises a textual code.
func ParseCode(s string) (MunicipalityCode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty code", ErrInvalidCode)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return codeFromFloat(f)
	}
	return MunicipalityCode(s), nil
}

func codeFromFloat(f float64) (MunicipalityCode, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return "", fmt.Errorf("%w: %v is not a non-negative integer", ErrInvalidCode, f)
	}
	return MunicipalityCode(fmt.Sprintf("%0*d", CodeWidth, int64(f))), nil
}
