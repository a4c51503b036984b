package gridfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T) domain.Grid {
	t.Helper()
	geometry := []domain.GeometryRecord{
		{Code: "11002", Centroid: domain.Point{X: 152301.123456789012, Y: 212345.987654321098}},
		{Code: "44021", Centroid: domain.Point{X: 104345.5, Y: 193712.25}},
	}
	d1 := domain.NewDate(2020, time.March, 31)
	d2 := domain.NewDate(2020, time.April, 1)
	res, err := domain.Reconcile(geometry, []domain.CaseObservation{
		{Code: "11002", Date: d1, Cases: 13},
		{Code: "44021", Date: d1, Cases: domain.CensoredValue},
		{Code: "11002", Date: d2, Cases: 7},
		{Code: "99999", Date: d2, Cases: 1},
	})
	require.NoError(t, err)
	return res.Grid
}

func TestWrite_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testGrid(t)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "cd_munty_refnis,DATE,CASES,centroid", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "11002,2020-03-31,13,POINT ("), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "44021,2020-03-31,2.5,POINT ("), lines[2])
	assert.Equal(t, "99999,2020-03-31,0,", lines[3])
	assert.Equal(t, "99999,2020-04-01,1,", lines[6])
}

func TestRoundTrip_Lossless(t *testing.T) {
	g := testGrid(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g))

	back, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, g.Codes, back.Codes)
	assert.Equal(t, g.Dates, back.Dates)
	require.Len(t, back.Rows, len(g.Rows))
	for i, want := range g.Rows {
		got := back.Rows[i]
		assert.Equal(t, want.Code, got.Code)
		assert.Equal(t, want.Date, got.Date)
		assert.Equal(t, want.Cases, got.Cases)
		if want.Centroid == nil {
			assert.Nil(t, got.Centroid)
			continue
		}
		require.NotNil(t, got.Centroid)
		assert.InDelta(t, want.Centroid.X, got.Centroid.X, 1e-9)
		assert.InDelta(t, want.Centroid.Y, got.Centroid.Y, 1e-9)
	}
}

func TestWriteFile_Idempotent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", FileName)
	b := filepath.Join(dir, "b", FileName)

	require.NoError(t, WriteFile(a, testGrid(t)))
	require.NoError(t, WriteFile(b, testGrid(t)))

	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	g, err := ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Len())
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target error
	}{
		{"bad header", "code,date,cases,centroid\n", nil},
		{"bad date", "cd_munty_refnis,DATE,CASES,centroid\n11002,31/03/2020,1,\n", domain.ErrInvalidDate},
		{"bad cases", "cd_munty_refnis,DATE,CASES,centroid\n11002,2020-03-31,x,\n", domain.ErrInvalidCaseCount},
		{"bad wkt", "cd_munty_refnis,DATE,CASES,centroid\n11002,2020-03-31,1,POINT (1\n", nil},
		{"not a point", "cd_munty_refnis,DATE,CASES,centroid\n11002,2020-03-31,1,\"LINESTRING (0 0, 1 1)\"\n", nil},
		{"incomplete", "cd_munty_refnis,DATE,CASES,centroid\n11002,2020-03-31,1,\n44021,2020-04-01,1,\n", domain.ErrIncompleteGrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			}
		})
	}
}

func TestRead_NormalisesLegacyCodes(t *testing.T) {
	in := "cd_munty_refnis,DATE,CASES,centroid\n1001,2020-03-31,<5,POINT (1 2)\n"
	g, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, g.Rows, 1)
	assert.Equal(t, domain.MunicipalityCode("01001"), g.Rows[0].Code)
	assert.Equal(t, domain.CensoredValue, g.Rows[0].Cases)
	assert.Equal(t, &domain.Point{X: 1, Y: 2}, g.Rows[0].Centroid)
}

func TestStore_WriteThenRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, s.WriteGrid(testGrid(t)))

	g, err := s.ReadGrid()
	require.NoError(t, err)
	assert.Equal(t, []domain.MunicipalityCode{"11002", "44021", "99999"}, g.Codes)
	assert.Len(t, g.Dates, 2)
}
