package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/covid-map-etl/internal/config"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRow(t *testing.T) {
	row := domain.ReconciledRow{
		Code:     "11002",
		Date:     domain.NewDate(2020, time.April, 7),
		Cases:    13,
		Smoothed: 9.5,
		Centroid: &domain.Point{X: 152301.5, Y: 212345.25},
	}

	msg, err := serializeRow("run-1", row)
	require.NoError(t, err)

	assert.Equal(t, []byte("11002"), msg.Key)
	assert.JSONEq(t, `{
		"cd_munty_refnis": "11002",
		"date": "2020-04-07",
		"cases": 13,
		"cases_smoothed": 9.5,
		"centroid": {"x": 152301.5, "y": 212345.25}
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "date", msg.Headers[1].Key)
	assert.Equal(t, []byte("2020-04-07"), msg.Headers[1].Value)
}

func TestSerializeRow_NoCentroid(t *testing.T) {
	msg, err := serializeRow("run-1", domain.ReconciledRow{Code: "99999", Date: domain.NewDate(2020, time.April, 7)})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.NotContains(t, decoded, "centroid")
}

func TestSerializeRow_NonFinite(t *testing.T) {
	_, err := serializeRow("run-1", domain.ReconciledRow{Code: "11002", Cases: math.Inf(1)})
	require.Error(t, err)
}

func TestNewPublisher_UsesConfiguredTopic(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "grid"}
	p := NewPublisher(cfg, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer p.Close()

	assert.Equal(t, "grid", p.writer.Topic)
}
