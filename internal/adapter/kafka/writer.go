package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/covid-map-etl/internal/config"
	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

const publishBatchSize = 500

// GridMessage is the JSON value of one published grid row.
type GridMessage struct {
	Code     string        `json:"cd_munty_refnis"`
	Date     string        `json:"date"`
	Cases    float64       `json:"cases"`
	Smoothed float64       `json:"cases_smoothed"`
	Centroid *domain.Point `json:"centroid,omitempty"`
}

// Publisher produces smoothed grid rows to a Kafka topic.
// It implements pipeline.GridPublisher.
type Publisher struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured grid topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// PublishGrid writes every row of g, keyed by municipality code so that each
// municipality's rows stay ordered within one partition.
func (p *Publisher) PublishGrid(ctx context.Context, runID string, g domain.Grid) error {
	msgs := make([]kafkago.Message, 0, publishBatchSize)
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish grid rows: %w", err)
		}
		p.metrics.RowsPublished.Add(float64(len(msgs)))
		msgs = msgs[:0]
		return nil
	}

	for _, row := range g.Rows {
		msg, err := serializeRow(runID, row)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == publishBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	p.logger.Info("grid published", "topic", p.writer.Topic, "rows", g.Len())
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeRow marshals a grid row into a Kafka message.
func serializeRow(runID string, row domain.ReconciledRow) (kafkago.Message, error) {
	data, err := json.Marshal(GridMessage{
		Code:     string(row.Code),
		Date:     row.Date.String(),
		Cases:    row.Cases,
		Smoothed: row.Smoothed,
		Centroid: row.Centroid,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize grid row %s/%s: %w", row.Code, row.Date, err)
	}
	return kafkago.Message{
		Key:   []byte(row.Code),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "date", Value: []byte(row.Date.String())},
		},
	}, nil
}
