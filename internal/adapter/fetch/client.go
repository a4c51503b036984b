// Package fetch downloads source documents over HTTP(S) or from file:// URLs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/covid-map-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Body)
}

// Client fetches whole documents into memory.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewClient creates a fetch client. The timeout bounds each request including
// reading the body. file:// URLs are served from the local filesystem. clock
// times downloads for the fetch duration metric.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		metrics: metrics,
		logger:  logger,
		clock:   clock,
	}
}

// Get downloads url. source labels the request in logs and metrics.
func (c *Client) Get(ctx context.Context, source, url string) ([]byte, error) {
	start := c.clock.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", source, err)
	}

	elapsed := c.clock.Since(start)
	c.metrics.FetchBytes.WithLabelValues(source).Add(float64(len(data)))
	c.metrics.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	c.logger.Info("source downloaded",
		"source", source,
		"url", url,
		"bytes", len(data),
		"duration", elapsed,
	)
	return data, nil
}
