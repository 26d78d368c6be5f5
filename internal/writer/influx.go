// Package writer delivers batches of points to an InfluxDB v1 write
// endpoint using line protocol.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/SashaStrek/influxfeed/internal/lineproto"
	"github.com/SashaStrek/influxfeed/internal/metrics"
	"github.com/SashaStrek/influxfeed/internal/reliability"
	"github.com/SashaStrek/influxfeed/pkg/types"
)

// TransientError is a write failure that may succeed on retry: a network
// error, a 5xx response or a 429.
type TransientError struct {
	Status int // 0 when the request never reached the server
	Err    error
	Body   string
}

func (e *TransientError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transient write error: %v", e.Err)
	}
	return fmt.Sprintf("transient write error: status %d: %s", e.Status, e.Body)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Temporary implements reliability.TemporaryError.
func (e *TransientError) Temporary() bool { return true }

// PermanentError is a write failure that retrying cannot fix: a 4xx
// response such as a malformed payload or bad credentials.
type PermanentError struct {
	Status int
	Body   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent write error: status %d: %s", e.Status, e.Body)
}

// Temporary implements reliability.TemporaryError.
func (e *PermanentError) Temporary() bool { return false }

// ClientConfig configures the InfluxDB write client.
type ClientConfig struct {
	URL      string // base URL, e.g. http://localhost:8086
	Database string
	Username string
	Password string
	Timeout  time.Duration

	Retry reliability.Config

	// RateLimit caps write requests per second (0 disables the limiter).
	RateLimit float64
}

// Client posts line protocol batches to a single InfluxDB v1 endpoint.
type Client struct {
	writeURL string
	http     *http.Client
	retry    reliability.Config
	limiter  *rate.Limiter
	metrics  *metrics.Collector

	retries atomic.Int64
}

// NewClient creates a write client. The metrics collector may be nil.
func NewClient(cfg ClientConfig, collector *metrics.Collector) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	q := url.Values{}
	q.Set("db", cfg.Database)
	if cfg.Username != "" {
		q.Set("u", cfg.Username)
		q.Set("p", cfg.Password)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/write"
	base.RawQuery = q.Encode()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		writeURL: base.String(),
		http:     &http.Client{Timeout: cfg.Timeout},
		retry:    cfg.Retry,
		limiter:  limiter,
		metrics:  collector,
	}, nil
}

// Write encodes points as one newline-joined payload and delivers it in a
// single request, retrying transient failures with backoff. A nil error
// means the whole batch is durably accepted by the database.
func (c *Client) Write(ctx context.Context, points []*types.Point) error {
	if len(points) == 0 {
		return nil
	}

	payload, err := lineproto.EncodeBatch(points)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	start := time.Now()

	retryCfg := c.retry
	retryCfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		c.retries.Add(1)
		if c.metrics != nil {
			c.metrics.WriteRetries.Inc()
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Int("points", len(points)).
			Msg("Write failed, retrying")
	}

	err = reliability.Retry(ctx, retryCfg, func(ctx context.Context) error {
		return c.post(ctx, payload)
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.WriteFailures.WithLabelValues(failureKind(err)).Inc()
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.PointsWritten.Add(float64(len(points)))
		c.metrics.BatchesSent.Inc()
		c.metrics.BytesSent.Add(float64(len(payload)))
		c.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}

	log.Debug().
		Int("points", len(points)).
		Int("bytes", len(payload)).
		Dur("took", time.Since(start)).
		Msg("Batch delivered")

	return nil
}

// Retries returns the number of retried write attempts so far.
func (c *Client) Retries() int64 {
	return c.retries.Load()
}

// post performs one gzip-compressed write request and classifies the outcome.
func (c *Client) post(ctx context.Context, payload string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(payload)); err != nil {
		return fmt.Errorf("gzip write failed: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("gzip close failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.writeURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to build write request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body := readBodySnippet(resp.Body)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &TransientError{Status: resp.StatusCode, Body: body}
	}
	return &PermanentError{Status: resp.StatusCode, Body: body}
}

// readBodySnippet reads a bounded prefix of an error response body.
func readBodySnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func failureKind(err error) string {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return "permanent"
	}
	return "transient"
}
