// Package report fetches vehicle history report PDFs from the upstream
// API. The contract is strict: HTTP 200 with an application/pdf content
// type and a non-empty body means the bytes are delivered to the user
// byte-for-byte, with no validation, classification, or conversion.
// Everything else is an error so the caller can refund the charge.
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
	"github.com/moalhelu/dejavplus-bots/internal/vin"
)

// Sentinel errors for caller decisions.
var (
	// ErrInvalidVIN means the input never reached upstream.
	ErrInvalidVIN = errors.New("invalid vin")
	// ErrBusy means no fetch slot freed up within the queue timeout.
	ErrBusy = errors.New("report service busy")
	// ErrNonPDF means upstream answered 200 but not with a usable PDF.
	ErrNonPDF = errors.New("upstream returned a non-pdf response")
)

// UpstreamError is a non-200 answer from the report API.
type UpstreamError struct {
	Status      int
	ContentType string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d (content-type %q)", e.Status, e.ContentType)
}

// Result is a successfully fetched report. PDF holds the upstream bytes
// untouched; SHA256, Status and ContentType exist for observability only.
type Result struct {
	VIN         string
	PDF         []byte
	Filename    string
	SHA256      string
	Status      int
	ContentType string
}

// Client fetches reports with bounded concurrency.
type Client struct {
	cfg  config.ReportConfig
	http *http.Client
	sem  *semaphore.Weighted
	log  *slog.Logger
	rec  *telemetry.Recorder
}

// NewClient creates a report API client.
func NewClient(cfg config.ReportConfig, log *slog.Logger, rec *telemetry.Recorder) *Client {
	if log == nil {
		log = slog.Default()
	}
	maxConc := cfg.MaxConcurrency
	if maxConc < 1 {
		maxConc = 1
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		sem:  semaphore.NewWeighted(maxConc),
		log:  log.With("component", "report_client"),
		rec:  rec,
	}
}

// Fetch retrieves the report PDF for rawVIN. Waiting for a fetch slot is
// bounded by the configured queue timeout; under load the call fails
// fast with ErrBusy instead of stacking requests into deadline overruns.
func (c *Client) Fetch(ctx context.Context, rawVIN string) (*Result, error) {
	normalized := vin.Normalize(rawVIN)
	if normalized == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVIN, rawVIN)
	}

	if err := c.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	done := c.rec.Timed(ctx, telemetry.EventReportFetch)

	result, err := c.fetch(ctx, normalized)
	if err != nil {
		done("vin", normalized, "error", err.Error())
		return nil, err
	}

	done("vin", normalized,
		"status", result.Status,
		"ctype", result.ContentType,
		"bytes_len", len(result.PDF),
		"sha256", result.SHA256,
	)
	return result, nil
}

func (c *Client) acquireSlot(ctx context.Context) error {
	queueCtx, cancel := context.WithTimeout(ctx, c.cfg.QueueTimeout)
	defer cancel()

	if err := c.sem.Acquire(queueCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, normalizedVIN string) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	// Cache-buster keeps retries from hitting stale upstream variants.
	url := fmt.Sprintf("%s/carfax/%s?ts=%d",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		normalizedVIN,
		time.Now().UnixMilli(),
	)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}
	if token := strings.TrimSpace(c.cfg.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/pdf, application/json;q=0.9, text/html;q=0.8, */*;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report response: %w", err)
	}

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	sum := sha256.Sum256(body)
	bodySHA := hex.EncodeToString(sum[:])

	c.log.InfoContext(ctx, "Upstream report call finished",
		"vin", normalizedVIN,
		"status", resp.StatusCode,
		"content_type", ctype,
		"bytes_len", len(body),
		"sha256", bodySHA,
	)

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, ContentType: ctype}
	}

	if !strings.Contains(ctype, "application/pdf") || len(body) == 0 {
		return nil, fmt.Errorf("%w: status=%d content_type=%q bytes=%s",
			ErrNonPDF, resp.StatusCode, ctype, strconv.Itoa(len(body)))
	}

	return &Result{
		VIN:         normalizedVIN,
		PDF:         body,
		Filename:    normalizedVIN + ".pdf",
		SHA256:      bodySHA,
		Status:      resp.StatusCode,
		ContentType: ctype,
	}, nil
}
