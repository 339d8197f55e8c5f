// Package ultramsg is a thin wrapper around the UltraMsg WhatsApp REST
// endpoints used to answer inbound webhook events: text replies, image
// sends, and PDF document delivery.
package ultramsg

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
)

// ErrCredentials means the instance id or token is missing.
var ErrCredentials = errors.New("ultramsg credentials are incomplete")

// APIError is an error payload returned by UltraMsg, or a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ultramsg error: %s", e.Message)
	}
	return fmt.Sprintf("ultramsg http error: status %d", e.Status)
}

// Client talks to one UltraMsg instance. Outbound calls are rate limited
// so bursts of webhook replies don't trip the gateway's own throttling.
type Client struct {
	cfg     config.UltraMsgConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
	rec     *telemetry.Recorder
}

// NewClient validates credentials and builds a Client.
func NewClient(cfg config.UltraMsgConfig, log *slog.Logger, rec *telemetry.Recorder) (*Client, error) {
	if cfg.InstanceID == "" || cfg.Token == "" {
		return nil, ErrCredentials
	}
	if log == nil {
		log = slog.Default()
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		log:     log.With("component", "ultramsg"),
		rec:     rec,
	}, nil
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	done := c.rec.Timed(ctx, telemetry.EventWASendText)
	form := url.Values{}
	form.Set("to", to)
	form.Set("body", body)
	err := c.post(ctx, "messages/chat", form)
	done("to", to, "body_len", len(body), "ok", err == nil)
	return err
}

// SendImage sends an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) error {
	if imageURL == "" {
		return errors.New("image url must be provided")
	}
	done := c.rec.Timed(ctx, telemetry.EventWASendImage)
	form := url.Values{}
	form.Set("to", to)
	form.Set("image", imageURL)
	if caption != "" {
		form.Set("caption", caption)
	}
	err := c.post(ctx, "messages/image", form)
	done("to", to, "ok", err == nil)
	return err
}

// SendDocument delivers document bytes as a base64 payload with the given
// filename. This is how report PDFs reach the user.
func (c *Client) SendDocument(ctx context.Context, to string, document []byte, filename, caption string) error {
	if len(document) == 0 {
		return errors.New("document bytes must be provided")
	}
	done := c.rec.Timed(ctx, telemetry.EventWASendDocument)
	form := url.Values{}
	form.Set("to", to)
	form.Set("document", base64.StdEncoding.EncodeToString(document))
	form.Set("filename", filename)
	if caption != "" {
		form.Set("caption", caption)
	}
	err := c.post(ctx, "messages/document", form)
	done("to", to, "filename", filename, "bytes_len", len(document), "ok", err == nil)
	return err
}

// post sends a form-encoded request to {base}/{instance}/{endpoint} with
// the token as a query parameter, and maps error payloads to APIError.
func (c *Client) post(ctx context.Context, endpoint string, form url.Values) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/%s?token=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		c.cfg.InstanceID,
		endpoint,
		url.QueryEscape(c.cfg.Token),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build ultramsg request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ultramsg request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ultramsg response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("ultramsg response was not a JSON object: %w", err)
	}
	if errVal, ok := payload["error"]; ok && errVal != nil {
		if s, ok := errVal.(string); !ok || s != "" {
			return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("%v", errVal)}
		}
	}

	c.log.DebugContext(ctx, "UltraMsg call succeeded", "endpoint", endpoint)
	return nil
}
