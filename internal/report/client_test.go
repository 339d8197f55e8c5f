package report

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moalhelu/dejavplus-bots/internal/config"
)

const testVIN = "1HGCM82633A004352"

func newTestClient(baseURL string, maxConc int64, queueTimeout time.Duration) *Client {
	cfg := config.ReportConfig{
		BaseURL:        baseURL,
		APIToken:       "test-token",
		Timeout:        5 * time.Second,
		MaxConcurrency: maxConc,
		QueueTimeout:   queueTimeout,
	}
	return NewClient(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)), nil)
}

func TestFetchDeliversPDFVerbatim(t *testing.T) {
	t.Parallel()

	pdf := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte{0xAB}, 512)...)

	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if r.URL.Query().Get("ts") == "" {
			t.Error("missing cache-buster query param")
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, time.Second)
	res, err := c.Fetch(context.Background(), "1hgcm82633a004352")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !bytes.Equal(res.PDF, pdf) {
		t.Error("PDF bytes were not delivered verbatim")
	}
	if res.VIN != testVIN {
		t.Errorf("VIN = %q, want normalized %q", res.VIN, testVIN)
	}
	if res.Filename != testVIN+".pdf" {
		t.Errorf("Filename = %q", res.Filename)
	}
	if res.SHA256 == "" || res.Status != http.StatusOK {
		t.Errorf("observability fields: sha=%q status=%d", res.SHA256, res.Status)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/carfax/"+testVIN {
		t.Errorf("path = %q", gotPath)
	}
}

func TestFetchRejectsInvalidVIN(t *testing.T) {
	t.Parallel()

	c := newTestClient("http://127.0.0.1:0", 1, time.Second)
	_, err := c.Fetch(context.Background(), "not-a-vin")
	if !errors.Is(err, ErrInvalidVIN) {
		t.Errorf("err = %v, want ErrInvalidVIN", err)
	}
}

func TestFetchNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, time.Second)
	_, err := c.Fetch(context.Background(), testVIN)

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if ue.Status != http.StatusBadGateway {
		t.Errorf("status = %d", ue.Status)
	}
}

func TestFetchNonPDFContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"no report"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, time.Second)
	_, err := c.Fetch(context.Background(), testVIN)
	if !errors.Is(err, ErrNonPDF) {
		t.Errorf("err = %v, want ErrNonPDF", err)
	}
}

func TestFetchEmptyPDFBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, time.Second)
	_, err := c.Fetch(context.Background(), testVIN)
	if !errors.Is(err, ErrNonPDF) {
		t.Errorf("err = %v, want ErrNonPDF for empty body", err)
	}
}

func TestFetchBusyWhenSlotsExhausted(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var inflight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL, 1, 100*time.Millisecond)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), testVIN)
		firstDone <- err
	}()

	// Wait until the first request holds the only slot.
	deadline := time.After(2 * time.Second)
	for inflight.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first request never reached the server")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := c.Fetch(context.Background(), testVIN)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}
