package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// newCaptureRecorder returns a Recorder writing JSON lines into buf.
func newCaptureRecorder(enabled bool, buf *bytes.Buffer) *Recorder {
	log := slog.New(slog.NewJSONHandler(buf, nil))
	return NewRecorder(enabled, log)
}

func decodeEvents(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("failed to decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestRecorderDisabledEmitsNothing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := newCaptureRecorder(false, &buf)

	rec.Record(context.Background(), EventDBSave, time.Millisecond, "path", "db.json")
	rec.Timed(context.Background(), EventDBLoad)()

	if buf.Len() != 0 {
		t.Errorf("disabled recorder emitted output: %s", buf.String())
	}
	if rec.Enabled() {
		t.Error("Enabled() = true for disabled recorder")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	t.Parallel()

	var rec *Recorder
	if rec.Enabled() {
		t.Error("nil recorder reports enabled")
	}
	rec.Record(context.Background(), EventDBSave, time.Second)
	rec.Timed(context.Background(), EventDBLoad)("key", "value")
}

func TestRecorderEmitsDocumentedFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := newCaptureRecorder(true, &buf)

	ctx := WithRID(context.Background(), "wa-abc123def456")
	rec.Record(ctx, EventReportFetch, 1500*time.Millisecond, "vin", "1HGCM82633A004352", "status", 200)

	events := decodeEvents(t, &buf)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]

	if got := ev["op"]; got != EventReportFetch {
		t.Errorf("op = %v, want %v", got, EventReportFetch)
	}
	if got := ev["duration_ms"]; got != float64(1500) {
		t.Errorf("duration_ms = %v, want 1500", got)
	}
	if got := ev["rid"]; got != "wa-abc123def456" {
		t.Errorf("rid = %v, want wa-abc123def456", got)
	}
	if got := ev["vin"]; got != "1HGCM82633A004352" {
		t.Errorf("vin = %v", got)
	}
	if got := ev["logger"]; got != channelName {
		t.Errorf("logger = %v, want %v", got, channelName)
	}
}

func TestRecorderTruncation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"short string passes through", "hello", "hello"},
		{"string at limit passes through", strings.Repeat("a", 256), strings.Repeat("a", 256)},
		{"long string truncated", strings.Repeat("a", 300), "<string:300>"},
		{"short bytes pass through", []byte("pdf"), "pdf"},
		{"long bytes truncated", bytes.Repeat([]byte{'x'}, 1024), "<bytes:1024>"},
		{"non-string value untouched", 42, float64(42)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			rec := newCaptureRecorder(true, &buf)
			rec.Record(context.Background(), EventDBSave, time.Millisecond, "field", tt.value)

			events := decodeEvents(t, &buf)
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if got := events[0]["field"]; got != tt.want {
				t.Errorf("field = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRIDPropagation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := newCaptureRecorder(true, &buf)

	// One inbound event: every record shares the same rid.
	ctx := WithRID(context.Background(), NewRID("wa"))
	rec.Timed(ctx, EventWAHandle)()
	rec.Timed(ctx, EventReportFetch)()
	rec.Timed(ctx, EventWASendDocument)()

	// A second, independent inbound event gets its own rid.
	ctx2 := WithRID(context.Background(), NewRID("wa"))
	rec.Timed(ctx2, EventWAHandle)()

	events := decodeEvents(t, &buf)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	first := events[0]["rid"]
	if first == nil || first == "" {
		t.Fatal("first event missing rid")
	}
	for i := 1; i < 3; i++ {
		if events[i]["rid"] != first {
			t.Errorf("event %d rid = %v, want %v", i, events[i]["rid"], first)
		}
	}
	if events[3]["rid"] == first {
		t.Errorf("independent event reused rid %v", first)
	}
}

func TestNewRID(t *testing.T) {
	t.Parallel()

	rid := NewRID("wa")
	if !strings.HasPrefix(rid, "wa-") {
		t.Errorf("rid %q missing prefix", rid)
	}
	if len(rid) != len("wa-")+12 {
		t.Errorf("rid %q has unexpected length %d", rid, len(rid))
	}

	if NewRID("wa") == rid {
		t.Error("two generated rids are identical")
	}

	bare := NewRID("")
	if strings.Contains(bare, "-") {
		t.Errorf("unprefixed rid %q contains separator", bare)
	}
}

func TestRIDFromMissing(t *testing.T) {
	t.Parallel()

	if got := RIDFrom(context.Background()); got != "" {
		t.Errorf("RIDFrom(empty ctx) = %q, want empty", got)
	}
}
