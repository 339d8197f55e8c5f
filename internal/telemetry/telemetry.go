// Package telemetry provides opt-in timing instrumentation for slow paths
// such as state persistence, report fetching, and outbound gateway calls.
// A Recorder is built once at startup from configuration and passed
// explicitly to every component that emits timing events.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Operation names emitted by the Recorder. Components reference these
// constants instead of inline strings so dashboards stay stable.
const (
	EventDBLoad   = "db.load"
	EventDBSave   = "db.save"
	EventDBBackup = "db.backup"

	EventReportFetch = "report.fetch"

	EventWAHandle       = "wa.handle"
	EventWASendText     = "wa.ultramsg.send_text"
	EventWASendImage    = "wa.ultramsg.send_image"
	EventWASendDocument = "wa.ultramsg.send_document"

	EventTGHandle = "tg.handle"
)

// maxFieldLen is the longest string or byte field emitted verbatim;
// anything longer is replaced by a <type:len> placeholder.
const maxFieldLen = 256

// channelName tags every timing record so they can be filtered out of the
// regular application log stream.
const channelName = "dejavu.timing"

// Recorder emits timing events when enabled. A nil or disabled Recorder is
// safe to use from any goroutine; every method degrades to a cheap check.
type Recorder struct {
	enabled bool
	log     *slog.Logger
}

// NewRecorder builds a Recorder. When enabled is false the returned
// Recorder never emits anything.
func NewRecorder(enabled bool, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		enabled: enabled,
		log:     log.With("logger", channelName),
	}
}

// Enabled reports whether timing events are being emitted.
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}

// Record emits a single timing event for op with the given elapsed time.
// Attrs are alternating key/value pairs; string and byte values are
// truncated before emission. The correlation id is taken from ctx.
func (r *Recorder) Record(ctx context.Context, op string, elapsed time.Duration, attrs ...any) {
	if !r.Enabled() {
		return
	}

	out := make([]any, 0, len(attrs)+4)
	out = append(out, "op", op, "duration_ms", elapsed.Milliseconds())
	if rid := RIDFrom(ctx); rid != "" {
		out = append(out, "rid", rid)
	}
	out = append(out, sanitizeAttrs(attrs)...)

	r.log.InfoContext(ctx, "timing", out...)
}

// Timed starts a timer for op and returns a function that emits the event
// when called. Attrs passed to the returned function are appended to the
// event.
//
//	done := rec.Timed(ctx, telemetry.EventReportFetch)
//	defer done("vin", vin)
func (r *Recorder) Timed(ctx context.Context, op string) func(attrs ...any) {
	if !r.Enabled() {
		return func(...any) {}
	}
	start := time.Now()
	return func(attrs ...any) {
		r.Record(ctx, op, time.Since(start), attrs...)
	}
}

// sanitizeAttrs bounds the size of string and byte values in alternating
// key/value pairs. Values stay untouched below the limit; oversized ones
// become "<string:N>" or "<bytes:N>" so payloads never leak into logs.
func sanitizeAttrs(attrs []any) []any {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]any, len(attrs))
	copy(out, attrs)
	// Values sit at odd positions; a trailing dangling key is left alone.
	for i := 1; i < len(out); i += 2 {
		out[i] = sanitizeValue(out[i])
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) > maxFieldLen {
			return fmt.Sprintf("<string:%d>", len(val))
		}
	case []byte:
		if len(val) > maxFieldLen {
			return fmt.Sprintf("<bytes:%d>", len(val))
		}
		return string(val)
	}
	return v
}
