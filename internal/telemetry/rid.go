package telemetry

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ridKeyType struct{}

var ridKey ridKeyType

// NewRID generates a short correlation id with the given prefix, e.g.
// NewRID("wa") -> "wa-3f2a9c1b04de". One rid is minted per inbound event
// and shared by every timing record emitted while handling it.
func NewRID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// WithRID returns a context carrying the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ridKey, rid)
}

// RIDFrom extracts the correlation id from ctx, or "" if none is set.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(ridKey).(string)
	return rid
}
