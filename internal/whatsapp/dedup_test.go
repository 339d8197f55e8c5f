package whatsapp

import (
	"fmt"
	"testing"
	"time"
)

func TestDedupCacheSeen(t *testing.T) {
	t.Parallel()

	c := NewDedupCache(10*time.Minute, 100)

	if c.Seen("155", "msg-1") {
		t.Error("first delivery reported as seen")
	}
	if !c.Seen("155", "msg-1") {
		t.Error("second delivery not detected")
	}
	if c.Seen("155", "msg-2") {
		t.Error("different message id reported as seen")
	}
	if c.Seen("166", "msg-1") {
		t.Error("different sender reported as seen")
	}
}

func TestDedupCacheIgnoresMissingIDs(t *testing.T) {
	t.Parallel()

	c := NewDedupCache(time.Minute, 10)
	if c.Seen("", "msg-1") || c.Seen("", "msg-1") {
		t.Error("empty sender was deduplicated")
	}
	if c.Seen("155", "") || c.Seen("155", "") {
		t.Error("empty message id was deduplicated")
	}
}

func TestDedupCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	c := NewDedupCache(time.Minute, 100)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Seen("155", "msg-1")

	// Within the TTL the entry holds.
	current = current.Add(30 * time.Second)
	if !c.Seen("155", "msg-1") {
		t.Error("entry expired before TTL")
	}

	// Seen refreshes the timestamp, so expiry counts from the last touch.
	current = current.Add(61 * time.Second)
	if c.Seen("155", "msg-1") {
		t.Error("entry survived past TTL")
	}
}

func TestDedupCacheBound(t *testing.T) {
	t.Parallel()

	c := NewDedupCache(time.Hour, 10)
	for i := 0; i < 50; i++ {
		c.Seen("155", fmt.Sprintf("msg-%d", i))
	}
	if got := c.Len(); got > 10 {
		t.Errorf("cache grew to %d entries, max 10", got)
	}

	// The newest entry survives, the oldest was evicted.
	if !c.Seen("155", "msg-49") {
		t.Error("newest entry evicted")
	}
	if c.Seen("155", "msg-0") {
		t.Error("oldest entry still present")
	}
}
