package whatsapp

import (
	"container/list"
	"sync"
	"time"
)

// DedupCache remembers recently handled sender/message-id pairs so webhook
// re-deliveries are dropped. Entries expire after the TTL; the cache is
// bounded, evicting the oldest entries first.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	order   *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

type dedupEntry struct {
	key  string
	seen time.Time
}

// NewDedupCache builds a cache holding at most max entries for ttl each.
func NewDedupCache(ttl time.Duration, max int) *DedupCache {
	if max < 1 {
		max = 1
	}
	return &DedupCache{
		ttl:     ttl,
		max:     max,
		order:   list.New(),
		entries: map[string]*list.Element{},
		now:     time.Now,
	}
}

// Seen reports whether this sender/message-id pair was already handled
// within the TTL, recording it when it was not. Events without a sender
// or message id are never deduplicated.
func (c *DedupCache) Seen(sender, msgID string) bool {
	if sender == "" || msgID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expire(now)

	key := sender + ":" + msgID
	if el, ok := c.entries[key]; ok {
		el.Value.(*dedupEntry).seen = now
		c.order.MoveToBack(el)
		return true
	}

	el := c.order.PushBack(&dedupEntry{key: key, seen: now})
	c.entries[key] = el
	for len(c.entries) > c.max {
		c.evictOldest()
	}
	return false
}

// Len returns the number of live entries, for metrics.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *DedupCache) expire(now time.Time) {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		ent := front.Value.(*dedupEntry)
		if now.Sub(ent.seen) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.entries, ent.key)
	}
}

func (c *DedupCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	ent := front.Value.(*dedupEntry)
	c.order.Remove(front)
	delete(c.entries, ent.key)
}
