// Package ledger tracks report charges by deterministic request id so
// retries and duplicate webhook deliveries never double-charge a user.
// Entries live inside the shared state document; all functions operate on
// the entry map in place and are meant to run inside a store update cycle.
package ledger

import (
	"sort"
	"time"
)

// Entry states.
const (
	StateReserved  = "reserved"
	StateCommitted = "committed"
	StateRefunded  = "refunded"
)

// Prune bounds. MaxEntries can be overridden per call site; the clamp
// keeps misconfiguration from either emptying or bloating the ledger.
const (
	DefaultMaxEntries = 20000
	minEntries        = 500
	maxEntries        = 200000
)

// Entry is one tracked request charge.
type Entry struct {
	RID       string            `json:"rid"`
	CreatedTS float64           `json:"created_ts"`
	UpdatedTS float64           `json:"updated_ts"`
	Meta      map[string]string `json:"meta"`
	Reserved  bool              `json:"reserved"`
	Committed bool              `json:"committed"`
	Refunded  bool              `json:"refunded"`
	State     string            `json:"state"`
}

// Decision reports the outcome of a ledger operation. Changed is true only
// when this call transitioned the entry; callers use it to decide whether
// to touch the user's balance.
type Decision struct {
	Changed bool
	State   string
	Entry   *Entry
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Reserve marks rid as reserved. Committed and refunded entries are
// terminal and never re-reserved; reserving an already reserved entry is
// a duplicate delivery. Both cases return Changed=false.
func Reserve(entries map[string]*Entry, rid string, meta map[string]string) Decision {
	ts := now()
	ent, ok := entries[rid]
	if !ok {
		ent = &Entry{
			RID:       rid,
			CreatedTS: ts,
			UpdatedTS: ts,
			Meta:      cloneMeta(meta),
			Reserved:  true,
			State:     StateReserved,
		}
		entries[rid] = ent
		return Decision{Changed: true, State: StateReserved, Entry: ent}
	}

	mergeMeta(ent, meta)
	ent.UpdatedTS = ts

	switch {
	case ent.Committed:
		ent.State = StateCommitted
		return Decision{Changed: false, State: StateCommitted, Entry: ent}
	case ent.Refunded:
		ent.State = StateRefunded
		return Decision{Changed: false, State: StateRefunded, Entry: ent}
	case ent.Reserved:
		ent.State = StateReserved
		return Decision{Changed: false, State: StateReserved, Entry: ent}
	}

	ent.Reserved = true
	ent.State = StateReserved
	return Decision{Changed: true, State: StateReserved, Entry: ent}
}

// Commit marks rid as committed. Committing twice is a no-op; an entry
// missing from the map is created so a commit never silently drops.
func Commit(entries map[string]*Entry, rid string, meta map[string]string) Decision {
	ts := now()
	ent, ok := entries[rid]
	if !ok {
		ent = &Entry{RID: rid, CreatedTS: ts, Meta: map[string]string{}}
		entries[rid] = ent
	}
	mergeMeta(ent, meta)
	ent.UpdatedTS = ts

	if ent.Committed {
		ent.State = StateCommitted
		return Decision{Changed: false, State: StateCommitted, Entry: ent}
	}

	ent.Reserved = true
	ent.Committed = true
	ent.Refunded = false
	ent.State = StateCommitted
	return Decision{Changed: true, State: StateCommitted, Entry: ent}
}

// Refund marks rid as refunded. A committed entry is never refunded, and
// refunding twice is a no-op.
func Refund(entries map[string]*Entry, rid string, meta map[string]string) Decision {
	ts := now()
	ent, ok := entries[rid]
	if !ok {
		ent = &Entry{RID: rid, CreatedTS: ts, Meta: map[string]string{}}
		entries[rid] = ent
	}
	mergeMeta(ent, meta)
	ent.UpdatedTS = ts

	if ent.Refunded {
		ent.State = StateRefunded
		return Decision{Changed: false, State: StateRefunded, Entry: ent}
	}
	if ent.Committed {
		ent.State = StateCommitted
		return Decision{Changed: false, State: StateCommitted, Entry: ent}
	}

	ent.Reserved = true
	ent.Committed = false
	ent.Refunded = true
	ent.State = StateRefunded
	return Decision{Changed: true, State: StateRefunded, Entry: ent}
}

// Prune drops the oldest entries (by update time, falling back to creation
// time) until at most max remain. A max outside the supported range is
// clamped. It returns the number of entries removed.
func Prune(entries map[string]*Entry, max int) int {
	if max < minEntries {
		max = minEntries
	}
	if max > maxEntries {
		max = maxEntries
	}
	excess := len(entries) - max
	if excess <= 0 {
		return 0
	}

	type aged struct {
		ts  float64
		rid string
	}
	items := make([]aged, 0, len(entries))
	for rid, ent := range entries {
		ts := 0.0
		if ent != nil {
			ts = ent.UpdatedTS
			if ts == 0 {
				ts = ent.CreatedTS
			}
		}
		items = append(items, aged{ts: ts, rid: rid})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ts != items[j].ts {
			return items[i].ts < items[j].ts
		}
		return items[i].rid < items[j].rid
	})

	for _, it := range items[:excess] {
		delete(entries, it.rid)
	}
	return excess
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func mergeMeta(ent *Entry, meta map[string]string) {
	if ent.Meta == nil {
		ent.Meta = map[string]string{}
	}
	for k, v := range meta {
		ent.Meta[k] = v
	}
}
