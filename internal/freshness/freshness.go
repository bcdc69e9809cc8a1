package freshness

import (
	"sync"
	"time"
)

// Policy decides whether a cached record is due for a resync.
type Policy struct {
	TTL time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

// NeedsSync reports whether a record last synced at last must be refreshed.
// A nil last (never synced) or force always refreshes. A timestamp in the
// future (clock skew) is treated as age zero, never as stale, so skew cannot
// trigger a sync storm.
func (p Policy) NeedsSync(last *time.Time, force bool) bool {
	if force {
		return true
	}
	if last == nil || last.IsZero() {
		return true
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	age := now().Sub(*last)
	if age < 0 {
		age = 0
	}
	return age > p.TTL
}

// Probe inspects a cached payload and reports whether a field the current
// schema expects is structurally absent, forcing a resync even while fresh.
// Used to backfill records written before a payload field existed.
type Probe func(payload map[string]any) bool

// Rules holds backfill probes registered per resource kind.
type Rules struct {
	mu     sync.RWMutex
	probes map[string][]Probe
}

func NewRules() *Rules {
	return &Rules{probes: map[string][]Probe{}}
}

func (r *Rules) Register(kind string, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[kind] = append(r.probes[kind], p)
}

// NeedsBackfill reports whether any probe for kind fires on payload.
func (r *Rules) NeedsBackfill(kind string, payload map[string]any) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.probes[kind] {
		if p(payload) {
			return true
		}
	}
	return false
}

// MissingKeys builds a Probe firing when any of keys is absent from the payload.
func MissingKeys(keys ...string) Probe {
	return func(payload map[string]any) bool {
		for _, k := range keys {
			if _, ok := payload[k]; !ok {
				return true
			}
		}
		return false
	}
}
