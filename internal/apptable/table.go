package apptable

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/logging"
)

// Table maps application identity to its Entry. One lock guards insertion,
// lookup and eviction; entry-local mutation takes only the entry's own lock
// (spec.md §4.6).
type Table struct {
	limits Limits
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates an empty table that creates new entries with the given
// reservoir limits.
func New(limits Limits, logger *slog.Logger) *Table {
	return &Table{
		limits:  limits,
		logger:  logging.WithComponent(logger, logging.ComponentAppTable),
		entries: make(map[string]*Entry),
	}
}

// GetOrCreate returns the entry for id, creating one if this is the first
// contact, or if the previous entry for this identity was marked
// disconnected (spec.md §4.3: a rejected-permanent upload forces the next
// observation to re-initiate the connect handshake).
func (t *Table) GetOrCreate(id Identity, now time.Time) (*Entry, bool) {
	k := id.Key()

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[k]; ok && e.Connected() {
		return e, false
	}

	e := NewEntry(id, t.limits, now)
	t.entries[k] = e
	t.logger.Info("application entry created", "license_key_set", id.LicenseKey != "", "app_names", id.AppNames)
	return e, true
}

// Lookup returns the entry for id without creating one.
func (t *Table) Lookup(id Identity) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id.Key()]
	return e, ok
}

// Entries returns a snapshot slice of all current entries, for the harvest
// scheduler to iterate. Harvests of different applications proceed
// concurrently and in any order (spec.md §5), so the caller fans out over
// this slice itself.
func (t *Table) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// EvictIdle removes and closes every entry whose last observation is older
// than timeout as of now, returning the evicted entries so the caller can
// run their final harvest before discarding them (spec.md §4.3, §4.6).
func (t *Table) EvictIdle(now time.Time, timeout time.Duration) []*Entry {
	cutoff := now.Add(-timeout)

	t.mu.Lock()
	var evicted []*Entry
	for k, e := range t.entries {
		if e.IdleSince(cutoff) {
			delete(t.entries, k)
			evicted = append(evicted, e)
		}
	}
	t.mu.Unlock()

	for _, e := range evicted {
		t.logger.Info("application entry evicted for inactivity", "app_names", e.Identity.AppNames)
		e.CloseConns()
	}
	return evicted
}

// Len reports the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
