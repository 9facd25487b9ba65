package reservoir

import (
	"encoding/json"
	"math/rand/v2"
	"sync"
)

// Event is a single analytics or custom event. The daemon treats both kinds
// identically (spec.md §3); the caller picks the capacity, and the reduced
// payload carries no kind label.
type Event map[string]any

// EventReservoir implements uniform reservoir sampling (Vitter's Algorithm R)
// over capacity N, shared by the analytics-events and custom-events kinds.
// seen counts every observation including ones that are ultimately discarded,
// so each of the seen events has probability N/seen of being retained.
type EventReservoir struct {
	mu       sync.Mutex
	capacity int
	items    []Event
	seen     int64
	rng      *rand.Rand
}

// NewEventReservoir creates an empty reservoir of the given capacity. rng may
// be nil, in which case a process-global source is used; tests that need
// determinism should pass a seeded *rand.Rand.
func NewEventReservoir(capacity int, rng *rand.Rand) *EventReservoir {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &EventReservoir{capacity: capacity, rng: rng}
}

// Observe applies Algorithm R: append while under capacity, otherwise draw a
// uniform index in [0, seen) and replace that slot only if it lands inside
// the reservoir.
func (r *EventReservoir) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	if len(r.items) < r.capacity {
		r.items = append(r.items, e)
		return
	}
	if r.capacity == 0 {
		return
	}
	idx := r.rng.Int64N(r.seen)
	if idx < int64(r.capacity) {
		r.items[idx] = e
	}
}

// Merge re-runs Algorithm R pairwise against other's items so the combined
// retained sample remains uniform over the union of both reservoirs'
// observation histories.
func (r *EventReservoir) Merge(other *EventReservoir) {
	other.mu.Lock()
	items := append([]Event(nil), other.items...)
	other.mu.Unlock()
	for _, e := range items {
		r.Observe(e)
	}
}

// Swap returns the retired reservoir and leaves an empty one of the same
// capacity and RNG in place.
func (r *EventReservoir) Swap() Harvestable {
	r.mu.Lock()
	defer r.mu.Unlock()
	retired := &EventReservoir{capacity: r.capacity, items: r.items, seen: r.seen, rng: r.rng}
	r.items = nil
	r.seen = 0
	return retired
}

// Reduce serializes the retained events. Empty reservoirs reduce to nil.
func (r *EventReservoir) Reduce() Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil
	}
	b, err := json.Marshal(r.items)
	if err != nil {
		return nil
	}
	return Payload(b)
}

// Len reports the number of retained events.
func (r *EventReservoir) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
