// Package reservoir implements the bounded in-memory samplers that back each
// application entry's harvest state (spec.md §3, §4.4). All four kinds —
// events, metrics, errors, slow-samples — satisfy Harvestable (Swap, Reduce,
// Len) and each has its own typed Observe. The application entry holds them
// as their concrete types, not behind Harvestable.
//
// Every reservoir enforces size ≤ capacity at all times, and Swap returns
// the current contents while leaving an empty reservoir of the same capacity
// in place, atomically from the observer's perspective. None of the types in
// this package ever block on I/O; Reduce only serializes what Swap already
// retired.
package reservoir

// Payload is the serialized form a reservoir reduces to for upload. It
// carries no application identity — per spec.md §4.4 that travels in the
// request URL, not the body.
type Payload []byte

// Harvestable is the capability set every reservoir kind satisfies, used by
// the harvest scheduler so it can swap and reduce any reservoir without
// knowing its concrete item type. Each concrete reservoir additionally
// exposes its own typed Observe method, called directly by the listener
// dispatch rather than through this interface.
type Harvestable interface {
	// Swap atomically replaces the reservoir's contents with an empty
	// reservoir of the same capacity and returns the retired contents, now
	// owned exclusively by the caller.
	Swap() Harvestable
	// Reduce converts the reservoir's contents into an upload payload. An
	// empty reservoir reduces to a nil Payload.
	Reduce() Payload
	// Len reports the number of retained items.
	Len() int
}
