package apptable

import (
	"sync"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/reservoir"
)

// Conn is the narrow view the application table needs of a listener
// connection: just enough to close it on eviction. The listener owns the
// concrete connection type; the entry never owns a connection, it only
// holds a weak reference via this interface (spec.md §3, §9).
type Conn interface {
	Close() error
}

// Reservoirs bundles the four reservoir kinds an entry carries. It is an
// opaque bundle from the application table's point of view — the table only
// ever swaps the whole bundle during a harvest tick.
type Reservoirs struct {
	AnalyticsEvents *reservoir.EventReservoir
	CustomEvents    *reservoir.EventReservoir
	Metrics         *reservoir.MetricAggregator
	Errors          *reservoir.ErrorReservoir
	SlowSamples     *reservoir.SlowSampleReservoir
}

// Limits configures reservoir capacities for newly created entries.
type Limits struct {
	AnalyticsEventsCapacity int
	CustomEventsCapacity    int
	MetricNameCap           int
	ErrorsCapacity          int
	SlowSamplesCapacity     int
}

func newReservoirs(l Limits) Reservoirs {
	return Reservoirs{
		AnalyticsEvents: reservoir.NewEventReservoir(l.AnalyticsEventsCapacity, nil),
		CustomEvents:    reservoir.NewEventReservoir(l.CustomEventsCapacity, nil),
		Metrics:         reservoir.NewMetricAggregator(l.MetricNameCap),
		Errors:          reservoir.NewErrorReservoir(l.ErrorsCapacity),
		SlowSamples:     reservoir.NewSlowSampleReservoir(l.SlowSamplesCapacity),
	}
}

// Entry is the per-identity state the daemon accumulates observations into
// between harvests (spec.md §3). It is created by the table on first
// successful connect-message, mutated by the listener (on ingest) and by its
// own harvest goroutine (on swap), and destroyed when idle for longer than
// the configured app_timeout or on daemon shutdown.
type Entry struct {
	Identity Identity

	mu           sync.Mutex
	runToken     string // opaque application-run token, minted by the listener's Authorizer on connect-accept
	reservoirs   Reservoirs
	lastHarvest  time.Time
	lastActivity time.Time
	connected    bool

	conns map[Conn]struct{}

	// diagnostics
	observationsTotal uint64
}

// NewEntry creates an entry with fresh empty reservoirs of the configured
// limits, marked connected and freshly active. It carries no run token until
// the listener assigns one via SetToken as part of the connect handshake.
func NewEntry(id Identity, limits Limits, now time.Time) *Entry {
	return &Entry{
		Identity:     id,
		reservoirs:   newReservoirs(limits),
		lastActivity: now,
		connected:    true,
		conns:        make(map[Conn]struct{}),
	}
}

// Token returns the run token assigned on the most recent successful connect
// handshake.
func (e *Entry) Token() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runToken
}

// SetToken assigns a freshly minted run token. The listener calls this once
// per accepted handshake, including reconnects, so the token always reflects
// the current session.
func (e *Entry) SetToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runToken = token
}

// Touch records observation activity at t and counts it.
func (e *Entry) Touch(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivity = t
	e.observationsTotal++
}

// IdleSince reports whether the entry has been idle (no observation) since
// before the cutoff time.
func (e *Entry) IdleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity.Before(cutoff)
}

// AddConn registers a connection as belonging to this entry. Presence in the
// set is not ownership.
func (e *Entry) AddConn(c Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[c] = struct{}{}
}

// RemoveConn removes a closed connection from the entry's set. The entry
// outlives the connection.
func (e *Entry) RemoveConn(c Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c)
}

// CloseConns closes every connection currently in the set, used when the
// entry is evicted.
func (e *Entry) CloseConns() {
	e.mu.Lock()
	conns := make([]Conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.conns = make(map[Conn]struct{})
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Reservoirs returns the live reservoir bundle for observation merges. The
// caller must not retain it across a Swap.
func (e *Entry) Reservoirs() Reservoirs {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reservoirs
}

// Connected reports whether the entry is still connected. It is false once
// an upload-permanent rejection has disconnected the entry and it awaits a
// reconnect (spec.md §4.3).
func (e *Entry) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Disconnect marks the entry as disconnected, forcing the next incoming
// observation to re-initiate the connect handshake.
func (e *Entry) Disconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
}

// SwapReservoirs atomically replaces the entry's reservoir bundle with a
// fresh empty one of the same limits and returns the retired bundle, now
// owned exclusively by the caller's harvest tick. This is the one
// cross-thread synchronization point between observation merges and harvest
// (spec.md §4.3).
func (e *Entry) SwapReservoirs(now time.Time) Reservoirs {
	e.mu.Lock()
	defer e.mu.Unlock()
	retired := e.reservoirs
	retired.AnalyticsEvents = retired.AnalyticsEvents.Swap().(*reservoir.EventReservoir)
	retired.CustomEvents = retired.CustomEvents.Swap().(*reservoir.EventReservoir)
	retired.Metrics = retired.Metrics.Swap().(*reservoir.MetricAggregator)
	retired.Errors = retired.Errors.Swap().(*reservoir.ErrorReservoir)
	retired.SlowSamples = retired.SlowSamples.Swap().(*reservoir.SlowSampleReservoir)
	e.lastHarvest = now
	return retired
}
