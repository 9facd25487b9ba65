// Package harvest implements the per-application periodic reduction and
// upload cycle (spec.md §4.3). Each application entry is driven by its own
// gocron job; cross-application harvests run concurrently, while within one
// application the harvest is serialised against observation merges by the
// entry's own reservoir-swap operation — the only cross-thread
// synchronization point (spec.md §4.3, §5).
package harvest

import (
	"context"

	"github.com/kinabalu-io/telemetryd/internal/reservoir"
)

// Outcome is the result of submitting one payload to the remote ingestion
// service. All three outcomes discard the reduced payload — there is no
// retry buffer (spec.md §4.3, §7).
type Outcome int

const (
	// Accepted means the server took the payload.
	Accepted Outcome = iota
	// RejectedPermanent means the data was malformed or the server rejected
	// the identity; the entry is marked disconnected and must reconnect.
	RejectedPermanent
	// RejectedRetry means the server was temporarily unavailable; the entry
	// is left connected and the next harvest proceeds normally.
	RejectedRetry
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedPermanent:
		return "rejected-permanent"
	case RejectedRetry:
		return "rejected-retry"
	default:
		return "unknown"
	}
}

// Kind identifies which reservoir a payload was reduced from, used only for
// logging and upload-request routing (e.g. URL suffix); it never travels
// inside the payload itself.
type Kind string

const (
	KindAnalyticsEvents Kind = "analytic_event_data"
	KindCustomEvents    Kind = "custom_event_data"
	KindMetrics         Kind = "metric_data"
	KindErrors          Kind = "error_data"
	KindSlowSamples     Kind = "sql_trace_data"
)

// uploadOrder is the fixed sequence payloads are submitted in for one
// application so that a later payload's failure never retroactively
// invalidates an earlier payload's success (spec.md §4.3 step 3).
var uploadOrder = []Kind{KindAnalyticsEvents, KindCustomEvents, KindMetrics, KindErrors, KindSlowSamples}

// Uploader submits one reduced payload to the remote ingestion service. The
// concrete wire encoding and HTTPS transport are out of scope (spec.md §1);
// callers supply an implementation (e.g. an HTTPS client) satisfying this
// interface.
type Uploader interface {
	Upload(ctx context.Context, runToken string, kind Kind, payload reservoir.Payload) (Outcome, error)
}
