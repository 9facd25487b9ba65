package harvest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/apptable"
	"github.com/kinabalu-io/telemetryd/internal/reservoir"
)

type recordingUploader struct {
	mu      sync.Mutex
	uploads []Kind
	outcome Outcome
	err     error
}

func (u *recordingUploader) Upload(_ context.Context, _ string, kind Kind, _ reservoir.Payload) (Outcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, kind)
	return u.outcome, u.err
}

func testLimits() apptable.Limits {
	return apptable.Limits{
		AnalyticsEventsCapacity: 5,
		CustomEventsCapacity:    5,
		MetricNameCap:           5,
		ErrorsCapacity:          5,
		SlowSamplesCapacity:     5,
	}
}

// Scenario 6 from spec.md §8: stub ingestion endpoint returns failure;
// observe metrics, force harvest; second harvest immediately after has no
// metrics, because the prior batch is discarded, not retried.
func TestTickDiscardsPayloadOnAnyOutcome(t *testing.T) {
	entry := apptable.NewEntry(apptable.Identity{LicenseKey: "k", AppNames: []string{"app"}}, testLimits(), time.Now())
	entry.Reservoirs().Metrics.Observe("m1", 1)
	entry.Reservoirs().Metrics.Observe("m2", 2)

	up := &recordingUploader{outcome: RejectedRetry}
	Tick(context.Background(), entry, up, nil, time.Now())

	if len(up.uploads) != 1 || up.uploads[0] != KindMetrics {
		t.Fatalf("expected exactly one metrics upload, got %v", up.uploads)
	}

	// Second harvest immediately after: no metrics were re-observed, so no
	// upload call should happen at all.
	up.uploads = nil
	Tick(context.Background(), entry, up, nil, time.Now())
	if len(up.uploads) != 0 {
		t.Fatalf("expected no uploads on second harvest, got %v", up.uploads)
	}
}

func TestTickRejectedPermanentDisconnectsEntry(t *testing.T) {
	entry := apptable.NewEntry(apptable.Identity{LicenseKey: "k", AppNames: []string{"app"}}, testLimits(), time.Now())
	entry.Reservoirs().Errors.Observe(reservoir.ErrorSample{Message: "boom"})

	up := &recordingUploader{outcome: RejectedPermanent}
	Tick(context.Background(), entry, up, nil, time.Now())

	if entry.Connected() {
		t.Fatal("expected entry to be disconnected after a rejected-permanent outcome")
	}
}

func TestTickAcceptedLeavesEntryConnected(t *testing.T) {
	entry := apptable.NewEntry(apptable.Identity{LicenseKey: "k", AppNames: []string{"app"}}, testLimits(), time.Now())
	entry.Reservoirs().Errors.Observe(reservoir.ErrorSample{Message: "boom"})

	up := &recordingUploader{outcome: Accepted}
	Tick(context.Background(), entry, up, nil, time.Now())

	if !entry.Connected() {
		t.Fatal("expected entry to remain connected after an accepted outcome")
	}
}

func TestTickUploadOrderIsFixed(t *testing.T) {
	entry := apptable.NewEntry(apptable.Identity{LicenseKey: "k", AppNames: []string{"app"}}, testLimits(), time.Now())
	entry.Reservoirs().SlowSamples.Observe(reservoir.SlowSample{Identifier: "1", Count: 1, Max: 10, Min: 10, Total: 10})
	entry.Reservoirs().Errors.Observe(reservoir.ErrorSample{Message: "x"})
	entry.Reservoirs().Metrics.Observe("m", 1)
	entry.Reservoirs().AnalyticsEvents.Observe(reservoir.Event{"a": 1})
	entry.Reservoirs().CustomEvents.Observe(reservoir.Event{"b": 1})

	up := &recordingUploader{outcome: Accepted}
	Tick(context.Background(), entry, up, nil, time.Now())

	want := []Kind{KindAnalyticsEvents, KindCustomEvents, KindMetrics, KindErrors, KindSlowSamples}
	if len(up.uploads) != len(want) {
		t.Fatalf("uploads = %v, want %v", up.uploads, want)
	}
	for i, k := range want {
		if up.uploads[i] != k {
			t.Fatalf("uploads[%d] = %v, want %v", i, up.uploads[i], k)
		}
	}
}
