package harvest

import (
	"context"
	"log/slog"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/apptable"
	"github.com/kinabalu-io/telemetryd/internal/logging"
	"github.com/kinabalu-io/telemetryd/internal/reservoir"
)

// reduced pairs a kind with its reduced payload, preserving upload order.
type reduced struct {
	kind    Kind
	payload reservoir.Payload
}

// Tick performs one harvest cycle for a single entry: swap, reduce, upload
// sequentially in a fixed order, fold failure (spec.md §4.3 steps 1-4).
func Tick(ctx context.Context, entry *apptable.Entry, uploader Uploader, logger *slog.Logger, now time.Time) {
	logger = logging.Default(logger)

	// Step 1: swap. The retired reservoirs are now owned exclusively by this tick.
	retired := entry.SwapReservoirs(now)

	// Step 2: reduce. Each retired reservoir is converted to its upload
	// payload independently; empty reservoirs produce no payload.
	payloads := []reduced{
		{KindAnalyticsEvents, retired.AnalyticsEvents.Reduce()},
		{KindCustomEvents, retired.CustomEvents.Reduce()},
		{KindMetrics, retired.Metrics.Reduce()},
		{KindErrors, retired.Errors.Reduce()},
		{KindSlowSamples, retired.SlowSamples.Reduce()},
	}

	// Step 3: upload, sequentially per entry, in uploadOrder, so a later
	// failure never invalidates an earlier success.
	for _, p := range payloads {
		if p.payload == nil {
			continue
		}
		outcome, err := uploader.Upload(ctx, entry.Token(), p.kind, p.payload)
		if err != nil {
			logger.Warn("harvest upload error", "kind", p.kind, "error", err)
		}
		// Step 4: fold failure. All three outcomes discard the payload; only
		// rejected-permanent additionally disconnects the entry.
		switch outcome {
		case Accepted:
			logger.Debug("harvest upload accepted", "kind", p.kind, "bytes", len(p.payload))
		case RejectedRetry:
			logger.Info("harvest upload discarded (transient rejection)", "kind", p.kind)
		case RejectedPermanent:
			logger.Warn("harvest upload discarded (permanent rejection), disconnecting entry", "kind", p.kind)
			entry.Disconnect()
		}
	}
}
