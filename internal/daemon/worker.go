// Package daemon wires the worker role together: PID-file acquisition, the
// listener, the application table and harvest scheduler, and the signal
// handling that drives an orderly shutdown (spec.md §4.2 "Worker", §5).
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/apptable"
	"github.com/kinabalu-io/telemetryd/internal/config"
	"github.com/kinabalu-io/telemetryd/internal/harvest"
	"github.com/kinabalu-io/telemetryd/internal/listener"
	"github.com/kinabalu-io/telemetryd/internal/logging"
	"github.com/kinabalu-io/telemetryd/internal/pidfile"
	"github.com/kinabalu-io/telemetryd/internal/sysmetrics"
)

// ShutdownGrace bounds how long the worker waits for in-flight connection
// reads to drain after the listener stops accepting (spec.md §5).
const ShutdownGrace = 5 * time.Second

// Worker owns every piece of live state the worker role runs: the pidfile
// lock (if any), the listener, the application table, and the harvest
// scheduler.
type Worker struct {
	logger *slog.Logger

	pid      *pidfile.Handle
	server   *listener.Server
	table    *apptable.Table
	schedule *harvest.Scheduler
}

// Run acquires the pidfile (if configured), starts the listener and harvest
// scheduler, and blocks until ctx is cancelled or a terminating signal
// arrives, then drains per spec.md §5. It returns the process exit code.
func Run(ctx context.Context, logger *slog.Logger, settings config.Settings, uploader harvest.Uploader, validator listener.LicenseValidator, signingKey []byte) int {
	logger = logging.WithComponent(logger, logging.ComponentWorker)

	w, err := newWorker(logger, settings, uploader, validator, signingKey)
	if err != nil {
		if errors.Is(err, pidfile.ErrLocked) {
			// spec.md §7: "Interlock-benign" — another daemon already holds
			// this pidfile path; exit 0 silently rather than treating this
			// as a startup failure.
			logger.Info("pidfile already locked, another daemon is live", "pidfile", settings.PidFile)
			return 0
		}
		logger.Error("worker initialization failed", "error", err)
		return 1
	}
	defer w.releasePidfile()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	network, addr := settings.BindAddr()
	serveErr := make(chan error, 1)
	go func() { serveErr <- w.server.Serve(network, addr) }()

	w.schedule.Start(sigCtx)

	start := sysmetrics.Take()
	logger.Info("worker started", append([]any{"addr", addr, "network", network}, start.LogAttrs()...)...)

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received, draining")
	case err := <-serveErr:
		if err != nil {
			logger.Error("listener stopped unexpectedly", "error", err)
		}
	}

	w.shutdown()
	logger.Info("worker stopped", sysmetrics.Take().LogAttrs()...)
	return 0
}

func newWorker(logger *slog.Logger, settings config.Settings, uploader harvest.Uploader, validator listener.LicenseValidator, signingKey []byte) (*Worker, error) {
	w := &Worker{logger: logger}

	if settings.PidFile != "" && !settings.NoPidFile {
		h, err := pidfile.Create(settings.PidFile)
		if err != nil {
			if errors.Is(err, pidfile.ErrLocked) {
				return nil, err
			}
			return nil, fmt.Errorf("daemon: acquire pidfile: %w", err)
		}
		if err := h.Write(); err != nil {
			_ = h.Remove()
			return nil, fmt.Errorf("daemon: write pidfile: %w", err)
		}
		w.pid = h
	}

	limits := apptable.Limits{
		AnalyticsEventsCapacity: settings.AnalyticsEventsCapacity,
		CustomEventsCapacity:    settings.CustomEventsCapacity,
		MetricNameCap:           settings.MetricNameCap,
		ErrorsCapacity:          settings.ErrorsCapacity,
		SlowSamplesCapacity:     settings.SlowSamplesCapacity,
	}
	w.table = apptable.New(limits, logger)

	schedule, err := harvest.NewScheduler(w.table, uploader, settings.HarvestCycle, settings.AppTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: create harvest scheduler: %w", err)
	}
	w.schedule = schedule

	authorizer := listener.NewAuthorizer(signingKey).
		WithHighSecurityPolicy(settings.RequireHighSecurity).
		WithRedirect(settings.CollectorRedirect)
	w.server = listener.New(w.table, authorizer, validator, logger)

	return w, nil
}

// shutdown implements spec.md §5's cancellation sequence: stop accepting,
// drain in-flight reads for a bounded grace period, force a final harvest
// per entry, then return.
func (w *Worker) shutdown() {
	_ = w.server.Close()

	drained := make(chan struct{})
	go func() {
		w.server.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(ShutdownGrace):
		w.logger.Warn("shutdown grace period elapsed with connections still open")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	w.schedule.DrainAll(ctx)
	_ = w.schedule.Stop()
}

func (w *Worker) releasePidfile() {
	if w.pid == nil {
		return
	}
	if err := w.pid.Remove(); err != nil {
		w.logger.Warn("failed to remove pidfile", "error", err)
	}
}
