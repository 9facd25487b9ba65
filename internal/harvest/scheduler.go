package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kinabalu-io/telemetryd/internal/apptable"
	"github.com/kinabalu-io/telemetryd/internal/logging"
)

// Scheduler drives the per-application harvest cycle on a gocron scheduler,
// and periodically sweeps the application table for idle eviction (spec.md
// §4.3, §4.6). Cross-application harvests proceed concurrently; gocron's
// per-job goroutines give that for free, since each application owns its own
// job.
type Scheduler struct {
	table    *apptable.Table
	uploader Uploader
	logger   *slog.Logger
	cycle    time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cron  gocron.Scheduler
	jobs  map[string]gocron.Job // identity key -> job
	known map[string]*apptable.Entry
}

// NewScheduler creates a Scheduler. cycle is the harvest period (typically
// one minute); timeout is app_timeout, the inactivity window after which an
// entry's final harvest runs and it is evicted.
func NewScheduler(table *apptable.Table, uploader Uploader, cycle, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("harvest: create scheduler: %w", err)
	}
	return &Scheduler{
		table:    table,
		uploader: uploader,
		logger:   logging.WithComponent(logger, logging.ComponentHarvest),
		cycle:    cycle,
		timeout:  timeout,
		now:      time.Now,
		cron:     cron,
		jobs:     make(map[string]gocron.Job),
		known:    make(map[string]*apptable.Entry),
	}, nil
}

// Start begins the harvest loop: a recurring sweep that registers a harvest
// job for each newly seen entry and runs idle eviction (with a final
// harvest) for entries past app_timeout.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go s.sweepLoop(ctx)
}

// Stop cancels all scheduled jobs. It does not itself run a final harvest;
// callers that need a drain-time final harvest should call DrainAll first.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep registers jobs for new entries and evicts idle ones, running each
// evicted entry's final harvest first.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()

	for _, e := range s.table.Entries() {
		s.ensureJob(ctx, e)
	}

	for _, e := range s.table.EvictIdle(now, s.timeout) {
		s.unregister(e)
		Tick(ctx, e, s.uploader, s.logger, s.now())
	}
}

func (s *Scheduler) ensureJob(ctx context.Context, e *apptable.Entry) {
	key := e.Identity.Key()

	s.mu.Lock()
	if _, ok := s.jobs[key]; ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	job, err := s.cron.NewJob(
		gocron.DurationJob(s.cycle),
		gocron.NewTask(func() { Tick(ctx, e, s.uploader, s.logger, s.now()) }),
	)
	if err != nil {
		s.logger.Error("failed to register harvest job", "error", err, "app_names", e.Identity.AppNames)
		return
	}

	s.mu.Lock()
	s.jobs[key] = job
	s.known[key] = e
	s.mu.Unlock()
}

func (s *Scheduler) unregister(e *apptable.Entry) {
	key := e.Identity.Key()

	s.mu.Lock()
	job, ok := s.jobs[key]
	delete(s.jobs, key)
	delete(s.known, key)
	s.mu.Unlock()

	if ok {
		_ = s.cron.RemoveJob(job.ID())
	}
}

// DrainAll forces one final harvest per currently tracked entry, used on
// orderly shutdown (spec.md §5: "forces one final harvest per entry, then
// exits").
func (s *Scheduler) DrainAll(ctx context.Context) {
	for _, e := range s.table.Entries() {
		Tick(ctx, e, s.uploader, s.logger, s.now())
	}
}
