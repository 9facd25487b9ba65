package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/exitstatus"
	"github.com/kinabalu-io/telemetryd/internal/logging"
	"github.com/kinabalu-io/telemetryd/internal/role"
)

// RespawnDelay is the fixed pause the watcher takes before respawning a
// worker that exited abnormally (spec.md §9 open-question decision: a
// plain fixed delay, not exponential backoff — "the watcher is
// intentionally simple", spec.md §9 edge-case table).
const RespawnDelay = time.Second

// Watch implements the watcher loop of spec.md §4.2: spawn a worker, wait,
// observe its exit status, respawn after RespawnDelay on abnormal exit, and
// on graceful exit return the worker's own code. A terminating signal
// received by the watcher is forwarded to the current worker and the
// watcher exits once that worker is reaped.
func Watch(ctx context.Context, logger *slog.Logger) int {
	logger = logging.WithComponent(logger, logging.ComponentSupervisor)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		cmd, err := spawnSelf(role.Worker, false)
		if err != nil {
			logger.Error("failed to spawn worker", "error", err)
			exitstatus.Set(1)
			return exitstatus.Get()
		}
		logger.Info("worker started", "pid", cmd.Process.Pid)

		code, signalled := waitForWorker(sigCtx, logger, cmd)
		if signalled {
			exitstatus.Set(code)
			return exitstatus.Get()
		}
		if code == 0 {
			exitstatus.Set(code)
			return exitstatus.Get()
		}

		logger.Error("worker exited abnormally, respawning", "exit_code", code, "delay", RespawnDelay)
		select {
		case <-time.After(RespawnDelay):
		case <-sigCtx.Done():
			exitstatus.Set(code)
			return exitstatus.Get()
		}
	}
}

// waitForWorker waits for cmd to exit, forwarding a terminating signal
// observed on ctx to the worker's process group. signalled reports whether
// shutdown was signal-driven, so the caller knows not to respawn.
func waitForWorker(ctx context.Context, logger *slog.Logger, cmd *exec.Cmd) (code int, signalled bool) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return exitCodeOf(err), false
	case <-ctx.Done():
		logger.Info("forwarding termination signal to worker", "pid", cmd.Process.Pid)
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		err := <-done
		return exitCodeOf(err), true
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
