// Package supervisor implements the process-spawn half of the three-role
// supervision tree (spec.md §4.2): the progenitor re-executes itself as a
// session-detached watcher and exits; the watcher repeatedly spawns the
// worker (itself, re-executed with the worker role) and respawns it on
// abnormal exit.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/kinabalu-io/telemetryd/internal/logging"
	"github.com/kinabalu-io/telemetryd/internal/role"
)

// spawnSelf starts a fresh copy of the running binary with argv unchanged
// except for the role environment variable, returning the *exec.Cmd so the
// caller can choose to wait on it (watcher) or release it (progenitor).
func spawnSelf(childRole role.Role, detach bool) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervisor: resolve executable path: %w", err)
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), role.EnvVar+"="+childRole.String())
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if detach {
		// The progenitor's child must survive the progenitor's exit and its
		// chdir("/") must not break a later re-exec of a relative self path,
		// which is why self was resolved to an absolute path above.
		cmd.Dir = "/"
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := cmd.Start(); err != nil {
		return nil, diagnoseSpawnFailure(err)
	}
	return cmd, nil
}

// Spawn is the progenitor's one job: re-exec self as a session-detached
// watcher and return without waiting on it.
func Spawn(logger *slog.Logger, childRole role.Role) error {
	logger = logging.WithComponent(logger, logging.ComponentSupervisor)

	cmd, err := spawnSelf(childRole, true)
	if err != nil {
		return err
	}
	logger.Info("spawned child process", "role", childRole, "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// diagnoseSpawnFailure maps the low-level pipe-creation failure seen on
// kernels without the pipe2 syscall (EBADF surfacing from the fork/exec
// fallback path in os/exec) to the "OS not supported" diagnostic spec.md
// §4.2 and §9 call for, instead of surfacing a bare "bad file descriptor".
func diagnoseSpawnFailure(err error) error {
	var errnoErr syscall.Errno
	if errors.As(err, &errnoErr) && errnoErr == syscall.EBADF {
		return fmt.Errorf("supervisor: OS not supported: %w", err)
	}
	return fmt.Errorf("supervisor: spawn child: %w", err)
}
