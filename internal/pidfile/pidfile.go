// Package pidfile implements the exclusive advisory lock plus pid-write
// interlock described in spec.md §4.1. It guarantees at most one live daemon
// per configured path: a second create on the same path fails with
// ErrLocked, which callers must treat as "another daemon is live" rather than
// as a startup error.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Create when another process already holds the
// exclusive lock on the given path.
var ErrLocked = errors.New("pidfile: already locked by another process")

// Handle is a held pidfile lock. The zero value is not usable; obtain one
// from Create.
type Handle struct {
	path string
	file *os.File
}

// Create opens or creates the file at path and acquires a non-blocking
// exclusive advisory lock on it. If the lock is already held, it returns
// ErrLocked. The handle is only meaningful for the watcher and worker roles;
// callers must never construct one for the progenitor.
func Create(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pidfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("pidfile: lock %s: %w", path, err)
	}

	return &Handle{path: path, file: f}, nil
}

// Write stores the current process id as a decimal string, truncating any
// prior contents. Only the process holding the lock ever writes its pid.
func (h *Handle) Write() error {
	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("pidfile: truncate %s: %w", h.path, err)
	}
	if _, err := h.file.Seek(0, 0); err != nil {
		return fmt.Errorf("pidfile: seek %s: %w", h.path, err)
	}
	if _, err := h.file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return fmt.Errorf("pidfile: write %s: %w", h.path, err)
	}
	return h.file.Sync()
}

// Remove releases the lock and unlinks the file. Both steps are best-effort:
// an unlink failure is reported but the lock is always released.
func (h *Handle) Remove() error {
	unlinkErr := os.Remove(h.path)
	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		_ = h.file.Close()
		return fmt.Errorf("pidfile: unlock %s: %w", h.path, err)
	}
	_ = h.file.Close()
	if unlinkErr != nil && !errors.Is(unlinkErr, os.ErrNotExist) {
		return fmt.Errorf("pidfile: unlink %s: %w", h.path, unlinkErr)
	}
	return nil
}

// ShouldCreate reports whether a handle should be created for the given
// role and configuration, per spec.md §4.1: never for the progenitor, and
// never when path is empty or the no-pidfile override is set.
func ShouldCreate(isProgenitor bool, path string, noPidfile bool) bool {
	return !isProgenitor && path != "" && !noPidfile
}
