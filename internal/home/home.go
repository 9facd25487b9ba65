// Package home resolves the daemon's on-disk footprint: where its PID file
// and log file live when the operator hasn't pinned an explicit path.
//
// Layout:
//
//	<root>/
//	  telemetryd.pid
//	  telemetryd.log
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents the daemon's home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/telemetryd
//   - macOS:   ~/Library/Application Support/telemetryd
//   - Windows: %APPDATA%/telemetryd
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "telemetryd")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// PidFilePath returns the default PID-file path within the home directory,
// used when the operator supplies neither --pidfile nor --no-pidfile
// (spec.md §4.1).
func (d Dir) PidFilePath() string {
	return filepath.Join(d.root, "telemetryd.pid")
}

// LogFilePath returns the home-directory log path, the last-resort fallback
// after the two system paths named in spec.md §6
// ("/var/log/newrelic/newrelic-daemon.log", then
// "/var/log/newrelic-daemon.log") are both unwritable.
func (d Dir) LogFilePath() string {
	return filepath.Join(d.root, "telemetryd.log")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}

// SystemLogPaths are the two fixed locations spec.md §6 requires trying
// before falling back to the home directory when --logfile is unset.
var SystemLogPaths = []string{
	"/var/log/newrelic/newrelic-daemon.log",
	"/var/log/newrelic-daemon.log",
}

// ResolveLogFile implements spec.md §6's log-path fallback: try each of
// SystemLogPaths in order, then the home-directory default; the first path
// whose directory is writable wins. If none are writable, err names the
// first attempted path, per spec.md §6 ("fail with a message pointing at
// the first").
func ResolveLogFile(explicit string, d Dir) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	candidates := append(append([]string{}, SystemLogPaths...), d.LogFilePath())
	for _, path := range candidates {
		if dirWritable(filepath.Dir(path)) {
			return path, nil
		}
	}
	return "", fmt.Errorf("home: no writable log directory; first candidate was %s", candidates[0])
}

func dirWritable(dir string) bool {
	probe := filepath.Join(dir, ".telemetryd-write-probe")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false
	}
	fh, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	_ = fh.Close()
	_ = os.Remove(probe)
	return true
}
