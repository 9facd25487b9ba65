package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ReopenableFile is an io.Writer backed by a file path that can be closed
// and reopened in place. The worker process holds one of these open for the
// lifetime of the daemon; a SIGHUP handler calls Reopen so an external
// logrotate (rename-and-recreate, or truncate) is picked up without
// restarting the daemon.
type ReopenableFile struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenReopenableFile opens path for appending, creating it if necessary.
func OpenReopenableFile(path string) (*ReopenableFile, error) {
	f := &ReopenableFile{path: path}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ReopenableFile) open() error {
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", f.path, err)
	}
	f.file = fh
	return nil
}

// Write implements io.Writer.
func (f *ReopenableFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Write(p)
}

// Reopen closes the current file handle and opens path fresh, swapping it in
// atomically with respect to concurrent Write calls. Writes already in
// flight complete against the old handle; subsequent writes use the new one.
func (f *ReopenableFile) Reopen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stale := f.file
	if err := f.open(); err != nil {
		return err
	}
	return stale.Close()
}

// Close closes the underlying file handle.
func (f *ReopenableFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

var _ io.WriteCloser = (*ReopenableFile)(nil)
