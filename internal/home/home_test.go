package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	d := New("/tmp/telemetryd-test")
	if d.Root() != "/tmp/telemetryd-test" {
		t.Errorf("expected root /tmp/telemetryd-test, got %s", d.Root())
	}
}

func TestDefault(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Root() == "" {
		t.Fatal("expected non-empty root")
	}
	if filepath.Base(d.Root()) != "telemetryd" {
		t.Errorf("expected root to end with 'telemetryd', got %s", d.Root())
	}
}

func TestPidFilePath(t *testing.T) {
	d := New("/data")
	if got := d.PidFilePath(); got != "/data/telemetryd.pid" {
		t.Errorf("got %s", got)
	}
}

func TestLogFilePath(t *testing.T) {
	d := New("/data")
	if got := d.LogFilePath(); got != "/data/telemetryd.log" {
		t.Errorf("got %s", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "telemetryd")
	d := New(root)
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}

	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists (idempotent): %v", err)
	}
}

func TestResolveLogFileExplicitWins(t *testing.T) {
	d := New(t.TempDir())
	got, err := ResolveLogFile("/explicit/path.log", d)
	if err != nil {
		t.Fatalf("ResolveLogFile: %v", err)
	}
	if got != "/explicit/path.log" {
		t.Errorf("got %s, want explicit path", got)
	}
}

func TestResolveLogFileFallsBackToHomeDir(t *testing.T) {
	root := t.TempDir()
	d := New(filepath.Join(root, "home"))

	// The fixed system paths are very unlikely to be writable by a test
	// process, so this exercises the home-directory fallback branch.
	got, err := ResolveLogFile("", d)
	if err != nil {
		t.Fatalf("ResolveLogFile: %v", err)
	}
	if got != d.LogFilePath() && got != SystemLogPaths[0] && got != SystemLogPaths[1] {
		t.Errorf("got %s, want one of the candidates", got)
	}
}
