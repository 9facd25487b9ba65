package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kinabalu-io/telemetryd/internal/home"
)

func TestResolveSettingsFlagsBeatConfigFileDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "telemetryd.cfg")
	writeFile(t, configPath, "addr=8080\napp_timeout=60\n")

	o := cliOptions{
		configFile: configPath,
		addr:       "9090", // flag beats file
		logLevel:   "debug",
	}
	hd := home.New(filepath.Join(dir, "home"))

	settings, err := resolveSettings(o, hd)
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}
	if settings.Addr != "9090" {
		t.Errorf("Addr = %q, want flag value 9090", settings.Addr)
	}
	if settings.AppTimeout.Seconds() != 60 {
		t.Errorf("AppTimeout = %v, want 60s from file", settings.AppTimeout)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", settings.LogLevel)
	}
}

func TestResolveSettingsDefineBeatsFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "telemetryd.cfg")
	writeFile(t, configPath, "app_timeout=60\n")

	o := cliOptions{
		configFile: configPath,
		defines:    []string{"app_timeout=999"},
	}
	hd := home.New(filepath.Join(dir, "home"))

	settings, err := resolveSettings(o, hd)
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}
	if settings.AppTimeout.Seconds() != 999 {
		t.Errorf("AppTimeout = %v, want 999s from --define", settings.AppTimeout)
	}
}

func TestResolveSettingsPortFallsBackToAddr(t *testing.T) {
	o := cliOptions{port: "7777"}
	if o.addr != "" {
		t.Fatal("precondition: addr should start empty")
	}
	// runRoot applies the port->addr fallback before calling resolveSettings;
	// exercise that mapping directly here since it's a plain assignment.
	if o.port != "" && o.addr == "" {
		o.addr = o.port
	}
	if o.addr != "7777" {
		t.Errorf("addr = %q, want port value 7777", o.addr)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
