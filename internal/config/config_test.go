package config

import (
	"strings"
	"testing"
)

func TestParseBasicKeyValue(t *testing.T) {
	f, err := Parse(strings.NewReader("app_timeout=300\nutilization.detect_aws=true\n# comment\n\nloglevel=debug\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := f.String("app_timeout"); !ok || v != "300" {
		t.Errorf("app_timeout = %q, %v", v, ok)
	}
	if v, ok := f.String("utilization.detect_aws"); !ok || v != "true" {
		t.Errorf("utilization.detect_aws = %q, %v", v, ok)
	}
	if v, ok := f.String("loglevel"); !ok || v != "debug" {
		t.Errorf("loglevel = %q, %v", v, ok)
	}
}

func TestParseRejectsLineWithoutEquals(t *testing.T) {
	_, err := Parse(strings.NewReader("not_a_key_value_line"))
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestApplyDefineOverridesFileValue(t *testing.T) {
	f, err := Parse(strings.NewReader("loglevel=info\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.ApplyDefine("loglevel=debug"); err != nil {
		t.Fatalf("ApplyDefine: %v", err)
	}
	if v, _ := f.String("loglevel"); v != "debug" {
		t.Errorf("loglevel = %q, want debug", v)
	}
}

func TestApplyDefineRejectsMissingEquals(t *testing.T) {
	f, _ := Parse(strings.NewReader(""))
	if err := f.ApplyDefine("loglevel"); err == nil {
		t.Fatal("expected error for --define without '='")
	}
}

func TestBoolParsing(t *testing.T) {
	f, _ := Parse(strings.NewReader("a=true\nb=0\nc=maybe\n"))
	if v, ok, err := f.Bool("a"); err != nil || !ok || !v {
		t.Errorf("a: %v %v %v", v, ok, err)
	}
	if v, ok, err := f.Bool("b"); err != nil || !ok || v {
		t.Errorf("b: %v %v %v", v, ok, err)
	}
	if _, _, err := f.Bool("c"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if _, ok, err := f.Bool("missing"); ok || err != nil {
		t.Errorf("missing key should be ok=false, err=nil, got ok=%v err=%v", ok, err)
	}
}

func TestResolveLayersFileOverDefaults(t *testing.T) {
	f, _ := Parse(strings.NewReader("addr=8080\napp_timeout=120\n"))
	s := Defaults().Resolve(f)
	if s.Addr != "8080" {
		t.Errorf("Addr = %q, want 8080", s.Addr)
	}
	if s.AppTimeout.Seconds() != 120 {
		t.Errorf("AppTimeout = %v, want 120s", s.AppTimeout)
	}
	// Values the file doesn't set keep their defaults.
	if s.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", s.LogLevel)
	}
}

func TestResolveLayersHighSecurityAndRedirect(t *testing.T) {
	f, _ := Parse(strings.NewReader("high_security=true\ncollector_host=collector-west.example.invalid\n"))
	s := Defaults().Resolve(f)
	if !s.RequireHighSecurity {
		t.Error("RequireHighSecurity = false, want true")
	}
	if s.CollectorRedirect != "collector-west.example.invalid" {
		t.Errorf("CollectorRedirect = %q, want collector-west.example.invalid", s.CollectorRedirect)
	}
}

func TestBindAddrResolvesThroughListenerPackage(t *testing.T) {
	s := Defaults()
	s.Addr = "/tmp/telemetryd.sock"
	network, addr := s.BindAddr()
	if string(network) != "unix" || addr != "/tmp/telemetryd.sock" {
		t.Errorf("BindAddr() = (%v, %q)", network, addr)
	}
}
