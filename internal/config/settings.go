package config

import (
	"time"

	"github.com/kinabalu-io/telemetryd/internal/listener"
)

// Settings is the fully-resolved, typed configuration the worker needs to
// start, after flags, config file and --define overrides have all been
// layered (spec.md §6: "CLI flags beat file values; --define is treated as
// an inline file line with the highest precedence").
type Settings struct {
	Addr         string // raw --addr/--port value, before ResolveAddr
	PidFile      string
	NoPidFile    bool
	LogFile      string
	LogLevel     string
	AuditLog     string // accepted, parsed, not acted on (spec.md §1 Non-goals)
	CAFile       string
	CAPath       string
	Proxy        string
	Foreground   bool
	Utilization  bool

	RequireHighSecurity bool
	CollectorRedirect   string

	HarvestCycle time.Duration
	AppTimeout   time.Duration

	AnalyticsEventsCapacity int
	CustomEventsCapacity    int
	MetricNameCap           int
	ErrorsCapacity          int
	SlowSamplesCapacity     int
}

// Defaults returns the settings the daemon falls back to when neither a
// config file nor a flag supplies a value.
func Defaults() Settings {
	return Settings{
		LogLevel:     "info",
		HarvestCycle: 60 * time.Second,
		AppTimeout:   5 * time.Minute,

		AnalyticsEventsCapacity: 10000,
		CustomEventsCapacity:    10000,
		MetricNameCap:           2000,
		ErrorsCapacity:          20,
		SlowSamplesCapacity:     10,
	}
}

// Resolve layers a parsed config file over the defaults, without yet
// applying CLI flags (the caller applies those afterward so flags win).
func (s Settings) Resolve(f *File) Settings {
	if v, ok := f.String("addr"); ok {
		s.Addr = v
	}
	if v, ok := f.String("pidfile"); ok {
		s.PidFile = v
	}
	if v, ok := f.String("logfile"); ok {
		s.LogFile = v
	}
	if v, ok := f.String("loglevel"); ok {
		s.LogLevel = v
	}
	if v, ok := f.String("auditlog"); ok {
		s.AuditLog = v
	}
	if v, ok := f.String("ssl_ca_bundle"); ok {
		s.CAFile = v
	}
	if v, ok := f.String("ssl_ca_path"); ok {
		s.CAPath = v
	}
	if v, ok := f.String("proxy"); ok {
		s.Proxy = v
	}
	if n, ok, _ := f.Int("app_timeout"); ok {
		s.AppTimeout = time.Duration(n) * time.Second
	}
	if n, ok, _ := f.Int("harvest_cycle"); ok {
		s.HarvestCycle = time.Duration(n) * time.Second
	}
	if v, ok, _ := f.Bool("high_security"); ok {
		s.RequireHighSecurity = v
	}
	if v, ok := f.String("collector_host"); ok {
		s.CollectorRedirect = v
	}
	return s
}

// BindAddr resolves Addr into the network/address pair the listener binds
// to, applying the deprecated-flag pass-through documented in spec.md §9.
func (s Settings) BindAddr() (listener.Network, string) {
	return listener.ResolveAddr(s.Addr)
}
