// Command telemetryd relays observations from local application processes
// to a remote telemetry ingestion service (spec.md §1).
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kinabalu-io/telemetryd/internal/config"
	"github.com/kinabalu-io/telemetryd/internal/daemon"
	"github.com/kinabalu-io/telemetryd/internal/exitstatus"
	"github.com/kinabalu-io/telemetryd/internal/harvest"
	"github.com/kinabalu-io/telemetryd/internal/home"
	"github.com/kinabalu-io/telemetryd/internal/listener"
	"github.com/kinabalu-io/telemetryd/internal/logging"
	"github.com/kinabalu-io/telemetryd/internal/role"
	"github.com/kinabalu-io/telemetryd/internal/supervisor"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // filtering is done by ComponentFilterHandler
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := newRootCmd(logger, filterHandler)
	if err := rootCmd.Execute(); err != nil {
		if code := exitstatus.Get(); code != 0 {
			os.Exit(code) // initialisation failure already recorded
		}
		os.Exit(2) // cobra usage/help-as-error
	}
	os.Exit(exitstatus.Get())
}

func newRootCmd(logger *slog.Logger, filter *logging.ComponentFilterHandler) *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:     "telemetryd",
		Short:   "Telemetry relay daemon",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), logger, filter, opts)
		},
		SilenceUsage: true,
	}

	registerFlags(cmd, &opts)
	cmd.Flags().BoolP("version", "v", false, "print version and exit")
	return cmd
}

// cliOptions mirrors the CLI surface in spec.md §6.
type cliOptions struct {
	addr        string
	port        string // deprecated alias for addr
	configFile  string
	logFile     string
	logLevel    string
	pidFile     string
	noPidfile   bool
	auditLog    string
	caFile      string
	caPath      string
	proxy       string
	defines     []string
	foreground  bool
	utilization bool
}

func registerFlags(cmd *cobra.Command, o *cliOptions) {
	f := cmd.Flags()

	f.StringVar(&o.addr, "addr", "", "listen address: host:port or filesystem socket path")
	f.StringVar(&o.port, "port", "", "deprecated alias for --addr")
	f.StringVarP(&o.configFile, "config", "c", "", "configuration file path")
	f.StringVar(&o.logFile, "logfile", "", "log file path (default: tries system paths, then the home directory)")
	f.StringVar(&o.logLevel, "loglevel", "", "log level: error|warning|info|debug")
	f.StringVar(&o.pidFile, "pidfile", "", "pid file path")
	f.BoolVar(&o.noPidfile, "no-pidfile", false, "disable the pid-file interlock")
	f.StringVar(&o.auditLog, "auditlog", "", "audit log path (accepted for compatibility; not implemented, see spec.md §1 Non-goals)")
	f.StringVar(&o.caFile, "cafile", "", "CA bundle file for upload TLS verification")
	f.StringVar(&o.caPath, "capath", "", "CA bundle directory for upload TLS verification")
	f.StringVar(&o.proxy, "proxy", "", "HTTP proxy URL for uploads")
	f.StringArrayVar(&o.defines, "define", nil, "override a config file key, e.g. --define app_timeout=120 (highest precedence)")
	f.BoolVarP(&o.foreground, "foreground", "f", false, "run as worker in the foreground, skipping the supervision tree")
	f.BoolVar(&o.utilization, "utilization", false, "print host facts as JSON and exit")

	// Legacy short-flag set (spec.md §6): accepted for compatibility, bound
	// to the same variables as their modern counterparts so both spellings
	// converge on one value. pflag emits the deprecation notice on use.
	f.StringVarP(&o.port, "legacy-port", "p", "", "deprecated alias for --port")
	f.BoolVarP(&o.foreground, "legacy-foreground", "d", false, "deprecated alias for --foreground")
	f.StringVarP(&o.logFile, "legacy-logfile", "l", "", "deprecated alias for --logfile")
	f.StringVarP(&o.pidFile, "legacy-pidfile", "P", "", "deprecated alias for --pidfile")
	f.StringVarP(&o.addr, "legacy-addr", "b", "", "deprecated alias for --addr")
	f.StringVarP(&o.caFile, "legacy-cafile", "S", "", "deprecated alias for --cafile")
	f.StringVarP(&o.proxy, "legacy-proxy", "x", "", "deprecated alias for --proxy")
	f.StringVarP(&o.auditLog, "legacy-auditlog", "a", "", "deprecated alias for --auditlog")
	f.StringVarP(&o.caPath, "legacy-capath", "A", "", "deprecated alias for --capath")
	for _, name := range []string{"legacy-port", "legacy-foreground", "legacy-logfile", "legacy-pidfile", "legacy-addr", "legacy-cafile", "legacy-proxy", "legacy-auditlog", "legacy-capath"} {
		_ = f.MarkDeprecated(name, "use the long-form flag instead")
		_ = f.MarkHidden(name)
	}
}

func runRoot(ctx context.Context, logger *slog.Logger, filter *logging.ComponentFilterHandler, o cliOptions) error {
	if o.utilization {
		return printUtilization()
	}

	if o.port != "" && o.addr == "" {
		o.addr = o.port
	}

	r := role.Resolve(o.foreground, os.Getenv(role.EnvVar))
	logger = logger.With("role", r)

	switch r {
	case role.Progenitor:
		if err := supervisor.Spawn(logger, role.Watcher); err != nil {
			logger.Error("failed to spawn watcher", "error", err)
			exitstatus.Set(1)
			return nil
		}
		return nil
	case role.Watcher:
		code := supervisor.Watch(ctx, logger)
		exitstatus.Set(code)
		return nil
	default: // role.Worker
		return runWorker(ctx, logger, filter, o)
	}
}

func runWorker(ctx context.Context, logger *slog.Logger, filter *logging.ComponentFilterHandler, o cliOptions) error {
	hd, err := home.Default()
	if err != nil {
		exitstatus.Set(1)
		return fmt.Errorf("resolve home directory: %w", err)
	}

	settings, err := resolveSettings(o, hd)
	if err != nil {
		exitstatus.Set(1)
		return err
	}

	logFile, filter, err := openLogDestination(settings.LogFile)
	if err != nil {
		exitstatus.Set(1)
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger = slog.New(filter)
	setLogLevel(filter, settings.LogLevel)
	watchForSighup(ctx, logger, logFile)

	var tlsConfig *tls.Config
	if settings.CAFile != "" || settings.CAPath != "" {
		tlsConfig = &tls.Config{} // real CA bundle loading is part of the out-of-scope upload transport (spec.md §1)
	}
	uploader := harvest.NewHTTPUploader("https://telemetry.example.invalid/agent_listener", tlsConfig)

	code := daemon.Run(ctx, logger, settings, uploader, listener.AcceptAnyLicense, signingKeyFromEnv())
	exitstatus.Set(code)
	return nil
}

func resolveSettings(o cliOptions, hd home.Dir) (config.Settings, error) {
	settings := config.Defaults()

	if o.configFile != "" {
		f, err := config.ParseFile(o.configFile)
		if err != nil {
			return config.Settings{}, fmt.Errorf("load config file: %w", err)
		}
		for _, d := range o.defines {
			if err := f.ApplyDefine(d); err != nil {
				return config.Settings{}, err
			}
		}
		settings = settings.Resolve(f)
	}

	// CLI flags beat the config file; apply non-empty flag values last.
	if o.addr != "" {
		settings.Addr = o.addr
	}
	if o.pidFile != "" {
		settings.PidFile = o.pidFile
	} else if settings.PidFile == "" && !o.noPidfile {
		settings.PidFile = hd.PidFilePath()
	}
	settings.NoPidFile = o.noPidfile
	if o.logLevel != "" {
		settings.LogLevel = o.logLevel
	}
	if o.auditLog != "" {
		settings.AuditLog = o.auditLog
	}
	if o.caFile != "" {
		settings.CAFile = o.caFile
	}
	if o.caPath != "" {
		settings.CAPath = o.caPath
	}
	if o.proxy != "" {
		settings.Proxy = o.proxy
	}
	if o.logFile != "" {
		settings.LogFile = o.logFile
	}

	// --define lines beat both the file and the flags.
	if len(o.defines) > 0 {
		defs, _ := config.Parse(strings.NewReader(""))
		for _, d := range o.defines {
			if err := defs.ApplyDefine(d); err != nil {
				return config.Settings{}, err
			}
		}
		settings = settings.Resolve(defs)
	}

	logFile, err := home.ResolveLogFile(settings.LogFile, hd)
	if err != nil {
		return config.Settings{}, err
	}
	settings.LogFile = logFile

	if err := hd.EnsureExists(); err != nil {
		return config.Settings{}, err
	}

	return settings, nil
}

func setLogLevel(filter *logging.ComponentFilterHandler, level string) {
	var l slog.Level
	switch level {
	case "error":
		l = slog.LevelError
	case "warning":
		l = slog.LevelWarn
	case "debug":
		l = slog.LevelDebug
	default:
		l = slog.LevelInfo
	}
	filter.SetLevel("", l)
}

// openLogDestination builds the worker's logging chain. An empty path keeps
// logging on stderr (used when the daemon runs in the foreground without a
// resolved log file); otherwise it opens path as a ReopenableFile so
// watchForSighup can rotate it in place.
func openLogDestination(path string) (*logging.ReopenableFile, *logging.ComponentFilterHandler, error) {
	if path == "" {
		base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		return nil, logging.NewComponentFilterHandler(base, slog.LevelInfo), nil
	}
	f, err := logging.OpenReopenableFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	base := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return f, logging.NewComponentFilterHandler(base, slog.LevelInfo), nil
}

// watchForSighup installs the "SIGHUP ⇒ log reopen" handler (spec.md §4.2
// "Worker"), grounded on the reload-signal goroutine in
// cmd/rule-evaluator/main.go. A no-op when logFile is nil (stderr logging
// has nothing to reopen).
func watchForSighup(ctx context.Context, logger *slog.Logger, logFile *logging.ReopenableFile) {
	if logFile == nil {
		return
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := logFile.Reopen(); err != nil {
					logger.Error("failed to reopen log file on SIGHUP", "error", err)
					continue
				}
				logger.Info("log file reopened on SIGHUP")
			}
		}
	}()
}

func signingKeyFromEnv() []byte {
	if k := os.Getenv("TELEMETRYD_SIGNING_KEY"); k != "" {
		return []byte(k)
	}
	return []byte("telemetryd-dev-signing-key")
}

type utilizationFacts struct {
	Hostname string `json:"hostname"`
	NumCPU   int    `json:"logical_processors"`
	GoArch   string `json:"arch"`
	GoOS     string `json:"os"`
	BootID   string `json:"boot_id,omitempty"`
}

// printUtilization implements --utilization (spec.md §6): print host facts
// as JSON and exit. Cloud/container detection is explicitly out of scope
// (spec.md §1), so this reports only statically-available facts.
func printUtilization() error {
	hostname, _ := os.Hostname()
	facts := utilizationFacts{
		Hostname: hostname,
		NumCPU:   runtime.NumCPU(),
		GoArch:   runtime.GOARCH,
		GoOS:     runtime.GOOS,
	}
	if b, err := os.ReadFile("/proc/sys/kernel/random/boot_id"); err == nil {
		facts.BootID = string(b)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(facts)
}
