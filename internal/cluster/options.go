package cluster

import (
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/config"
	"github.com/Iron-Ham/instamo/internal/drain"
	"github.com/Iron-Ham/instamo/internal/logging"
	"github.com/Iron-Ham/instamo/internal/metrics"
	"github.com/Iron-Ham/instamo/internal/portalloc"
	"github.com/Iron-Ham/instamo/internal/process"
	"github.com/Iron-Ham/instamo/internal/version"
)

// DefaultInstanceName is the label the initializer assigns by default.
const DefaultInstanceName = "test"

type options struct {
	fs               afero.Fs
	logger           *logging.Logger
	fileLogging      bool
	logLevel         string
	logRotation      logging.RotationConfig
	runtime          process.Runtime
	runtimeName      string
	hook             Hook
	metrics          *metrics.Metrics
	instanceName     string
	version          version.Version
	tabletServers    int
	maxPortAttempts  int
	probe            portalloc.Probe
	initTimeout      time.Duration
	coordinationWait time.Duration
	stopGrace        time.Duration
	flushInterval    time.Duration
	closeGrace       time.Duration
}

func defaultOptions() options {
	return options{
		fs:               afero.NewOsFs(),
		logger:           logging.NopLogger(),
		runtime:          process.NativeRuntime{Prefix: []string{"role"}},
		runtimeName:      config.RuntimeNative,
		instanceName:     DefaultInstanceName,
		version:          version.Default,
		tabletServers:    1,
		maxPortAttempts:  portalloc.DefaultMaxAttempts,
		initTimeout:      2 * time.Minute,
		coordinationWait: 30 * time.Second,
		stopGrace:        5 * time.Second,
		flushInterval:    drain.DefaultFlushInterval,
		closeGrace:       process.DefaultCloseGrace,
	}
}

// Option configures a Cluster.
type Option func(*options)

// WithFs sets the filesystem the layout and configuration are written to.
// Role processes always run against the real filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFileLogging writes the orchestrator log to instamo.log inside the
// cluster directory once it has been validated.
func WithFileLogging(level string, rotation logging.RotationConfig) Option {
	return func(o *options) {
		o.fileLogging = true
		o.logLevel = level
		o.logRotation = rotation
	}
}

// WithRuntime sets how role processes are executed. name is recorded in
// the manifest.
func WithRuntime(name string, rt process.Runtime) Option {
	return func(o *options) {
		if rt != nil {
			o.runtime = rt
			o.runtimeName = name
		}
	}
}

// WithHook sets the crash-safety hook. Defaults to DefaultSignalHook.
func WithHook(h Hook) Option {
	return func(o *options) {
		o.hook = h
	}
}

// WithMetrics sets the metrics sink. Defaults to a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithInstanceName sets the cluster label.
func WithInstanceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.instanceName = name
		}
	}
}

// WithVersion sets the storage-engine version.
func WithVersion(v version.Version) Option {
	return func(o *options) {
		o.version = v
	}
}

// WithTabletServers sets how many tablet servers to launch.
func WithTabletServers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.tabletServers = n
		}
	}
}

// WithMaxPortAttempts bounds port allocation attempts.
func WithMaxPortAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPortAttempts = n
		}
	}
}

// WithPortProbe replaces the port bind check.
func WithPortProbe(p portalloc.Probe) Option {
	return func(o *options) {
		o.probe = p
	}
}

// WithInitTimeout bounds the initializer. Zero waits forever.
func WithInitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.initTimeout = d
		}
	}
}

// WithCoordinationWait bounds the wait for the coordination port. Zero
// skips the probe.
func WithCoordinationWait(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.coordinationWait = d
		}
	}
}

// WithStopGrace sets the SIGTERM-to-SIGKILL grace period.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.stopGrace = d
		}
	}
}

// WithFlushInterval sets the periodic log flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushInterval = d
		}
	}
}

// WithCloseGrace sets how long drains may read after their process exits.
func WithCloseGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeGrace = d
		}
	}
}

// RuntimeFromConfig builds the runtime selected by cfg.
func RuntimeFromConfig(cfg config.RuntimeConfig) process.Runtime {
	if cfg.Kind == config.RuntimeJVM {
		return process.JVMRuntime{
			JavaHome:  cfg.JavaHome,
			Classpath: cfg.Classpath,
			MaxHeap:   cfg.MaxHeap,
		}
	}
	return process.NativeRuntime{
		Executable: cfg.Executable,
		Prefix:     []string{"role"},
	}
}

// OptionsFromConfig translates a loaded configuration into options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	v, err := version.Parse(cfg.Cluster.Version)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithInstanceName(cfg.Cluster.InstanceName),
		WithVersion(v),
		WithTabletServers(cfg.Cluster.TabletServers),
		WithInitTimeout(cfg.Cluster.InitTimeout()),
		WithCoordinationWait(cfg.Cluster.CoordinationWait()),
		WithStopGrace(cfg.Cluster.StopGrace()),
		WithMaxPortAttempts(cfg.Ports.MaxAttempts),
		WithFlushInterval(cfg.Drain.FlushInterval()),
		WithCloseGrace(cfg.Drain.CloseGrace()),
		WithRuntime(cfg.Runtime.Kind, RuntimeFromConfig(cfg.Runtime)),
	}
	if cfg.Logging.Enabled {
		opts = append(opts, WithFileLogging(cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		}))
	}
	return opts, nil
}
