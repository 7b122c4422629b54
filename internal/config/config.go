package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config represents the complete instamo configuration
type Config struct {
	Cluster ClusterConfig `mapstructure:"cluster"`
	Ports   PortsConfig   `mapstructure:"ports"`
	Drain   DrainConfig   `mapstructure:"drain"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Logging LoggingConfig `mapstructure:"logging"`
	// Site holds site configuration overrides. Keys are storage-engine
	// property names; an override always wins over a computed default.
	// Keys contain dots, so Load reads the section as a whole rather
	// than through viper's nested key decoding.
	Site map[string]string `mapstructure:"-"`
}

// ClusterConfig controls the shape and sequencing of the launched cluster
type ClusterConfig struct {
	// InstanceName is the label the initializer assigns to the cluster (default: "test")
	InstanceName string `mapstructure:"instance_name"`
	// Version selects the role set and version-dependent site defaults (default: "1.5.0").
	// Versions below 1.5 run a separate write-ahead-log service.
	Version string `mapstructure:"version"`
	// TabletServers is the number of worker processes to launch (default: 1)
	TabletServers int `mapstructure:"tablet_servers"`
	// InitTimeoutSeconds bounds the wait for the one-shot initializer (0 = wait forever)
	InitTimeoutSeconds int `mapstructure:"init_timeout_seconds"`
	// CoordinationWaitSeconds bounds the wait for the coordination port to accept
	// connections before the initializer runs (0 = do not probe)
	CoordinationWaitSeconds int `mapstructure:"coordination_wait_seconds"`
	// StopGraceMs is how long Stop waits after SIGTERM before SIGKILL
	StopGraceMs int `mapstructure:"stop_grace_ms"`
}

// PortsConfig controls ephemeral port discovery
type PortsConfig struct {
	// MaxAttempts bounds bind attempts per port (default: 13)
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DrainConfig controls process output capture
type DrainConfig struct {
	// FlushIntervalMs is how often buffered log output is flushed (default: 1000)
	FlushIntervalMs int `mapstructure:"flush_interval_ms"`
	// CloseGraceMs is how long a drain may keep reading after its process
	// exited before the stream is forcibly closed (default: 2000)
	CloseGraceMs int `mapstructure:"close_grace_ms"`
}

// RuntimeConfig selects how role processes are executed
type RuntimeConfig struct {
	// Kind is "native" (re-exec the instamo binary) or "jvm" (default: "native")
	Kind string `mapstructure:"kind"`
	// JavaHome is the JVM installation used by the jvm runtime.
	// Defaults to $JAVA_HOME.
	JavaHome string `mapstructure:"java_home"`
	// Classpath lists extra jar directories or jars for the jvm runtime.
	Classpath []string `mapstructure:"classpath"`
	// MaxHeap is the per-process heap limit (default: "128m")
	MaxHeap string `mapstructure:"max_heap"`
	// Executable overrides the binary used by the native runtime.
	// Defaults to the running executable.
	Executable string `mapstructure:"executable"`
}

// LoggingConfig controls the orchestrator's own log
type LoggingConfig struct {
	// Enabled writes instamo.log into the cluster directory (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Runtime kinds
const (
	RuntimeNative = "native"
	RuntimeJVM    = "jvm"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			InstanceName:            "test",
			Version:                 "1.5.0",
			TabletServers:           1,
			InitTimeoutSeconds:      120,
			CoordinationWaitSeconds: 30,
			StopGraceMs:             5000,
		},
		Ports: PortsConfig{
			MaxAttempts: 13,
		},
		Drain: DrainConfig{
			FlushIntervalMs: 1000,
			CloseGraceMs:    2000,
		},
		Runtime: RuntimeConfig{
			Kind:      RuntimeNative,
			JavaHome:  os.Getenv("JAVA_HOME"),
			Classpath: []string{},
			MaxHeap:   "128m",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Site: map[string]string{},
	}
}

// InitTimeout returns the initializer wait bound (0 means unbounded)
func (c *ClusterConfig) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSeconds) * time.Second
}

// CoordinationWait returns the coordination readiness bound (0 disables the probe)
func (c *ClusterConfig) CoordinationWait() time.Duration {
	return time.Duration(c.CoordinationWaitSeconds) * time.Second
}

// StopGrace returns the SIGTERM-to-SIGKILL grace period
func (c *ClusterConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceMs) * time.Millisecond
}

// FlushInterval returns the periodic flush interval as a time.Duration
func (c *DrainConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// CloseGrace returns the post-exit drain grace as a time.Duration
func (c *DrainConfig) CloseGrace() time.Duration {
	return time.Duration(c.CloseGraceMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("cluster.instance_name", defaults.Cluster.InstanceName)
	viper.SetDefault("cluster.version", defaults.Cluster.Version)
	viper.SetDefault("cluster.tablet_servers", defaults.Cluster.TabletServers)
	viper.SetDefault("cluster.init_timeout_seconds", defaults.Cluster.InitTimeoutSeconds)
	viper.SetDefault("cluster.coordination_wait_seconds", defaults.Cluster.CoordinationWaitSeconds)
	viper.SetDefault("cluster.stop_grace_ms", defaults.Cluster.StopGraceMs)

	viper.SetDefault("ports.max_attempts", defaults.Ports.MaxAttempts)

	viper.SetDefault("drain.flush_interval_ms", defaults.Drain.FlushIntervalMs)
	viper.SetDefault("drain.close_grace_ms", defaults.Drain.CloseGraceMs)

	viper.SetDefault("runtime.kind", defaults.Runtime.Kind)
	viper.SetDefault("runtime.java_home", defaults.Runtime.JavaHome)
	viper.SetDefault("runtime.classpath", defaults.Runtime.Classpath)
	viper.SetDefault("runtime.max_heap", defaults.Runtime.MaxHeap)
	viper.SetDefault("runtime.executable", defaults.Runtime.Executable)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("site", defaults.Site)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Site values come from YAML/TOML/env and may be numbers or booleans;
	// the site file only carries strings.
	cfg.Site = map[string]string{}
	if raw := viper.Get("site"); raw != nil {
		site, err := cast.ToStringMapStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("site overrides: %w", err)
		}
		cfg.Site = site
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// the viper state cannot be decoded or fails validation.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ParseSiteOverrides turns "key=value" pairs into an override map.
// Later pairs win over earlier ones.
func ParseSiteOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid site override %q: expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// MergeSite returns base overlaid with extra; extra wins.
func MergeSite(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "instamo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".instamo"
	}
	return filepath.Join(home, ".config", "instamo")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
