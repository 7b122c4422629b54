package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/instamo/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "drain.flush_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// instanceNameRegex restricts instance names to what the coordination
// service accepts as a single path element.
var instanceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// versionRegex accepts "major.minor" with an optional patch component.
var versionRegex = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// heapRegex accepts JVM heap sizes such as "128m" or "1g".
var heapRegex = regexp.MustCompile(`^\d+[kKmMgG]?$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidRuntimeKinds returns the list of valid runtime kinds
func ValidRuntimeKinds() []string {
	return []string{RuntimeNative, RuntimeJVM}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCluster()...)
	errors = append(errors, c.validatePorts()...)
	errors = append(errors, c.validateDrain()...)
	errors = append(errors, c.validateRuntime()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateSite()...)

	return errors
}

// validateCluster validates the ClusterConfig
func (c *Config) validateCluster() []ValidationError {
	var errors []ValidationError

	if !instanceNameRegex.MatchString(c.Cluster.InstanceName) {
		errors = append(errors, ValidationError{
			Field:   "cluster.instance_name",
			Value:   c.Cluster.InstanceName,
			Message: "must start with a letter or digit and contain only letters, digits, '.', '_' or '-'",
		})
	}
	if !versionRegex.MatchString(c.Cluster.Version) {
		errors = append(errors, ValidationError{
			Field:   "cluster.version",
			Value:   c.Cluster.Version,
			Message: "must look like major.minor[.patch]",
		})
	}

	const maxTabletServers = 16
	if c.Cluster.TabletServers < 1 || c.Cluster.TabletServers > maxTabletServers {
		errors = append(errors, ValidationError{
			Field:   "cluster.tablet_servers",
			Value:   c.Cluster.TabletServers,
			Message: fmt.Sprintf("must be between 1 and %d", maxTabletServers),
		})
	}

	if c.Cluster.InitTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "cluster.init_timeout_seconds",
			Value:   c.Cluster.InitTimeoutSeconds,
			Message: "must be non-negative (0 waits forever)",
		})
	}
	if c.Cluster.CoordinationWaitSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "cluster.coordination_wait_seconds",
			Value:   c.Cluster.CoordinationWaitSeconds,
			Message: "must be non-negative (0 disables the probe)",
		})
	}
	if c.Cluster.StopGraceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "cluster.stop_grace_ms",
			Value:   c.Cluster.StopGraceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePorts validates the PortsConfig
func (c *Config) validatePorts() []ValidationError {
	if c.Ports.MaxAttempts < 1 {
		return []ValidationError{{
			Field:   "ports.max_attempts",
			Value:   c.Ports.MaxAttempts,
			Message: "must be at least 1",
		}}
	}
	return nil
}

// validateDrain validates the DrainConfig
func (c *Config) validateDrain() []ValidationError {
	var errors []ValidationError

	const minFlushInterval = 10
	const maxFlushInterval = 60000
	if c.Drain.FlushIntervalMs < minFlushInterval || c.Drain.FlushIntervalMs > maxFlushInterval {
		errors = append(errors, ValidationError{
			Field:   "drain.flush_interval_ms",
			Value:   c.Drain.FlushIntervalMs,
			Message: fmt.Sprintf("must be between %dms and %dms", minFlushInterval, maxFlushInterval),
		})
	}
	if c.Drain.CloseGraceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "drain.close_grace_ms",
			Value:   c.Drain.CloseGraceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateRuntime validates the RuntimeConfig
func (c *Config) validateRuntime() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidRuntimeKinds(), c.Runtime.Kind) {
		errors = append(errors, ValidationError{
			Field:   "runtime.kind",
			Value:   c.Runtime.Kind,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRuntimeKinds(), ", ")),
		})
	}
	if c.Runtime.Kind == RuntimeJVM && c.Runtime.JavaHome == "" {
		errors = append(errors, ValidationError{
			Field:   "runtime.java_home",
			Value:   c.Runtime.JavaHome,
			Message: "is required for the jvm runtime (or set JAVA_HOME)",
		})
	}
	if !heapRegex.MatchString(c.Runtime.MaxHeap) {
		errors = append(errors, ValidationError{
			Field:   "runtime.max_heap",
			Value:   c.Runtime.MaxHeap,
			Message: "must be a size such as 128m or 1g",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSite rejects override keys the site file cannot carry
func (c *Config) validateSite() []ValidationError {
	var errors []ValidationError

	keys := make([]string, 0, len(c.Site))
	for k := range c.Site {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if strings.TrimSpace(k) == "" || strings.ContainsAny(k, " \t\n<>&") {
			errors = append(errors, ValidationError{
				Field:   "site",
				Value:   k,
				Message: "property keys must be non-empty and free of whitespace and markup characters",
			})
		}
	}

	return errors
}
