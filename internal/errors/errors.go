// Package errors provides centralized error definitions and error handling utilities
// for instamo. It defines sentinel errors, domain error types carrying the context
// needed to diagnose a failure without opening log files, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of one orchestration concern:
//   - ConfigError: the working directory or configuration is unusable
//   - ResourceError: an OS resource (ephemeral ports) could not be obtained
//   - LaunchError: a cluster role could not be spawned or initialized
//   - StateError: a lifecycle operation was called in the wrong state
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewConfigError("directory is not empty", errors.ErrDirectoryNotEmpty).WithPath(dir)
//	err := errors.NewLaunchError("spawn failed", cause).WithRole("master").WithBinary(java)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrAlreadyStarted) { ... }
//
//	var launchErr *errors.LaunchError
//	if errors.As(err, &launchErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Working directory and configuration sentinel errors
var (
	// ErrNotDirectory indicates the cluster root exists and is not a directory.
	ErrNotDirectory = New("path is not a directory")
	// ErrDirectoryNotEmpty indicates the cluster root exists and has entries.
	ErrDirectoryNotEmpty = New("directory is not empty")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// Resource sentinel errors
var (
	// ErrPortsExhausted indicates no free port was found within the attempt bound.
	ErrPortsExhausted = New("unable to find a free port")
)

// Lifecycle sentinel errors
var (
	// ErrAlreadyStarted indicates Start was called on a cluster that was already started.
	ErrAlreadyStarted = New("cluster already started")
	// ErrStopped indicates the cluster was stopped while an operation was in flight.
	ErrStopped = New("cluster stopped")
	// ErrLaunchFailed indicates a role process could not be spawned.
	ErrLaunchFailed = New("process launch failed")
	// ErrInitFailed indicates the one-shot initializer exited unsuccessfully.
	ErrInitFailed = New("cluster initialization failed")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ClusterError is the base interface for all instamo errors.
type ClusterError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ConfigError represents an unusable working directory or configuration.
//
// Example:
//
//	err := errors.NewConfigError("cannot use cluster directory", errors.ErrDirectoryNotEmpty)
//	err = err.WithPath("/tmp/macc")
//	fmt.Println(err) // "config error [path=/tmp/macc]: cannot use cluster directory: directory is not empty"
type ConfigError struct {
	baseError
	Path string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithPath adds the offending filesystem path to the error context.
func (e *ConfigError) WithPath(path string) *ConfigError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("config error", parts)
}

// ResourceError represents an exhausted OS resource.
type ResourceError struct {
	baseError
	Resource string
	Attempts int
}

// NewResourceError creates a new ResourceError. Resource exhaustion is
// usually transient, so the error is marked retryable.
func NewResourceError(resource string, attempts int, cause error) *ResourceError {
	return &ResourceError{
		baseError: baseError{
			message:   fmt.Sprintf("%s exhausted after %d attempts", resource, attempts),
			cause:     cause,
			severity:  SeverityCritical,
			retryable: true,
		},
		Resource: resource,
		Attempts: attempts,
	}
}

// Error returns the formatted error message.
func (e *ResourceError) Error() string {
	return e.format("resource error", nil)
}

// LaunchError represents a failure to spawn or initialize a cluster role.
//
// Example:
//
//	err := errors.NewLaunchError("initializer exited", errors.ErrInitFailed).WithRole("initializer").WithExitCode(1)
type LaunchError struct {
	baseError
	Role     string
	Binary   string
	ExitCode int
	hasExit  bool
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(message string, cause error) *LaunchError {
	return &LaunchError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithRole adds the role tag to the error context.
func (e *LaunchError) WithRole(role string) *LaunchError {
	e.Role = role
	return e
}

// WithBinary adds the executable path to the error context.
func (e *LaunchError) WithBinary(binary string) *LaunchError {
	e.Binary = binary
	return e
}

// WithExitCode records the exit code of a process that ran and failed.
func (e *LaunchError) WithExitCode(code int) *LaunchError {
	e.ExitCode = code
	e.hasExit = true
	return e
}

// Error returns the formatted error message.
func (e *LaunchError) Error() string {
	var parts []string
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	if e.Binary != "" {
		parts = append(parts, fmt.Sprintf("binary=%s", e.Binary))
	}
	if e.hasExit {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("launch error", parts)
}

// StateError represents a lifecycle call made in the wrong state.
type StateError struct {
	baseError
	State string
}

// NewStateError creates a new StateError.
func NewStateError(state string, cause error) *StateError {
	return &StateError{
		baseError: baseError{
			message:  "illegal state",
			cause:    cause,
			severity: SeverityError,
		},
		State: state,
	}
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.State != "" {
		parts = append(parts, fmt.Sprintf("state=%s", e.State))
	}
	return e.format("state error", parts)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var clusterErr ClusterError
	if As(err, &clusterErr) {
		return clusterErr.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ClusterError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var clusterErr ClusterError
	if As(err, &clusterErr) {
		return clusterErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
