package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("cannot use cluster directory", ErrDirectoryNotEmpty).WithPath("/tmp/x")

	want := "config error [path=/tmp/x]: cannot use cluster directory: directory is not empty"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrDirectoryNotEmpty) {
		t.Error("errors.Is(err, ErrDirectoryNotEmpty) = false, want true")
	}
	if errors.Is(err, ErrNotDirectory) {
		t.Error("errors.Is(err, ErrNotDirectory) = true, want false")
	}
}

func TestResourceError(t *testing.T) {
	err := NewResourceError("ephemeral ports", 13, ErrPortsExhausted)

	if !errors.Is(err, ErrPortsExhausted) {
		t.Error("errors.Is(err, ErrPortsExhausted) = false, want true")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want %v", GetSeverity(err), SeverityCritical)
	}
	if err.Attempts != 13 {
		t.Errorf("Attempts = %d, want 13", err.Attempts)
	}
}

func TestLaunchError(t *testing.T) {
	tests := []struct {
		name string
		err  *LaunchError
		want string
	}{
		{
			name: "no context",
			err:  NewLaunchError("spawn failed", nil),
			want: "launch error: spawn failed",
		},
		{
			name: "role and binary",
			err:  NewLaunchError("spawn failed", ErrLaunchFailed).WithRole("master").WithBinary("/usr/bin/java"),
			want: "launch error [role=master, binary=/usr/bin/java]: spawn failed: process launch failed",
		},
		{
			name: "exit code zero is still reported",
			err:  NewLaunchError("initializer exited", ErrInitFailed).WithExitCode(0),
			want: "launch error [exit=0]: initializer exited: cluster initialization failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("start: %w", NewStateError("running", ErrAlreadyStarted))

	if !errors.Is(err, ErrAlreadyStarted) {
		t.Error("errors.Is(err, ErrAlreadyStarted) = false, want true")
	}
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatal("errors.As(err, *StateError) = false, want true")
	}
	if stateErr.State != "running" {
		t.Errorf("State = %q, want %q", stateErr.State, "running")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestClassification_Nil(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", GetSeverity(nil), SeverityDebug)
	}
	if GetSeverity(errors.New("plain")) != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want %v", GetSeverity(errors.New("plain")), SeverityError)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrTimeout, "waiting for %s", "initializer")
	if err.Error() != "waiting for initializer: operation timed out" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable(timeout) = false, want true")
	}
}
