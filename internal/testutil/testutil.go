// Package testutil provides testing utilities for instamo tests: laid-out
// cluster directories and in-process native engine roles.
package testutil

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine"
	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/portalloc"
	"github.com/Iron-Ham/instamo/internal/siteconf"
	"github.com/Iron-Ham/instamo/internal/version"
)

// roleStopTimeout bounds how long a stopped role may take to return.
const roleStopTimeout = 10 * time.Second

// SetupClusterDir creates a cluster directory under t.TempDir with freshly
// allocated ports and both configuration files written.
func SetupClusterDir(t *testing.T, v version.Version, overrides map[string]string) (siteconf.Layout, siteconf.Ports) {
	t.Helper()

	layout := siteconf.NewLayout(t.TempDir())
	fs := afero.NewOsFs()
	for _, dir := range append(layout.Dirs(), layout.CoordinationData()) {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	allocated, err := portalloc.New().AllocateN(3)
	if err != nil {
		t.Fatalf("failed to allocate ports: %v", err)
	}
	ports := siteconf.Ports{
		Coordination: allocated[0],
		Master:       allocated[1],
		TabletServer: allocated[2],
	}
	if _, _, err := siteconf.Write(fs, layout, overrides, ports, v); err != nil {
		t.Fatalf("failed to write configuration: %v", err)
	}
	return layout, ports
}

// RoleEnv returns an engine environment for layout. stdin feeds roles that
// read it.
func RoleEnv(layout siteconf.Layout, stdin string) *engine.Env {
	return &engine.Env{
		Fs:     afero.NewOsFs(),
		Path:   []string{layout.Conf, layout.Lib},
		Home:   layout.Root,
		Logger: zap.NewNop(),
		Stdin:  strings.NewReader(stdin),
		Stdout: io.Discard,
	}
}

// StartRole runs a role in the background. The returned function stops it
// and returns the role's error. The role is also stopped at cleanup.
func StartRole(t *testing.T, env *engine.Env, entry string, args ...string) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx, env, entry, args)
	}()

	var result error
	stopped := false
	stop = func() error {
		if stopped {
			return result
		}
		stopped = true
		cancel()
		select {
		case result = <-done:
		case <-time.After(roleStopTimeout):
			t.Errorf("role %s did not stop within %s", entry, roleStopTimeout)
		}
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

// Engine is a native engine cluster running inside the test process.
type Engine struct {
	Layout   siteconf.Layout
	Ports    siteconf.Ports
	Instance string
	Password string
	Stops    map[string]func() error
}

// Endpoint returns the coordination service address.
func (e *Engine) Endpoint() string {
	return "localhost:" + strconv.Itoa(e.Ports.Coordination)
}

// StartEngine lays out a cluster and runs coordination, initializer, master,
// one tablet server and, for versions that need it, the logger service.
func StartEngine(t *testing.T, v version.Version, password string) *Engine {
	t.Helper()

	layout, ports := SetupClusterDir(t, v, nil)
	e := &Engine{
		Layout:   layout,
		Ports:    ports,
		Instance: "test",
		Password: password,
		Stops:    map[string]func() error{},
	}

	e.Stops["coordination"] = StartRole(t, RoleEnv(layout, ""), "coordination", layout.CoordinationPath())
	WaitForCoordination(t, e.Endpoint())

	script := e.Instance + "\n" + password + "\n" + password + "\n"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Run(ctx, RoleEnv(layout, script), "initializer", nil); err != nil {
		t.Fatalf("initializer failed: %v", err)
	}

	e.Stops["master"] = StartRole(t, RoleEnv(layout, ""), "master")
	e.Stops["tserver"] = StartRole(t, RoleEnv(layout, ""), "tserver")
	if v.RequiresLoggerService() {
		e.Stops["logger"] = StartRole(t, RoleEnv(layout, ""), "logger")
	}
	return e
}

// WaitForCoordination blocks until the coordination service at addr answers.
func WaitForCoordination(t *testing.T, addr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := coord.NewClient(addr).WaitReady(ctx); err != nil {
		t.Fatalf("coordination service not ready: %v", err)
	}
}

// SkipIfShort skips long-running tests when -short is set.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping multi-process test in short mode")
	}
}
