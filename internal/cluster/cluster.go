package cluster

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/drain"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/logging"
	"github.com/Iron-Ham/instamo/internal/metrics"
	"github.com/Iron-Ham/instamo/internal/portalloc"
	"github.com/Iron-Ham/instamo/internal/process"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// State is the lifecycle state of a Cluster. It only moves forward.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

// String returns the manifest spelling of s.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// probeInterval is the pause between coordination readiness checks.
const probeInterval = 50 * time.Millisecond

// Cluster is an ephemeral cluster rooted in one working directory.
type Cluster struct {
	dir          *WorkingDir
	rootPassword string
	ports        siteconf.Ports
	site         *siteconf.Site
	coordination *siteconf.Coordination
	opts         options

	logger      *logging.Logger
	ownedLogger *logging.Logger
	metrics     *metrics.Metrics
	flusher     *drain.Flusher
	launcher    *process.Launcher
	hook        Hook

	mu         sync.Mutex
	state      State
	starting   bool
	handles    []*process.Handle
	unregister func()
	startedAt  time.Time
	stoppedAt  time.Time
	stopDone   chan struct{}

	manifestMu sync.Mutex
}

// New prepares a cluster in dir: it validates and lays out the directory,
// allocates the coordination, master and tablet server ports, and writes
// the site and coordination configuration. overrides are site properties
// that win over computed defaults. Nothing is launched until Start.
func New(dir, rootPassword string, overrides map[string]string, opts ...Option) (*Cluster, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if rootPassword == "" {
		return nil, errors.NewConfigError("root password must not be empty", errors.ErrInvalidInput)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.NewConfigError("cannot resolve cluster directory", err).WithPath(dir)
	}

	wd, err := NewWorkingDir(o.fs, root)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		dir:          wd,
		rootPassword: rootPassword,
		opts:         o,
		hook:         o.hook,
		stopDone:     make(chan struct{}),
	}
	if c.hook == nil {
		c.hook = DefaultSignalHook()
	}

	logger := o.logger
	if o.fileLogging {
		// The orchestrator log is an OS file; in-memory layouts keep the
		// configured logger.
		if _, onDisk := o.fs.(*afero.OsFs); onDisk {
			owned, err := logging.NewLogger(root, o.logLevel, o.logRotation)
			if err != nil {
				return nil, errors.NewConfigError("cannot open orchestrator log", err).WithPath(root)
			}
			c.ownedLogger = owned
			logger = owned
		}
	}
	c.logger = logger.WithCluster(o.instanceName)

	c.metrics = o.metrics
	if c.metrics == nil {
		c.metrics = metrics.NewMetrics(o.instanceName)
	}

	if err := c.configure(overrides); err != nil {
		c.closeLogger()
		return nil, err
	}

	c.flusher = drain.NewFlusher(o.flushInterval, c.logger)
	c.launcher = process.NewLauncher(wd.Layout, o.runtime,
		process.WithFs(o.fs),
		process.WithFlusher(c.flusher),
		process.WithLogger(c.logger),
		process.WithObserver(c.metrics),
		process.WithCloseGrace(o.closeGrace),
	)
	c.metrics.SetState(int(StateNotStarted))

	c.logger.Info("cluster prepared",
		"dir", root,
		"coordination_port", c.ports.Coordination,
		"master_port", c.ports.Master,
		"tserver_port", c.ports.TabletServer,
		"version", o.version.String(),
	)
	return c, nil
}

// configure allocates ports and writes both configuration files.
func (c *Cluster) configure(overrides map[string]string) error {
	allocOpts := []portalloc.Option{
		portalloc.WithMaxAttempts(c.opts.maxPortAttempts),
		portalloc.WithObserver(c.metrics.PortAttempt),
	}
	if c.opts.probe != nil {
		allocOpts = append(allocOpts, portalloc.WithProbe(c.opts.probe))
	}
	ports, err := portalloc.New(allocOpts...).AllocateN(3)
	if err != nil {
		c.logger.Error("port allocation failed", failureAttrs(err)...)
		return err
	}
	c.ports = siteconf.Ports{
		Coordination: ports[0],
		Master:       ports[1],
		TabletServer: ports[2],
	}

	site, coord, err := siteconf.Write(c.dir.Fs(), c.dir.Layout, overrides, c.ports, c.opts.version)
	if err != nil {
		c.logger.Error("configuration write failed", failureAttrs(err)...)
		return err
	}
	c.site = site
	c.coordination = coord
	return nil
}

// Start launches the cluster: coordination service, one-shot initializer,
// master, tablet servers and, for versions that need it, the logger
// service. It returns once every long-running role has been spawned.
//
// Start may be called once. If any step fails, everything already launched
// is stopped and the cluster ends Stopped. A concurrent Stop makes Start
// fail with ErrStopped.
func (c *Cluster) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	if c.state != StateNotStarted || c.starting {
		state := c.state.String()
		if c.starting {
			state = "starting"
		}
		c.mu.Unlock()
		return errors.NewStateError(state, errors.ErrAlreadyStarted)
	}
	c.starting = true
	c.startedAt = time.Now()
	c.unregister = c.hook.Register(c.crashStop)
	began := c.startedAt
	c.mu.Unlock()

	c.logger.Info("starting cluster", "tablet_servers", c.opts.tabletServers)
	c.flusher.Start()

	defer func() {
		if err == nil {
			return
		}
		if c.State() == StateStopped && !errors.Is(err, errors.ErrStopped) {
			err = errors.NewStateError(StateStopped.String(), errors.Join(errors.ErrStopped, err))
		}
		c.logger.Error("cluster start failed", failureAttrs(err)...)
		_ = c.Stop(context.WithoutCancel(ctx))
	}()

	coord, err := c.spawn(ctx, RoleCoordination, c.dir.CoordinationPath())
	if err != nil {
		return err
	}
	if err := c.awaitCoordination(ctx, coord); err != nil {
		return err
	}
	if err := c.initialize(ctx); err != nil {
		return err
	}
	for _, role := range ServiceRoles(c.opts.version, c.opts.tabletServers) {
		if _, err := c.spawn(ctx, role); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return errors.NewStateError(StateStopped.String(), errors.ErrStopped)
	}
	c.state = StateRunning
	c.starting = false
	c.mu.Unlock()

	c.metrics.SetState(int(StateRunning))
	c.metrics.ObserveStart(time.Since(began))
	c.writeManifest()
	c.logger.Info("cluster running", "endpoint", c.CoordinatorEndpoint(), "elapsed", time.Since(began).Round(time.Millisecond))
	return nil
}

// failureAttrs classifies err for the orchestrator log.
func failureAttrs(err error) []any {
	return []any{
		"error", err,
		"severity", errors.GetSeverity(err).String(),
		"retryable", errors.IsRetryable(err),
	}
}

// spawn launches role and records its handle. A process spawned after
// Stop began is destroyed immediately.
func (c *Cluster) spawn(ctx context.Context, role process.Role, args ...string) (*process.Handle, error) {
	h, err := c.launcher.Spawn(ctx, role, args...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	stopped := c.state == StateStopped
	if !stopped {
		c.handles = append(c.handles, h)
	}
	c.mu.Unlock()

	if stopped {
		h.Destroy(c.opts.stopGrace)
		return nil, errors.NewStateError(StateStopped.String(), errors.ErrStopped)
	}
	return h, nil
}

// awaitCoordination waits until the coordination port accepts connections.
func (c *Cluster) awaitCoordination(ctx context.Context, h *process.Handle) error {
	if c.opts.coordinationWait == 0 {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.opts.coordinationWait)
	defer cancel()

	addr := c.CoordinatorEndpoint()
	dialer := net.Dialer{Timeout: time.Second}
	for {
		conn, err := dialer.DialContext(probeCtx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			c.logger.Debug("coordination service accepting connections", "addr", addr)
			return nil
		}

		select {
		case <-h.Exited():
			return errors.NewLaunchError("coordination service exited during startup", errors.ErrLaunchFailed).
				WithRole(RoleCoordination.Tag).
				WithExitCode(h.ExitCode())
		case <-probeCtx.Done():
			if ctx.Err() != nil {
				return errors.NewLaunchError("start cancelled", ctx.Err()).WithRole(RoleCoordination.Tag)
			}
			return errors.NewLaunchError(
				fmt.Sprintf("coordination service not reachable at %s after %s", addr, c.opts.coordinationWait),
				errors.ErrTimeout,
			).WithRole(RoleCoordination.Tag)
		case <-time.After(probeInterval):
		}
	}
}

// initialize runs the one-shot initializer, answering its prompts for the
// instance name and root password on stdin.
func (c *Cluster) initialize(ctx context.Context) error {
	h, err := c.spawn(ctx, RoleInitializer)
	if err != nil {
		return err
	}
	began := time.Now()

	script := fmt.Sprintf("%s\n%s\n%s\n", c.opts.instanceName, c.rootPassword, c.rootPassword)
	if stdin := h.Stdin(); stdin != nil {
		if _, err := io.WriteString(stdin, script); err != nil {
			// The exit status below says why.
			c.logger.Warn("cannot write initializer input", "error", err)
		}
		_ = stdin.Close()
	}

	waitCtx := ctx
	if c.opts.initTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.initTimeout)
		defer cancel()
	}

	if err := h.Wait(waitCtx); err != nil {
		if h.Running() {
			h.Destroy(c.opts.stopGrace)
			if ctx.Err() != nil {
				return errors.NewLaunchError("start cancelled", ctx.Err()).WithRole(RoleInitializer.Tag)
			}
			return errors.NewLaunchError(
				fmt.Sprintf("initializer did not finish within %s", c.opts.initTimeout),
				errors.ErrTimeout,
			).WithRole(RoleInitializer.Tag)
		}
		return errors.NewLaunchError("initializer exited unsuccessfully", errors.ErrInitFailed).
			WithRole(RoleInitializer.Tag).
			WithExitCode(h.ExitCode())
	}

	c.metrics.ObserveInit(time.Since(began))
	c.logger.Info("cluster initialized", "instance", c.opts.instanceName, "elapsed", time.Since(began).Round(time.Millisecond))
	return nil
}

// Stop destroys every launched process and waits for their logs to drain.
// It does nothing before Start, and later calls wait for the first one to
// finish. The lifecycle itself never fails; ctx only bounds the wait for
// log drains.
func (c *Cluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateStopped:
		c.mu.Unlock()
		select {
		case <-c.stopDone:
		case <-ctx.Done():
		}
		return nil
	case c.state != StateRunning && !c.starting:
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	c.starting = false
	c.stoppedAt = time.Now()
	handles := slices.Clone(c.handles)
	unregister := c.unregister
	c.unregister = nil
	c.mu.Unlock()
	defer close(c.stopDone)

	if unregister != nil {
		unregister()
	}
	c.metrics.SetState(int(StateStopped))
	c.logger.Info("stopping cluster", "processes", len(handles))

	var wg conc.WaitGroup
	for _, h := range handles {
		wg.Go(func() {
			h.Destroy(c.opts.stopGrace)
		})
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(ctx, c.opts.closeGrace+time.Second)
	defer cancel()
	var drains conc.WaitGroup
	for _, h := range handles {
		drains.Go(func() {
			if err := h.WaitDrains(drainCtx); err != nil {
				c.logger.Warn("log drains still open", "role", h.Role().Tag, "pid", h.Pid(), "error", err)
			}
		})
	}
	drains.Wait()

	c.flusher.Stop()
	c.writeManifest()
	c.logger.Info("cluster stopped")
	return nil
}

// crashStop is registered with the hook while the cluster may own processes.
func (c *Cluster) crashStop() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.stopGrace+c.opts.closeGrace+5*time.Second)
	defer cancel()
	c.logger.Warn("termination signal received, stopping cluster")
	_ = c.Stop(ctx)
}

// Close stops the cluster and releases the orchestrator log.
func (c *Cluster) Close() error {
	err := c.Stop(context.Background())
	c.closeLogger()
	return err
}

func (c *Cluster) closeLogger() {
	if c.ownedLogger != nil {
		_ = c.ownedLogger.Close()
	}
}

// Manifest snapshots the cluster for the manifest file.
func (c *Cluster) Manifest() *Manifest {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &Manifest{
		Instance:  c.opts.instanceName,
		Endpoint:  c.CoordinatorEndpoint(),
		State:     c.state.String(),
		Version:   c.opts.version.String(),
		Runtime:   c.opts.runtimeName,
		Ports:     c.ports,
		StartedAt: c.startedAt,
	}
	if c.state == StateStopped {
		stopped := c.stoppedAt
		m.StoppedAt = &stopped
	}
	for _, h := range c.handles {
		stdout, stderr := h.LogFiles()
		p := ManifestProcess{
			Role:   h.Role().Tag,
			Pid:    h.Pid(),
			Stdout: stdout,
			Stderr: stderr,
		}
		if !h.Running() {
			code := h.ExitCode()
			p.ExitCode = &code
		}
		m.Processes = append(m.Processes, p)
	}
	return m
}

func (c *Cluster) writeManifest() {
	c.manifestMu.Lock()
	defer c.manifestMu.Unlock()
	if err := WriteManifest(c.dir.Fs(), c.ManifestPath(), c.Manifest()); err != nil {
		c.logger.Warn("cannot write manifest", "error", err)
	}
}

// CoordinatorEndpoint returns the address clients use to find the cluster.
func (c *Cluster) CoordinatorEndpoint() string {
	return fmt.Sprintf("localhost:%d", c.ports.Coordination)
}

// InstanceName returns the label the initializer assigned.
func (c *Cluster) InstanceName() string {
	return c.opts.instanceName
}

// RootPassword returns the root user's password.
func (c *Cluster) RootPassword() string {
	return c.rootPassword
}

// Dir returns the absolute cluster directory.
func (c *Cluster) Dir() string {
	return c.dir.Root
}

// Layout returns the cluster's directory layout.
func (c *Cluster) Layout() siteconf.Layout {
	return c.dir.Layout
}

// Ports returns the allocated ports.
func (c *Cluster) Ports() siteconf.Ports {
	return c.ports
}

// Site returns the written site configuration.
func (c *Cluster) Site() *siteconf.Site {
	return c.site
}

// Coordination returns the written coordination configuration.
func (c *Cluster) Coordination() *siteconf.Coordination {
	return c.coordination
}

// ManifestPath returns where the manifest is written.
func (c *Cluster) ManifestPath() string {
	return ManifestPath(c.dir.Root)
}

// State returns the lifecycle state.
func (c *Cluster) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handles returns a snapshot of the launched processes in launch order.
func (c *Cluster) Handles() []*process.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.handles)
}

// Metrics returns the cluster's metrics.
func (c *Cluster) Metrics() *metrics.Metrics {
	return c.metrics
}
