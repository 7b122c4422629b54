package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/drain"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/logging"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// DefaultCloseGrace bounds how long drains may keep reading after their
// process exited.
const DefaultCloseGrace = 2 * time.Second

// Observer receives process and drain activity for metrics.
type Observer interface {
	drain.Observer
	ProcessSpawned(role string)
	ProcessExited(role string, code int)
}

type nopObserver struct{}

func (nopObserver) DrainBytes(string, string, int)    {}
func (nopObserver) DrainFlush(string, string)         {}
func (nopObserver) DrainError(string, string, string) {}
func (nopObserver) ProcessSpawned(string)             {}
func (nopObserver) ProcessExited(string, int)         {}

// Launcher spawns role processes for one cluster.
type Launcher struct {
	fs         afero.Fs
	layout     siteconf.Layout
	runtime    Runtime
	flusher    *drain.Flusher
	logger     *logging.Logger
	observer   Observer
	closeGrace time.Duration
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithFs sets the filesystem log files are created on.
func WithFs(fs afero.Fs) LauncherOption {
	return func(l *Launcher) {
		if fs != nil {
			l.fs = fs
		}
	}
}

// WithFlusher registers every drain with f.
func WithFlusher(f *drain.Flusher) LauncherOption {
	return func(l *Launcher) {
		l.flusher = f
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *logging.Logger) LauncherOption {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) LauncherOption {
	return func(l *Launcher) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithCloseGrace sets how long drains may read after process exit.
func WithCloseGrace(d time.Duration) LauncherOption {
	return func(l *Launcher) {
		if d > 0 {
			l.closeGrace = d
		}
	}
}

// NewLauncher creates a Launcher for layout using runtime.
func NewLauncher(layout siteconf.Layout, runtime Runtime, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		fs:         afero.NewOsFs(),
		layout:     layout,
		runtime:    runtime,
		logger:     logging.NopLogger(),
		observer:   nopObserver{},
		closeGrace: DefaultCloseGrace,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Runtime returns the runtime used to build commands.
func (l *Launcher) Runtime() Runtime {
	return l.runtime
}

// Spawn starts role with args and attaches its log drains.
func (l *Launcher) Spawn(ctx context.Context, role Role, args ...string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewLaunchError("spawn cancelled", err).WithRole(role.Tag)
	}

	argv, env := l.runtime.Command(Spec{Role: role, Args: args, Layout: l.layout})
	if len(argv) == 0 {
		return nil, errors.NewLaunchError("empty command", errors.ErrLaunchFailed).WithRole(role.Tag)
	}
	logger := l.logger.WithRole(role.Tag)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = l.layout.Root
	cmd.SysProcAttr = sysProcAttr()

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, l.launchError(role, argv[0], err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return nil, l.launchError(role, argv[0], err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	var stdin io.WriteCloser
	if role.ReadsStdin {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			closeAll(outR, outW, errR, errW)
			return nil, l.launchError(role, argv[0], err)
		}
	}

	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW)
		if stdin != nil {
			_ = stdin.Close()
		}
		return nil, l.launchError(role, argv[0], err)
	}
	// The child holds its own copies; closing ours lets the drains see EOF
	// once the child (and anything it forked) is gone.
	closeAll(outW, errW)

	pid := cmd.Process.Pid
	h := &Handle{
		role:    role,
		cmd:     cmd,
		pid:     pid,
		argv:    argv,
		stdin:   stdin,
		started: time.Now(),
		exited:  make(chan struct{}),
		logger:  logger.With("pid", pid),
	}

	base := filepath.Join(l.layout.Logs, fmt.Sprintf("%s_%d", role.Tag, pid))
	h.outPath = base + ".out"
	h.errPath = base + ".err"
	h.stdout = l.attach(role, "out", outR, h.outPath, logger)
	h.stderr = l.attach(role, "err", errR, h.errPath, logger)

	l.observer.ProcessSpawned(role.Tag)
	logger.Info("process spawned", "pid", pid, "argv", argv)

	go h.waitLoop(l.closeGrace, []*os.File{outR, errR}, l.observer)

	return h, nil
}

func (l *Launcher) attach(role Role, stream string, src *os.File, path string, logger *logging.Logger) *drain.Drain {
	dst, err := l.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	var sink io.WriteCloser = dst
	if err != nil {
		// The pipe must still be consumed or the child blocks on a full buffer.
		logger.Warn("cannot open log file, discarding output", "path", path, "error", err)
		l.observer.DrainError(role.Tag, stream, "open")
		sink = nopWriteCloser{io.Discard}
	}

	d := drain.New(src, sink,
		drain.WithLabels(role.Tag, stream),
		drain.WithLogger(logger),
		drain.WithObserver(l.observer),
	)
	if l.flusher != nil {
		l.flusher.Register(d)
	}
	d.Start()
	return d
}

func (l *Launcher) launchError(role Role, binary string, cause error) error {
	l.logger.Error("process spawn failed", "role", role.Tag, "binary", binary, "error", cause)
	return errors.NewLaunchError("spawn failed", errors.Join(errors.ErrLaunchFailed, cause)).
		WithRole(role.Tag).
		WithBinary(binary)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
