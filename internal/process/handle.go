package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/instamo/internal/drain"
	"github.com/Iron-Ham/instamo/internal/logging"
)

// killWait bounds how long Destroy waits for exit after SIGKILL.
const killWait = 5 * time.Second

// Handle is one spawned role process.
type Handle struct {
	role    Role
	cmd     *exec.Cmd
	pid     int
	argv    []string
	stdin   io.WriteCloser
	started time.Time

	stdout  *drain.Drain
	stderr  *drain.Drain
	outPath string
	errPath string

	exited   chan struct{}
	waitErr  error
	exitCode int

	destroyOnce sync.Once
	destroyed   atomic.Bool
	terms       atomic.Int32

	logger *logging.Logger
}

// Role returns the role this process runs.
func (h *Handle) Role() Role {
	return h.role
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.pid
}

// Argv returns the argument vector the process was started with.
func (h *Handle) Argv() []string {
	return append([]string(nil), h.argv...)
}

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time {
	return h.started
}

// Stdin returns the process's input stream, or nil if the role does not
// read stdin.
func (h *Handle) Stdin() io.WriteCloser {
	return h.stdin
}

// LogFiles returns the stdout and stderr log file paths.
func (h *Handle) LogFiles() (stdout, stderr string) {
	return h.outPath, h.errPath
}

// Drains returns the stdout and stderr drains.
func (h *Handle) Drains() []*drain.Drain {
	return []*drain.Drain{h.stdout, h.stderr}
}

// Exited is closed once the process has exited.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Running reports whether the process has not exited yet.
func (h *Handle) Running() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// Destroyed reports whether Destroy has been called.
func (h *Handle) Destroyed() bool {
	return h.destroyed.Load()
}

// ExitCode returns the exit code, or -1 while running or when the process
// was ended by a signal.
func (h *Handle) ExitCode() int {
	if h.Running() {
		return -1
	}
	return h.exitCode
}

// Wait blocks until the process exits or ctx is done. It returns nil for a
// zero exit status and the *exec.ExitError otherwise. Safe for concurrent use.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.exited:
		return h.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitDrains blocks until both drains are Closed or ctx is done.
func (h *Handle) WaitDrains(ctx context.Context) error {
	for _, d := range h.Drains() {
		if err := d.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Destroy terminates the process group: SIGTERM, then SIGKILL once grace
// elapses. A process that already exited is left alone. Only the first call
// has any effect.
func (h *Handle) Destroy(grace time.Duration) {
	h.destroyOnce.Do(func() {
		h.destroyed.Store(true)
		if h.stdin != nil {
			_ = h.stdin.Close()
		}
		if !h.Running() {
			return
		}

		h.terms.Add(1)
		if err := terminate(h.cmd.Process); err != nil {
			h.logger.Debug("terminate signal failed", "error", err)
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-h.exited:
			return
		case <-timer.C:
		}

		h.logger.Warn("process ignored SIGTERM, killing", "grace", grace)
		if err := kill(h.cmd.Process); err != nil {
			h.logger.Debug("kill signal failed", "error", err)
		}
		select {
		case <-h.exited:
		case <-time.After(killWait):
			h.logger.Error("process did not exit after SIGKILL")
		}
	})
}

func (h *Handle) waitLoop(grace time.Duration, reads []*os.File, observer Observer) {
	h.waitErr = h.cmd.Wait()
	h.exitCode = h.cmd.ProcessState.ExitCode()
	close(h.exited)

	observer.ProcessExited(h.role.Tag, h.exitCode)
	h.logger.Info("process exited", "code", h.exitCode, "uptime", time.Since(h.started).Round(time.Millisecond))

	deadline := time.Now().Add(grace)
	for i, f := range reads {
		if err := f.SetReadDeadline(deadline); err != nil {
			d := h.Drains()[i]
			time.AfterFunc(grace, d.Abort)
		}
	}
}
