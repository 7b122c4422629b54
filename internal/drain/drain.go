package drain

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/instamo/internal/logging"
)

// State is the lifecycle state of a drain.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Task is the capability a drain exposes to its owners.
type Task interface {
	// Start begins draining in the background. Calling it again has no effect.
	Start()
	// Flush pushes buffered output to the log file.
	Flush() error
	// Wait blocks until the drain is Closed or ctx is done.
	Wait(ctx context.Context) error
	// State reports the current state.
	State() State
}

// Observer receives drain activity for metrics.
type Observer interface {
	DrainBytes(role, stream string, n int)
	DrainFlush(role, stream string)
	DrainError(role, stream, op string)
}

type nopObserver struct{}

func (nopObserver) DrainBytes(string, string, int)    {}
func (nopObserver) DrainFlush(string, string)         {}
func (nopObserver) DrainError(string, string, string) {}

// Drain copies one stream into one log file.
type Drain struct {
	role   string
	stream string

	src io.ReadCloser
	dst io.WriteCloser

	mu sync.Mutex
	w  *bufio.Writer

	state     atomic.Int32
	aborted   atomic.Bool
	startOnce sync.Once
	srcOnce   sync.Once
	done      chan struct{}

	logger   *logging.Logger
	observer Observer
}

// Option configures a Drain.
type Option func(*Drain)

// WithLabels sets the role and stream names used in logs and metrics.
func WithLabels(role, stream string) Option {
	return func(d *Drain) {
		d.role = role
		d.stream = stream
	}
}

// WithLogger sets the logger used for I/O failures.
func WithLogger(l *logging.Logger) Option {
	return func(d *Drain) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Drain) {
		if o != nil {
			d.observer = o
		}
	}
}

// New creates an idle drain from src into dst.
func New(src io.ReadCloser, dst io.WriteCloser, opts ...Option) *Drain {
	d := &Drain{
		src:      src,
		dst:      dst,
		w:        bufio.NewWriter(dst),
		done:     make(chan struct{}),
		logger:   logging.NopLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("role", d.role, "stream", d.stream)
	return d
}

// Start begins draining.
func (d *Drain) Start() {
	d.startOnce.Do(func() {
		d.state.Store(int32(StateDraining))
		go d.run()
	})
}

// State reports the current state.
func (d *Drain) State() State {
	return State(d.state.Load())
}

// Done is closed once the drain reaches Closed.
func (d *Drain) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the drain is Closed or ctx is done.
func (d *Drain) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush pushes buffered output to the log file. It is a no-op once Closed.
func (d *Drain) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.w == nil {
		return nil
	}
	if err := d.w.Flush(); err != nil {
		d.observer.DrainError(d.role, d.stream, "flush")
		return err
	}
	d.observer.DrainFlush(d.role, d.stream)
	return nil
}

// Abort closes the source stream, ending the read loop. Output already
// read is still written and flushed. Used when a process has exited but
// its stream stays open, for example because a grandchild inherited it.
func (d *Drain) Abort() {
	d.aborted.Store(true)
	d.closeSource()
}

func (d *Drain) run() {
	r := bufio.NewReader(d.src)
	writeFailed := false

	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if !d.writeLine(line) && !writeFailed {
				// Keep reading so the child never blocks on a full pipe.
				writeFailed = true
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !d.expectedReadError(err) {
				d.observer.DrainError(d.role, d.stream, "read")
				d.logger.Warn("log stream read failed", "error", err)
			}
			break
		}
	}

	d.close()
}

// expectedReadError reports errors that follow an Abort or a deadline set
// by the launcher; both are normal ways for a drain to end.
func (d *Drain) expectedReadError(err error) bool {
	if d.aborted.Load() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, os.ErrClosed)
}

func (d *Drain) writeLine(line string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.w == nil {
		return false
	}
	if _, err := d.w.WriteString(line); err != nil {
		d.writeError(err)
		return false
	}
	if err := d.w.WriteByte('\n'); err != nil {
		d.writeError(err)
		return false
	}
	d.observer.DrainBytes(d.role, d.stream, len(line)+1)
	return true
}

func (d *Drain) writeError(err error) {
	d.observer.DrainError(d.role, d.stream, "write")
	d.logger.Warn("log file write failed", "error", err)
}

func (d *Drain) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.w != nil {
		if err := d.w.Flush(); err != nil {
			d.writeError(err)
		}
		if err := d.dst.Close(); err != nil {
			d.observer.DrainError(d.role, d.stream, "close")
			d.logger.Warn("log file close failed", "error", err)
		}
		d.w = nil
	}
	d.closeSource()

	d.state.Store(int32(StateClosed))
	close(d.done)
}

func (d *Drain) closeSource() {
	d.srcOnce.Do(func() {
		_ = d.src.Close()
	})
}
