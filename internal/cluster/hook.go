package cluster

import (
	"os"
	"os/signal"
	"sync"
)

// Hook runs registered callbacks when the controlling program terminates
// abnormally. Each callback runs at most once.
type Hook interface {
	// Register adds fn. The returned function removes it again.
	Register(fn func()) (unregister func())
}

// callbacks is the registration bookkeeping shared by the hooks.
type callbacks struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func()
}

func (c *callbacks) add(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fns == nil {
		c.fns = make(map[int]func())
	}
	id := c.nextID
	c.nextID++
	c.fns[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.fns, id)
	}
}

// take removes and returns every registered callback.
func (c *callbacks) take() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]func(), 0, len(c.fns))
	for _, fn := range c.fns {
		fns = append(fns, fn)
	}
	c.fns = nil
	return fns
}

func (c *callbacks) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

// runAll runs fns concurrently and waits for all of them.
func runAll(fns []func()) {
	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	wg.Wait()
}

// ManualHook fires on demand.
type ManualHook struct {
	cbs callbacks
}

// NewManualHook creates a ManualHook.
func NewManualHook() *ManualHook {
	return &ManualHook{}
}

// Register implements Hook.
func (h *ManualHook) Register(fn func()) func() {
	return h.cbs.add(fn)
}

// Fire runs and removes every registered callback.
func (h *ManualHook) Fire() {
	runAll(h.cbs.take())
}

// Len returns the number of registered callbacks.
func (h *ManualHook) Len() int {
	return h.cbs.len()
}

// SignalHook runs callbacks when the process receives a termination signal,
// then re-raises the signal with its default disposition so the process
// still exits the way it would have.
type SignalHook struct {
	cbs     callbacks
	signals []os.Signal

	notify func(chan<- os.Signal, ...os.Signal)
	stop   func(chan<- os.Signal)
	raise  func(os.Signal)

	once sync.Once
	ch   chan os.Signal
	done chan struct{}
}

var (
	defaultSignalHookOnce sync.Once
	defaultSignalHook     *SignalHook
)

// DefaultSignalHook returns the process-wide SignalHook for the platform's
// termination signals.
func DefaultSignalHook() *SignalHook {
	defaultSignalHookOnce.Do(func() {
		defaultSignalHook = NewSignalHook(TerminationSignals()...)
	})
	return defaultSignalHook
}

// NewSignalHook creates a hook for signals. Listening starts with the first
// Register.
func NewSignalHook(signals ...os.Signal) *SignalHook {
	return &SignalHook{
		signals: signals,
		notify:  signal.Notify,
		stop:    signal.Stop,
		raise:   reraise,
		done:    make(chan struct{}),
	}
}

// Register implements Hook.
func (h *SignalHook) Register(fn func()) func() {
	unregister := h.cbs.add(fn)
	h.once.Do(h.listen)
	return unregister
}

func (h *SignalHook) listen() {
	h.ch = make(chan os.Signal, 1)
	h.notify(h.ch, h.signals...)
	go func() {
		defer close(h.done)
		sig := <-h.ch
		h.stop(h.ch)
		runAll(h.cbs.take())
		h.raise(sig)
	}()
}

// reraise restores the default disposition and delivers sig to ourselves.
func reraise(sig os.Signal) {
	signal.Reset(sig)
	p, err := os.FindProcess(os.Getpid())
	if err == nil {
		err = p.Signal(sig)
	}
	if err != nil {
		os.Exit(exitCodeFor(sig))
	}
}
