package portalloc

import (
	"math/rand/v2"
	"net"
	"strconv"
	"sync"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// Port range searched by the allocator.
const (
	MinPort = 1024
	MaxPort = 65535
)

// DefaultMaxAttempts is the number of candidates tried before giving up.
const DefaultMaxAttempts = 13

// Probe reports whether port can currently be bound. The default probe binds
// TCP on all interfaces and closes the listener again.
type Probe func(port int) error

// AttemptObserver is notified of every candidate tried and whether it bound.
type AttemptObserver func(port int, ok bool)

// Allocator hands out free ports. It is safe for concurrent use.
type Allocator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probe       Probe
	maxAttempts int
	observe     AttemptObserver
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithMaxAttempts bounds the number of candidates tried per port.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithProbe replaces the bind check.
func WithProbe(p Probe) Option {
	return func(a *Allocator) {
		if p != nil {
			a.probe = p
		}
	}
}

// WithSource seeds the candidate generator, making allocation deterministic.
func WithSource(src rand.Source) Option {
	return func(a *Allocator) {
		a.rng = rand.New(src)
	}
}

// WithObserver registers a callback for every attempt.
func WithObserver(fn AttemptObserver) Option {
	return func(a *Allocator) {
		a.observe = fn
	}
}

// New creates an Allocator.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		probe:       BindProbe,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BindProbe binds TCP on port across all interfaces and releases it.
func BindProbe(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// Allocate returns one free port.
func (a *Allocator) Allocate() (int, error) {
	return a.allocate(nil)
}

// AllocateN returns n pairwise-distinct free ports. A candidate already handed
// out in this call counts as a failed attempt.
func (a *Allocator) AllocateN(n int) ([]int, error) {
	if n < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "cannot allocate %d ports", n)
	}
	ports := make([]int, 0, n)
	taken := make(map[int]bool, n)
	for len(ports) < n {
		port, err := a.allocate(taken)
		if err != nil {
			return nil, err
		}
		taken[port] = true
		ports = append(ports, port)
	}
	return ports, nil
}

func (a *Allocator) allocate(taken map[int]bool) (int, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		port := a.candidate()
		if taken[port] {
			a.notify(port, false)
			continue
		}
		if err := a.probe(port); err != nil {
			lastErr = err
			a.notify(port, false)
			continue
		}
		a.notify(port, true)
		return port, nil
	}

	cause := errors.ErrPortsExhausted
	if lastErr != nil {
		cause = errors.Join(errors.ErrPortsExhausted, lastErr)
	}
	return 0, errors.NewResourceError("tcp port", a.maxAttempts, cause)
}

func (a *Allocator) candidate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return MinPort + a.rng.IntN(MaxPort-MinPort+1)
}

func (a *Allocator) notify(port int, ok bool) {
	if a.observe != nil {
		a.observe(port, ok)
	}
}
