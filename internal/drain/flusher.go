package drain

import (
	"sync"
	"time"

	"github.com/Iron-Ham/instamo/internal/logging"
)

// DefaultFlushInterval is the periodic flush interval.
const DefaultFlushInterval = time.Second

// Flusher periodically flushes registered drains. Closed drains are pruned
// on every tick. It is safe for concurrent use.
type Flusher struct {
	interval time.Duration
	logger   *logging.Logger

	mu    sync.Mutex
	tasks []Task

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewFlusher creates a stopped Flusher. A non-positive interval selects
// DefaultFlushInterval.
func NewFlusher(interval time.Duration, logger *logging.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Flusher{
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register adds a task to the flush set.
func (f *Flusher) Register(t Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
}

// Len returns the number of tasks currently tracked.
func (f *Flusher) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// Start launches the ticker goroutine.
func (f *Flusher) Start() {
	f.startOnce.Do(func() {
		go f.loop()
	})
}

func (f *Flusher) loop() {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.FlushAll()
		}
	}
}

// FlushAll flushes every live task and prunes closed ones.
func (f *Flusher) FlushAll() {
	f.mu.Lock()
	live := f.tasks[:0]
	var toFlush []Task
	for _, t := range f.tasks {
		if t.State() == StateClosed {
			continue
		}
		live = append(live, t)
		toFlush = append(toFlush, t)
	}
	for i := len(live); i < len(f.tasks); i++ {
		f.tasks[i] = nil
	}
	f.tasks = live
	f.mu.Unlock()

	for _, t := range toFlush {
		if err := t.Flush(); err != nil {
			f.logger.Warn("periodic log flush failed", "error", err)
		}
	}
}

// Stop stops the ticker and performs a final flush. It is idempotent and
// safe to call on a Flusher that was never started.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
		started := true
		f.startOnce.Do(func() { started = false })
		if started {
			<-f.doneCh
		}
		f.FlushAll()
	})
}
