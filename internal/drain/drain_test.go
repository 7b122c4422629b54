package drain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a WriteCloser safe for the concurrent reads tests make.
type syncBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	err    error
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	return b.buf.Write(p)
}

func (b *syncBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type countingObserver struct {
	mu      sync.Mutex
	bytes   int
	flushes int
	errs    map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{errs: make(map[string]int)}
}

func (o *countingObserver) DrainBytes(_, _ string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bytes += n
}

func (o *countingObserver) DrainFlush(_, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes++
}

func (o *countingObserver) DrainError(_, _, op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[op]++
}

func waitClosed(t *testing.T, d *Drain) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("drain did not close: %v", err)
	}
}

func TestDrain_CopiesLinesUntilEOF(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"single line", "hello\n", "hello\n"},
		{"missing final newline", "a\nb", "a\nb\n"},
		{"crlf normalised", "a\r\nb\r\n", "a\nb\n"},
		{"blank lines kept", "\n\nx\n", "\n\nx\n"},
		{"long line", strings.Repeat("x", 200000) + "\n", strings.Repeat("x", 200000) + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &syncBuffer{}
			d := New(io.NopCloser(strings.NewReader(tt.input)), dst)

			if d.State() != StateIdle {
				t.Fatalf("initial state = %v, want idle", d.State())
			}
			d.Start()
			waitClosed(t, d)

			if d.State() != StateClosed {
				t.Errorf("state = %v, want closed", d.State())
			}
			if got := dst.String(); got != tt.want {
				t.Errorf("log = %q, want %q", got, tt.want)
			}
			if !dst.isClosed() {
				t.Error("log file was not closed")
			}
		})
	}
}

func TestDrain_FlushWhileDraining(t *testing.T) {
	pr, pw := io.Pipe()
	dst := &syncBuffer{}
	obs := newCountingObserver()
	d := New(pr, dst, WithLabels("master", "out"), WithObserver(obs))
	d.Start()

	if _, err := pw.Write([]byte("line one\n")); err != nil {
		t.Fatal(err)
	}

	// The line sits in the buffered writer until a flush.
	deadline := time.Now().Add(5 * time.Second)
	for dst.String() == "" && time.Now().Before(deadline) {
		if err := d.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if dst.String() != "line one\n" {
		t.Fatalf("flushed content = %q", dst.String())
	}
	if d.State() != StateDraining {
		t.Errorf("state = %v, want draining", d.State())
	}
	if dst.isClosed() {
		t.Error("flush must not close the log file")
	}

	_ = pw.Close()
	waitClosed(t, d)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.bytes != len("line one\n") {
		t.Errorf("observed bytes = %d, want %d", obs.bytes, len("line one\n"))
	}
	if obs.flushes == 0 {
		t.Error("expected at least one observed flush")
	}
}

func TestDrain_FlushAfterCloseIsNoop(t *testing.T) {
	d := New(io.NopCloser(strings.NewReader("x\n")), &syncBuffer{})
	d.Start()
	waitClosed(t, d)

	for i := 0; i < 3; i++ {
		if err := d.Flush(); err != nil {
			t.Errorf("Flush after close = %v, want nil", err)
		}
	}
}

func TestDrain_StartIsIdempotent(t *testing.T) {
	dst := &syncBuffer{}
	d := New(io.NopCloser(strings.NewReader("once\n")), dst)
	d.Start()
	d.Start()
	waitClosed(t, d)
	d.Start()

	if dst.String() != "once\n" {
		t.Errorf("log = %q, want %q", dst.String(), "once\n")
	}
}

func TestDrain_WriteErrorsAreNotFatal(t *testing.T) {
	dst := &syncBuffer{err: errors.New("disk full")}
	obs := newCountingObserver()
	input := strings.Repeat("0123456789abcdef\n", 1000)

	d := New(io.NopCloser(strings.NewReader(input)), dst, WithObserver(obs))
	d.Start()
	waitClosed(t, d)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.errs["write"] == 0 {
		t.Error("expected write errors to be observed")
	}
}

func TestDrain_AbortEndsBlockedRead(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := pr.SetReadDeadline(time.Time{}); err != nil {
		t.Skipf("pipe deadlines unsupported: %v", err)
	}
	defer pw.Close()

	dst := &syncBuffer{}
	obs := newCountingObserver()
	d := New(pr, dst, WithObserver(obs))
	d.Start()

	if _, err := pw.WriteString("before abort\n"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	// The writer stays open, as if a grandchild still held the pipe.
	d.Abort()
	waitClosed(t, d)

	if dst.String() != "before abort\n" {
		t.Errorf("log = %q, want %q", dst.String(), "before abort\n")
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.errs["read"] != 0 {
		t.Errorf("abort should not count as a read error, got %d", obs.errs["read"])
	}
}

func TestDrain_ReadDeadlineEndsDrain(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pw.Close()
	if err := pr.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Skipf("pipe deadlines unsupported: %v", err)
	}

	d := New(pr, &syncBuffer{})
	d.Start()
	waitClosed(t, d)
}

func TestDrain_WritesToRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tserver_1.err")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	d := New(io.NopCloser(strings.NewReader("stack trace\n\tat frame\n")), f)
	d.Start()
	waitClosed(t, d)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "stack trace\n\tat frame\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestDrain_WaitHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	d := New(pr, &syncBuffer{})
	d.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}

	_ = pw.Close()
	waitClosed(t, d)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:     "idle",
		StateDraining: "draining",
		StateClosed:   "closed",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
