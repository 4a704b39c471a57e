package scheduler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/modules/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 5, 4, hour, minute, 0, 0, time.UTC)
}

type eventLog struct {
	mu     sync.Mutex
	events []core.Event
}

func (l *eventLog) Publish(_ context.Context, event core.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) named(name string) []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.Event
	for _, e := range l.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// runs records the executions of a job.
type runs struct {
	mu    sync.Mutex
	execs []core.Execution
}

func (r *runs) job() core.JobFunc {
	return func(ctx context.Context) error {
		exec, _ := core.ExecutionFromContext(ctx)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.execs = append(r.execs, *exec)
		return nil
	}
}

func (r *runs) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.execs)
}

func (r *runs) all() []core.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Execution(nil), r.execs...)
}

// blocker is an interruptible job that runs until its context is cancelled.
type blocker struct {
	started     chan struct{}
	done        chan error
	interrupts  int
	interruptMu sync.Mutex
	interruptFn func() error
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}), done: make(chan error, 1)}
}

func (b *blocker) Operate(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	b.done <- ctx.Err()
	return ctx.Err()
}

func (b *blocker) Interrupt() error {
	b.interruptMu.Lock()
	b.interrupts++
	b.interruptMu.Unlock()
	if b.interruptFn != nil {
		return b.interruptFn()
	}
	return nil
}

func (b *blocker) interrupted() int {
	b.interruptMu.Lock()
	defer b.interruptMu.Unlock()
	return b.interrupts
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScheduler(t *testing.T, opts ...scheduler.Option) (*scheduler.InMemoryScheduler, *clockwork.FakeClock, *eventLog) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	events := &eventLog{}
	base := []scheduler.Option{
		scheduler.WithClock(clock),
		scheduler.WithLogger(discardLogger()),
		scheduler.WithEventPublisher(events),
	}
	s, err := scheduler.NewInMemoryScheduler(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.ShutdownGracefully(0)
	})
	return s, clock, events
}

func waitForTimers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func slogTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}
