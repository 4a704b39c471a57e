package event_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/modules/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type failedHandler struct {
	received chan *core.JobFailed
	failures int32
	calls    atomic.Int32
}

func (h *failedHandler) Handle(ctx context.Context, e *core.JobFailed) error {
	if h.calls.Add(1) <= h.failures {
		return errors.New("not yet")
	}
	h.received <- e
	return nil
}

func startBus(t *testing.T, cfg event.Config, subscribe func(bus *event.Bus)) *event.Bus {
	t.Helper()
	bus, err := event.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.NoError(t, err)
	subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = bus.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
	})

	select {
	case <-bus.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("event bus did not start")
	}
	return bus
}

func jobFailed() *core.JobFailed {
	return &core.JobFailed{
		ScheduleEvent: core.ScheduleEvent{
			ID:    "evt-1",
			Job:   "report",
			Group: "reports",
			At:    time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC),
		},
		ExecutionID: "exec-1",
		Duration:    3 * time.Second,
		Error:       "disk full",
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	handler := &failedHandler{received: make(chan *core.JobFailed, 1)}
	bus := startBus(t, event.DefaultConfig(), func(bus *event.Bus) {
		require.NoError(t, core.SubscribeEvent[*core.JobFailed](bus, handler))
	})

	require.NoError(t, bus.Publish(context.Background(), jobFailed()))

	select {
	case got := <-handler.received:
		assert.Equal(t, "report", got.Job)
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, 3*time.Second, got.Duration)
		assert.Equal(t, "disk full", got.Error)
		assert.True(t, got.OccurredOn().Equal(jobFailed().At))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_RetriesFailedHandlers(t *testing.T) {
	handler := &failedHandler{received: make(chan *core.JobFailed, 1), failures: 2}
	cfg := event.DefaultConfig()
	cfg.InitialInterval = "1ms"
	cfg.MaxInterval = "5ms"
	bus := startBus(t, cfg, func(bus *event.Bus) {
		require.NoError(t, core.SubscribeEvent[*core.JobFailed](bus, handler))
	})

	require.NoError(t, bus.Publish(context.Background(), jobFailed()))

	select {
	case <-handler.received:
		assert.Equal(t, int32(3), handler.calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for retried event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	first := &failedHandler{received: make(chan *core.JobFailed, 1)}
	second := &failedHandler{received: make(chan *core.JobFailed, 1)}
	bus := startBus(t, event.DefaultConfig(), func(bus *event.Bus) {
		require.NoError(t, core.SubscribeEvent[*core.JobFailed](bus, first))
		require.NoError(t, core.SubscribeEvent[*core.JobFailed](bus, second))
	})

	require.NoError(t, bus.Publish(context.Background(), jobFailed()))
	for _, h := range []*failedHandler{first, second} {
		select {
		case <-h.received:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestBus_PropagatesTraceContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	handler := &failedHandler{received: make(chan *core.JobFailed, 1)}
	cfg := event.DefaultConfig()
	cfg.Tracing = true
	bus := startBus(t, cfg, func(bus *event.Bus) {
		require.NoError(t, core.SubscribeEvent[*core.JobFailed](bus, handler))
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	require.NoError(t, bus.Publish(ctx, jobFailed()))
	span.End()

	select {
	case <-handler.received:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	require.Eventually(t, func() bool { return len(recorder.Ended()) == 2 }, 2*time.Second, 5*time.Millisecond)
	var consumer sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "handle "+core.EventJobFailed {
			consumer = s
		}
	}
	require.NotNil(t, consumer)
	assert.Equal(t, span.SpanContext().TraceID(), consumer.SpanContext().TraceID())
}
