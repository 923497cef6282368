package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/internal/bus/eventbus"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/schema"
)

type memoryWriter struct {
	mu     sync.Mutex
	events   []*schema.Event
	attempts int
	fail     bool
}

func (w *memoryWriter) Insert(_ context.Context, evt *schema.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.fail {
		return errors.New("connection refused")
	}
	w.events = append(w.events, evt)
	return nil
}

func (w *memoryWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestSinkWritesExecutionTopicOnly(t *testing.T) {
	bus := eventbus.NewMemoryBus(eventbus.MemoryConfig{BufferSize: 8}, observability.NopLogger())
	defer bus.Close()
	writer := &memoryWriter{}
	sink := NewSink(bus, writer, observability.NopLogger())
	require.NoError(t, sink.Start(context.Background()))
	require.Error(t, sink.Start(context.Background()))

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, bus.Publish(ctx, schema.NewEvent(schema.EventTypeOrderStatusUpdate, "AAPL", now,
		schema.OrderStatusUpdatePayload{OrderID: 1, Status: schema.OrderStatusNew})))
	require.NoError(t, bus.Publish(ctx, schema.NewEvent(schema.EventTypeQuote, "AAPL", now,
		schema.QuotePayload{Bid: 1, Ask: 2})))
	require.NoError(t, bus.Publish(ctx, schema.NewEvent(schema.EventTypeExecutionReport, "AAPL", now,
		schema.ExecutionReportPayload{OrderID: 1, ExecID: "e-1"})))

	require.Eventually(t, func() bool { return writer.count() == 2 }, time.Second, 5*time.Millisecond)
	sink.Stop()
	sink.Stop()

	require.Equal(t, schema.EventTypeOrderStatusUpdate, writer.events[0].Type)
	require.Equal(t, schema.EventTypeExecutionReport, writer.events[1].Type)
}

func TestSinkSurvivesWriteErrors(t *testing.T) {
	bus := eventbus.NewMemoryBus(eventbus.MemoryConfig{}, observability.NopLogger())
	defer bus.Close()
	writer := &memoryWriter{fail: true}
	sink := NewSink(bus, writer, observability.NopLogger())
	require.NoError(t, sink.Start(context.Background()))

	evt := schema.NewEvent(schema.EventTypeExecutionReport, "AAPL", time.Now(), schema.ExecutionReportPayload{OrderID: 3})
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.Eventually(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return writer.attempts == 1
	}, time.Second, 5*time.Millisecond)

	writer.mu.Lock()
	writer.fail = false
	writer.mu.Unlock()
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, 5*time.Millisecond)
	sink.Stop()
}
