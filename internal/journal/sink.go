package journal

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/tickwire/internal/bus/eventbus"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/schema"
)

// Writer appends one execution event to durable storage.
type Writer interface {
	Insert(ctx context.Context, evt *schema.Event) error
}

// Sink drains the execution topic into a Writer.
type Sink struct {
	bus    eventbus.Bus
	writer Writer
	logger observability.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	subID   eventbus.SubscriptionID
	wg      conc.WaitGroup
	running bool
}

// NewSink wires a writer to the bus.
func NewSink(bus eventbus.Bus, writer Writer, logger observability.Logger) *Sink {
	return &Sink{bus: bus, writer: writer, logger: observability.OrDefault(logger)}
}

// Start subscribes to the execution topic and writes events until Stop or ctx ends.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("journal sink already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	id, events, err := s.bus.Subscribe(runCtx, schema.TopicExecution)
	if err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.subID = id
	s.running = true
	s.wg.Go(func() { s.run(runCtx, events) })
	return nil
}

func (s *Sink) run(ctx context.Context, events <-chan *schema.Event) {
	for evt := range events {
		// Buffered events are still written after cancellation.
		if err := s.writer.Insert(context.WithoutCancel(ctx), evt); err != nil {
			s.logger.Error("journal write failed",
				observability.F("event_id", evt.EventID),
				observability.F("type", string(evt.Type)),
				observability.Err(err))
		}
	}
}

// Stop unsubscribes and waits for the writer goroutine to drain.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.bus.Unsubscribe(s.subID)
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
