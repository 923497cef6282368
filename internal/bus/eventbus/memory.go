package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	concpool "github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/schema"
	"github.com/coachpo/tickwire/internal/telemetry"
)

// MemoryBus is an in-memory implementation of the event bus. Events are
// shared read-only between subscribers.
type MemoryBus struct {
	cfg MemoryConfig
	log observability.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	subscribers  map[schema.Topic]map[SubscriptionID]*subscriber
	shutdownOnce sync.Once
	nextID       uint64

	publishedCounter metric.Int64Counter
	droppedCounter   metric.Int64Counter
	fanoutHistogram  metric.Int64Histogram
	publishDuration  metric.Float64Histogram
}

type subscriber struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan *schema.Event
	once   sync.Once
	// sendMu orders concurrent deliveries against close.
	sendMu sync.Mutex
	closed bool
}

// NewMemoryBus constructs a memory-backed event bus.
func NewMemoryBus(cfg MemoryConfig, logger observability.Logger) *MemoryBus {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	bus := new(MemoryBus)
	bus.cfg = cfg
	bus.log = observability.OrDefault(logger)
	bus.ctx = ctx
	bus.cancel = cancel
	bus.subscribers = make(map[schema.Topic]map[SubscriptionID]*subscriber)

	meter := otel.Meter("eventbus")
	bus.publishedCounter, _ = meter.Int64Counter(telemetry.MetricBusPublished,
		metric.WithDescription("Number of events published to the bus"),
		metric.WithUnit("{event}"))
	bus.droppedCounter, _ = meter.Int64Counter(telemetry.MetricBusDropped,
		metric.WithDescription("Deliveries dropped due to subscriber backpressure"),
		metric.WithUnit("{event}"))
	bus.fanoutHistogram, _ = meter.Int64Histogram(telemetry.MetricFanoutSize,
		metric.WithDescription("Number of subscribers per fanout"),
		metric.WithUnit("{subscriber}"))
	bus.publishDuration, _ = meter.Float64Histogram("eventbus.publish.duration",
		metric.WithDescription("Latency of eventbus publish operations"),
		metric.WithUnit("ms"))
	return bus
}

// Publish fans the event out to all subscribers of its topic.
func (b *MemoryBus) Publish(ctx context.Context, evt *schema.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if evt == nil {
		return nil
	}
	if evt.Topic == "" {
		return errs.New("eventbus/publish", errs.CodeInvalid, errs.WithMessage("event topic required"))
	}
	if b.ctx.Err() != nil {
		return errs.New("eventbus/publish", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	}

	start := time.Now()
	attrs := telemetry.EventAttributes(string(evt.Type), string(evt.Topic))
	defer func() {
		if b.publishDuration != nil {
			b.publishDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(attrs...))
		}
	}()

	b.mu.RLock()
	subMap := b.subscribers[evt.Topic]
	subscribers := make([]*subscriber, 0, len(subMap))
	for _, sub := range subMap {
		subscribers = append(subscribers, sub)
	}
	b.mu.RUnlock()

	n := len(subscribers)
	if b.fanoutHistogram != nil {
		b.fanoutHistogram.Record(ctx, int64(n), metric.WithAttributes(attrs...))
	}
	if n == 0 {
		return nil
	}

	if n == 1 {
		b.deliver(ctx, subscribers[0], evt)
	} else {
		p := concpool.New().WithMaxGoroutines(b.cfg.FanoutWorkers)
		for _, sub := range subscribers {
			p.Go(func() { b.deliver(ctx, sub, evt) })
		}
		p.Wait()
	}

	if b.publishedCounter != nil {
		b.publishedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return nil
}

// Subscribe registers for events of the given topic and returns a subscription ID and channel.
// The channel is closed on Unsubscribe, when ctx ends, or when the bus closes.
func (b *MemoryBus) Subscribe(ctx context.Context, topic schema.Topic) (SubscriptionID, <-chan *schema.Event, error) {
	if topic == "" {
		return "", nil, errs.New("eventbus/subscribe", errs.CodeInvalid, errs.WithMessage("topic required"))
	}
	if b.ctx.Err() != nil {
		return "", nil, errs.New("eventbus/subscribe", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	sub := new(subscriber)
	sub.ctx = ctx
	sub.cancel = cancel
	sub.ch = make(chan *schema.Event, b.cfg.BufferSize)

	id := SubscriptionID(fmt.Sprintf("sub-%d", atomic.AddUint64(&b.nextID, 1)))

	b.mu.Lock()
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[SubscriptionID]*subscriber)
	}
	b.subscribers[topic][id] = sub
	b.mu.Unlock()

	go b.observe(topic, id, sub)
	return id, sub.ch, nil
}

// Unsubscribe removes the subscription and closes the channel.
func (b *MemoryBus) Unsubscribe(id SubscriptionID) {
	if id == "" {
		return
	}
	b.mu.Lock()
	for topic, subs := range b.subscribers {
		if sub, ok := subs[id]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subscribers, topic)
			}
			b.mu.Unlock()
			sub.close()
			return
		}
	}
	b.mu.Unlock()
}

// Close shuts down the bus and all subscriptions.
func (b *MemoryBus) Close() {
	b.shutdownOnce.Do(func() {
		b.cancel()
		b.mu.Lock()
		for topic, subs := range b.subscribers {
			for id, sub := range subs {
				sub.close()
				delete(subs, id)
			}
			delete(b.subscribers, topic)
		}
		b.mu.Unlock()
	})
}

func (b *MemoryBus) observe(topic schema.Topic, id SubscriptionID, sub *subscriber) {
	select {
	case <-sub.ctx.Done():
	case <-b.ctx.Done():
	}
	b.mu.Lock()
	if subs := b.subscribers[topic]; subs != nil {
		if stored, ok := subs[id]; ok && stored == sub {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subscribers, topic)
			}
		}
	}
	b.mu.Unlock()
	sub.close()
}

// deliver never blocks: a full buffer loses its oldest event.
func (b *MemoryBus) deliver(ctx context.Context, sub *subscriber, evt *schema.Event) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.ch <- evt:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}
	b.log.Warn("subscriber buffer full; dropped oldest event",
		observability.F("topic", string(evt.Topic)),
		observability.F("event_type", string(evt.Type)))
	if b.droppedCounter != nil {
		b.droppedCounter.Add(ctx, 1, metric.WithAttributes(
			telemetry.EventAttributes(string(evt.Type), string(evt.Topic))...))
	}
	select {
	case sub.ch <- evt:
	default:
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		s.cancel()
		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
	})
}
