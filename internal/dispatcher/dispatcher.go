// Package dispatcher turns gateway callbacks into deduplicated domain events.
//
// A Dispatcher is driven by exactly one goroutine (the ingestion loop). It
// resolves each callback against the correlation registries, updates the
// per-subscription scratch record and publishes the events that pass the
// emission gates. A callback that cannot be resolved or decoded is logged and
// dropped; Dispatch never fails.
package dispatcher

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/registry"
	"github.com/coachpo/tickwire/internal/schema"
	"github.com/coachpo/tickwire/internal/telemetry"
)

// Publisher receives emitted domain events. Publish is called synchronously
// on the ingestion goroutine and must not block.
type Publisher interface {
	Publish(ctx context.Context, evt *schema.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt *schema.Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, evt *schema.Event) error { return f(ctx, evt) }

// SeriesRecorder appends market-data events into time series.
type SeriesRecorder interface {
	Record(evt *schema.Event) error
}

// OrderSequence is advanced when the venue reports its next valid order id.
type OrderSequence interface {
	Advance(min int64) bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dropped callbacks.
func WithLogger(l observability.Logger) Option {
	return func(d *Dispatcher) { d.log = observability.OrDefault(l) }
}

// WithRecorder records market-data events before they are published.
func WithRecorder(r SeriesRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithOrderSequence lets next-valid-id callbacks advance the order id sequence.
func WithOrderSequence(seq OrderSequence) Option {
	return func(d *Dispatcher) { d.orderSeq = seq }
}

// WithClock overrides the clock stamping tick events.
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLocation sets the zone used for venue timestamps without one.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithDeadLetterQueue keeps dropped callbacks for later inspection.
func WithDeadLetterQueue(q *observability.DeadLetterQueue) Option {
	return func(d *Dispatcher) { d.dlq = q }
}

// Dispatcher converts gateway callbacks into domain events.
type Dispatcher struct {
	subs      *registry.SubscriptionRegistry
	orders    *registry.OrderRegistry
	publisher Publisher
	recorder  SeriesRecorder
	orderSeq  OrderSequence
	clock     func() time.Time
	loc       *time.Location
	log       observability.Logger
	dlq       *observability.DeadLetterQueue

	processed metric.Int64Counter
	dropped   metric.Int64Counter
	emitted   metric.Int64Counter
	duration  metric.Float64Histogram
}

// New constructs a dispatcher over the given registries and publisher.
func New(subs *registry.SubscriptionRegistry, orders *registry.OrderRegistry, publisher Publisher, opts ...Option) (*Dispatcher, error) {
	if subs == nil || orders == nil {
		return nil, errs.New("dispatcher/new", errs.CodeInvalid, errs.WithMessage("registries required"))
	}
	if publisher == nil {
		return nil, errs.New("dispatcher/new", errs.CodeInvalid, errs.WithMessage("publisher required"))
	}
	d := &Dispatcher{
		subs:      subs,
		orders:    orders,
		publisher: publisher,
		clock:     func() time.Time { return time.Now().UTC() },
		loc:       time.UTC,
		log:       observability.Log(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	meter := otel.Meter("dispatcher")
	d.processed, _ = meter.Int64Counter(telemetry.MetricCallbacksProcessed,
		metric.WithDescription("Gateway callbacks handled by the dispatcher"),
		metric.WithUnit("{callback}"))
	d.dropped, _ = meter.Int64Counter(telemetry.MetricCallbacksDropped,
		metric.WithDescription("Gateway callbacks dropped at the dispatch boundary"),
		metric.WithUnit("{callback}"))
	d.emitted, _ = meter.Int64Counter(telemetry.MetricEventsEmitted,
		metric.WithDescription("Domain events emitted"),
		metric.WithUnit("{event}"))
	d.duration, _ = meter.Float64Histogram(telemetry.MetricCallbackDuration,
		metric.WithDescription("Callback handling latency"),
		metric.WithUnit("ms"))
	return d, nil
}

// Dispatch handles one callback to completion. Failures are logged and the
// callback is discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, cb gateway.Callback) {
	if cb == nil {
		return
	}
	start := time.Now()
	name := kind(cb)

	err := d.route(ctx, cb)

	result := telemetry.ResultSuccess
	if err != nil {
		result = telemetry.ResultDropped
		d.drop(ctx, cb, err)
	}
	if d.processed != nil {
		d.processed.Add(ctx, 1, metric.WithAttributes(telemetry.CallbackAttributes(name, result)...))
	}
	if d.duration != nil {
		d.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(telemetry.CallbackAttributes(name, result)...))
	}
}

func (d *Dispatcher) route(ctx context.Context, cb gateway.Callback) error {
	switch c := cb.(type) {
	case gateway.TickPrice:
		return d.onTickPrice(ctx, c)
	case gateway.TickSize:
		return d.onTickSize(ctx, c)
	case gateway.HistoricalBar:
		return d.onHistoricalBar(ctx, c)
	case gateway.RealtimeBar:
		return d.onRealtimeBar(ctx, c)
	case gateway.DepthUpdate:
		return d.onDepth(ctx, c)
	case gateway.OrderStatus:
		return d.onOrderStatus(ctx, c)
	case gateway.ExecDetails:
		return d.onExecDetails(ctx, c)
	case gateway.NextValidID:
		d.onNextValidID(c)
		return nil
	case gateway.GatewayError:
		d.onGatewayError(c)
		return nil
	case gateway.ConnectionClosed:
		d.log.Warn("gateway reported connection closed")
		return nil
	default:
		return errs.New("dispatcher/route", errs.CodeMalformedCallback,
			errs.WithMessage("unsupported callback"), errs.WithField("callback", kind(cb)))
	}
}

func kind(cb gateway.Callback) string { return string(cb.Kind()) }

// emit records and publishes one event. Neither failure stops the callback.
func (d *Dispatcher) emit(ctx context.Context, evt *schema.Event) {
	if d.recorder != nil && evt.Topic == schema.TopicMarketData {
		if err := d.recorder.Record(evt); err != nil {
			d.log.Warn("time series write rejected",
				observability.F("event_type", string(evt.Type)),
				observability.F("instrument", string(evt.Instrument)),
				observability.Err(err))
		}
	}
	if err := d.publisher.Publish(ctx, evt); err != nil {
		d.log.Error("publish failed",
			observability.F("event_type", string(evt.Type)),
			observability.F("event_id", evt.EventID),
			observability.Err(err))
		return
	}
	if d.emitted != nil {
		d.emitted.Add(ctx, 1, metric.WithAttributes(telemetry.EventAttributes(string(evt.Type), string(evt.Topic))...))
	}
	d.log.Debug("event emitted",
		observability.F("event_type", string(evt.Type)),
		observability.F("instrument", string(evt.Instrument)))
}

func (d *Dispatcher) drop(ctx context.Context, cb gateway.Callback, err error) {
	reason := "error"
	var e *errs.E
	if errors.As(err, &e) {
		reason = string(e.Code)
	}
	refKey, ref := callbackRef(cb)
	d.log.Warn("callback dropped",
		observability.F("callback", kind(cb)),
		observability.F(refKey, ref),
		observability.F("reason", reason),
		observability.Err(err))
	if d.dropped != nil {
		d.dropped.Add(ctx, 1, metric.WithAttributes(telemetry.DropAttributes(kind(cb), reason)...))
	}
	if d.dlq != nil {
		d.dlq.Offer(observability.DroppedCallback{
			At:       d.clock(),
			Callback: kind(cb),
			Ref:      ref,
			Reason:   reason,
			Detail:   err.Error(),
		})
	}
}

func callbackRef(cb gateway.Callback) (string, int64) {
	switch c := cb.(type) {
	case gateway.TickPrice:
		return "correlation_id", int64(c.ID)
	case gateway.TickSize:
		return "correlation_id", int64(c.ID)
	case gateway.HistoricalBar:
		return "correlation_id", int64(c.ID)
	case gateway.RealtimeBar:
		return "correlation_id", int64(c.ID)
	case gateway.DepthUpdate:
		return "correlation_id", int64(c.ID)
	case gateway.OrderStatus:
		return "order_id", int64(c.OrderID)
	case gateway.ExecDetails:
		return "order_id", int64(c.OrderID)
	case gateway.GatewayError:
		return "ref_id", c.ID
	default:
		return "ref_id", -1
	}
}

func unresolved(op, key string, id int64) error {
	return errs.New(op, errs.CodeUnresolvedCorrelation,
		errs.WithMessage("no binding for "+key),
		errs.WithField(key, strconv.FormatInt(id, 10)))
}

func malformedField(op, msg string) error {
	return errs.New(op, errs.CodeMalformedCallback, errs.WithMessage(msg))
}
