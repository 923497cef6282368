package dispatcher

import (
	"context"
	"time"

	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/registry"
	"github.com/coachpo/tickwire/internal/schema"
)

// fieldGroup says which gate a changed tick field feeds.
type fieldGroup int

const (
	groupNone fieldGroup = iota
	groupQuote
	groupTrade
)

func (d *Dispatcher) scratch(op string, id schema.CorrelationID) (*registry.ScratchRecord, error) {
	rec, ok := d.subs.Scratch(id)
	if !ok {
		return nil, unresolved(op, "correlation_id", int64(id))
	}
	return rec, nil
}

func (d *Dispatcher) onTickPrice(ctx context.Context, cb gateway.TickPrice) error {
	rec, err := d.scratch("dispatcher/tick_price", cb.ID)
	if err != nil {
		return err
	}
	var (
		slot  *float64
		group fieldGroup
	)
	switch cb.Field {
	case gateway.TickBid:
		slot, group = &rec.Bid, groupQuote
	case gateway.TickAsk:
		slot, group = &rec.Ask, groupQuote
	case gateway.TickLast:
		slot, group = &rec.Last, groupTrade
	case gateway.TickOpen:
		slot = &rec.Open
	case gateway.TickHigh:
		slot = &rec.High
	case gateway.TickLow:
		slot = &rec.Low
	case gateway.TickClose:
		slot = &rec.Close
	default:
		d.log.Debug("tick price field ignored",
			observability.F("correlation_id", int64(cb.ID)),
			observability.F("field", cb.Field))
		return nil
	}
	changed := *slot != cb.Price
	*slot = cb.Price
	if changed {
		d.applyGates(ctx, rec, group)
	}
	return nil
}

func (d *Dispatcher) onTickSize(ctx context.Context, cb gateway.TickSize) error {
	rec, err := d.scratch("dispatcher/tick_size", cb.ID)
	if err != nil {
		return err
	}
	var (
		slot  *int64
		group fieldGroup
	)
	switch cb.Field {
	case gateway.TickBidSize:
		slot, group = &rec.BidSize, groupQuote
	case gateway.TickAskSize:
		slot, group = &rec.AskSize, groupQuote
	case gateway.TickLastSize:
		slot, group = &rec.LastSize, groupTrade
	case gateway.TickVolume:
		slot = &rec.Volume
	default:
		d.log.Debug("tick size field ignored",
			observability.F("correlation_id", int64(cb.ID)),
			observability.F("field", cb.Field))
		return nil
	}
	changed := *slot != cb.Size
	*slot = cb.Size
	if changed {
		d.applyGates(ctx, rec, group)
	}
	return nil
}

// applyGates emits a Quote only once both sides are known and a Trade only
// once a positive last price is known.
func (d *Dispatcher) applyGates(ctx context.Context, rec *registry.ScratchRecord, group fieldGroup) {
	switch group {
	case groupQuote:
		if rec.QuoteInterest && rec.Bid > 0 && rec.Ask > 0 {
			d.emit(ctx, schema.NewEvent(schema.EventTypeQuote, rec.Instrument, d.clock(), schema.QuotePayload{
				Bid:     rec.Bid,
				BidSize: rec.BidSize,
				Ask:     rec.Ask,
				AskSize: rec.AskSize,
			}))
		}
	case groupTrade:
		if rec.TradeInterest && rec.Last > 0 {
			d.emit(ctx, schema.NewEvent(schema.EventTypeTrade, rec.Instrument, d.clock(), schema.TradePayload{
				Price: rec.Last,
				Size:  rec.LastSize,
			}))
		}
	case groupNone:
	}
}

type barFields struct {
	open, high, low, close float64
	volume                 int64
}

func (d *Dispatcher) onHistoricalBar(ctx context.Context, cb gateway.HistoricalBar) error {
	const op = "dispatcher/historical_bar"
	if gateway.IsHistoricalEnd(cb.Date) {
		if d.subs.Unbind(cb.ID) {
			d.log.Info("historical request finished", observability.F("correlation_id", int64(cb.ID)))
		}
		return nil
	}
	if cb.BarCount < 0 {
		d.log.Debug("bar without data ignored", observability.F("correlation_id", int64(cb.ID)))
		return nil
	}
	ts, err := gateway.ParseVenueTime(cb.Date, d.loc)
	if err != nil {
		return malformedField(op, err.Error())
	}
	return d.bar(ctx, op, cb.ID, ts, barFields{cb.Open, cb.High, cb.Low, cb.Close, cb.Volume})
}

func (d *Dispatcher) onRealtimeBar(ctx context.Context, cb gateway.RealtimeBar) error {
	if cb.Count < 0 {
		d.log.Debug("bar without data ignored", observability.F("correlation_id", int64(cb.ID)))
		return nil
	}
	ts := time.Unix(cb.Time, 0).UTC()
	return d.bar(ctx, "dispatcher/realtime_bar", cb.ID, ts, barFields{cb.Open, cb.High, cb.Low, cb.Close, cb.Volume})
}

func (d *Dispatcher) bar(ctx context.Context, op string, id schema.CorrelationID, ts time.Time, f barFields) error {
	desc, ok := d.subs.Resolve(id)
	if !ok {
		return unresolved(op, "correlation_id", int64(id))
	}
	if rec, ok := d.subs.Scratch(id); ok {
		rec.Open, rec.High, rec.Low, rec.Close, rec.Volume = f.open, f.high, f.low, f.close, f.volume
	}
	d.emit(ctx, schema.NewEvent(schema.EventTypeBar, desc.Instrument, ts, schema.BarPayload{
		Open:    f.open,
		High:    f.high,
		Low:     f.low,
		Close:   f.close,
		Volume:  f.volume,
		BarSize: desc.BarSize,
	}))
	return nil
}

func (d *Dispatcher) onDepth(ctx context.Context, cb gateway.DepthUpdate) error {
	const op = "dispatcher/depth_update"
	desc, ok := d.subs.Resolve(cb.ID)
	if !ok {
		return unresolved(op, "correlation_id", int64(cb.ID))
	}
	operation, ok := depthOperation(cb.Operation)
	if !ok {
		return malformedField(op, "unknown depth operation")
	}
	side, ok := depthSide(cb.Side)
	if !ok {
		return malformedField(op, "unknown depth side")
	}
	d.emit(ctx, schema.NewEvent(schema.EventTypeMarketDepth, desc.Instrument, d.clock(), schema.MarketDepthPayload{
		Position:    cb.Position,
		Operation:   operation,
		Side:        side,
		Price:       cb.Price,
		Size:        cb.Size,
		MarketMaker: cb.MarketMaker,
	}))
	return nil
}

func depthOperation(code int) (schema.DepthOperation, bool) {
	switch code {
	case gateway.DepthOpInsert:
		return schema.DepthInsert, true
	case gateway.DepthOpUpdate:
		return schema.DepthUpdate, true
	case gateway.DepthOpDelete:
		return schema.DepthDelete, true
	default:
		return "", false
	}
}

func depthSide(code int) (schema.DepthSide, bool) {
	switch code {
	case gateway.DepthSideBid:
		return schema.DepthBid, true
	case gateway.DepthSideAsk:
		return schema.DepthAsk, true
	default:
		return "", false
	}
}

func (d *Dispatcher) onGatewayError(cb gateway.GatewayError) {
	fields := []observability.Field{
		observability.F("ref_id", cb.ID),
		observability.F("code", cb.Code),
		observability.F("message", cb.Message),
	}
	// Order ids and request ids overlap; an error naming a bound order is
	// never a data-request terminator.
	if _, isOrder := d.orders.ResolveByID(schema.OrderID(cb.ID)); isOrder {
		d.log.Warn("order error", fields...)
		return
	}
	if cb.EndsDataRequest() {
		if d.subs.Unbind(schema.CorrelationID(cb.ID)) {
			d.log.Warn("data request ended by gateway", fields...)
			return
		}
	}
	// 2100-2199 are farm connectivity notices.
	if cb.Code >= 2100 && cb.Code < 2200 {
		d.log.Info("gateway notice", fields...)
		return
	}
	d.log.Warn("gateway error", fields...)
}
