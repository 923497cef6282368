package dispatcher

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/schema"
)

// MapOrderStatus converts a venue status string into the canonical status.
// Fill progress reported under "Submitted" refines the result.
func MapOrderStatus(status string, filled, remaining decimal.Decimal) schema.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pendingsubmit", "presubmitted", "apipending":
		return schema.OrderStatusNew
	case "submitted":
		if filled.IsPositive() {
			if remaining.IsPositive() {
				return schema.OrderStatusPartiallyFilled
			}
			return schema.OrderStatusFilled
		}
		return schema.OrderStatusNew
	case "filled":
		return schema.OrderStatusFilled
	case "inactive":
		return schema.OrderStatusRejected
	case "pendingcancel":
		return schema.OrderStatusPendingCancel
	case "cancelled", "apicancelled":
		return schema.OrderStatusCancelled
	default:
		return schema.OrderStatusUnknown
	}
}

// publishesStatus lists the states announced as OrderStatusUpdate. Fill
// progress is reported through ExecutionReport only.
func publishesStatus(s schema.OrderStatus) bool {
	switch s {
	case schema.OrderStatusNew, schema.OrderStatusPendingCancel,
		schema.OrderStatusCancelled, schema.OrderStatusRejected:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) onOrderStatus(ctx context.Context, cb gateway.OrderStatus) error {
	const op = "dispatcher/order_status"
	desc, ok := d.orders.ResolveByID(cb.OrderID)
	if !ok {
		return unresolved(op, "order_id", int64(cb.OrderID))
	}
	status := MapOrderStatus(cb.Status, cb.Filled, cb.Remaining)
	if status == schema.OrderStatusUnknown {
		return errs.New(op, errs.CodeMalformedCallback,
			errs.WithMessage("unknown status"), errs.WithField("status", cb.Status))
	}

	prev, seen := d.orders.Status(cb.OrderID)
	if seen {
		if prev == status {
			return nil
		}
		if prev.Terminal() {
			d.log.Debug("status after terminal state ignored",
				observability.F("order_id", int64(cb.OrderID)),
				observability.F("terminal", string(prev)),
				observability.F("status", string(status)))
			return nil
		}
	}
	d.orders.SetStatus(cb.OrderID, status)
	if !publishesStatus(status) {
		return nil
	}
	d.emit(ctx, schema.NewEvent(schema.EventTypeOrderStatusUpdate, desc.Instrument, d.clock(), schema.OrderStatusUpdatePayload{
		OrderID:       cb.OrderID,
		ClientID:      desc.ClientID,
		ClientOrderID: desc.ClientOrderID,
		Status:        status,
		FilledQty:     cb.Filled,
		AvgPrice:      cb.AvgFillPrice,
	}))
	return nil
}

func (d *Dispatcher) onExecDetails(ctx context.Context, cb gateway.ExecDetails) error {
	desc, ok := d.orders.ResolveByID(cb.OrderID)
	if !ok {
		return unresolved("dispatcher/exec_details", "order_id", int64(cb.OrderID))
	}
	ts, err := gateway.ParseVenueTime(cb.Time, d.loc)
	if err != nil {
		ts = d.clock()
	}
	d.emit(ctx, schema.NewEvent(schema.EventTypeExecutionReport, desc.Instrument, ts, schema.ExecutionReportPayload{
		OrderID:       cb.OrderID,
		ClientID:      desc.ClientID,
		ClientOrderID: desc.ClientOrderID,
		ExecID:        cb.ExecID,
		LastQty:       cb.Shares,
		LastPrice:     cb.Price,
		FilledQty:     cb.CumQty,
		AvgPrice:      cb.AvgPrice,
	}))
	return nil
}

func (d *Dispatcher) onNextValidID(cb gateway.NextValidID) {
	if d.orderSeq == nil {
		return
	}
	if d.orderSeq.Advance(int64(cb.OrderID)) {
		d.log.Info("order id sequence advanced", observability.F("next_order_id", int64(cb.OrderID)))
	}
}
