package schema

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tickwire/errs"
)

// OrderSide captures the direction of an order.
type OrderSide string

const (
	// SideBuy buys the instrument.
	SideBuy OrderSide = "BUY"
	// SideSell sells the instrument.
	SideSell OrderSide = "SELL"
)

// OrderType enumerates supported order types.
type OrderType string

const (
	// OrderTypeMarket executes at the prevailing price.
	OrderTypeMarket OrderType = "MKT"
	// OrderTypeLimit executes at the limit price or better.
	OrderTypeLimit OrderType = "LMT"
	// OrderTypeStop becomes a market order once the stop price trades.
	OrderTypeStop OrderType = "STP"
	// OrderTypeStopLimit becomes a limit order once the stop price trades.
	OrderTypeStopLimit OrderType = "STP_LMT"
)

// TimeInForce enumerates order lifetimes.
type TimeInForce string

const (
	// TIFDay expires at the end of the session.
	TIFDay TimeInForce = "DAY"
	// TIFGTC stays live until cancelled.
	TIFGTC TimeInForce = "GTC"
	// TIFIOC cancels any unfilled remainder immediately.
	TIFIOC TimeInForce = "IOC"
)

// ClientKey is the externally significant identity of an order.
type ClientKey struct {
	ClientID      string
	ClientOrderID string
}

// OrderDescriptor is one version of an order as requested by a client.
// Replacing an order yields a new version bound to the same venue order id.
type OrderDescriptor struct {
	ClientID      string          `json:"client_id"`
	ClientOrderID string          `json:"client_order_id"`
	Instrument    InstrumentID    `json:"instrument"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	TIF           TimeInForce     `json:"tif"`
	Version       int             `json:"version"`
}

// Key returns the client key of the descriptor.
func (d OrderDescriptor) Key() ClientKey {
	return ClientKey{ClientID: d.ClientID, ClientOrderID: d.ClientOrderID}
}

// Equal reports whether both descriptors carry the same order parameters and
// version. Decimal fields compare by value.
func (d OrderDescriptor) Equal(o OrderDescriptor) bool {
	return d.Key() == o.Key() &&
		d.Version == o.Version &&
		d.Instrument == o.Instrument &&
		d.Side == o.Side &&
		d.Type == o.Type &&
		d.TIF == o.TIF &&
		d.Quantity.Equal(o.Quantity) &&
		d.LimitPrice.Equal(o.LimitPrice) &&
		d.StopPrice.Equal(o.StopPrice)
}

// Validate ensures the descriptor is complete enough to be placed.
func (d OrderDescriptor) Validate() error {
	if strings.TrimSpace(d.ClientID) == "" || strings.TrimSpace(d.ClientOrderID) == "" {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("client id and client order id required"))
	}
	if strings.TrimSpace(string(d.Instrument)) == "" {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("instrument required"))
	}
	switch d.Side {
	case SideBuy, SideSell:
	default:
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("side must be BUY or SELL"))
	}
	if !d.Quantity.IsPositive() {
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("quantity must be >0"))
	}
	switch d.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if !d.LimitPrice.IsPositive() {
			return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("limit price required"))
		}
	case OrderTypeStop:
		if !d.StopPrice.IsPositive() {
			return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("stop price required"))
		}
	case OrderTypeStopLimit:
		if !d.LimitPrice.IsPositive() || !d.StopPrice.IsPositive() {
			return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("limit and stop price required"))
		}
	default:
		return errs.New("schema/order", errs.CodeInvalid, errs.WithMessage("unknown order type "+string(d.Type)))
	}
	return nil
}

// OrderAmend lists the fields a replace request may change. Nil fields are kept.
type OrderAmend struct {
	Type       *OrderType
	Quantity   *decimal.Decimal
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	TIF        *TimeInForce
}

// Amend returns the next version of the descriptor with the amendments applied.
func (d OrderDescriptor) Amend(a OrderAmend) OrderDescriptor {
	next := d
	if a.Type != nil {
		next.Type = *a.Type
	}
	if a.Quantity != nil {
		next.Quantity = *a.Quantity
	}
	if a.LimitPrice != nil {
		next.LimitPrice = *a.LimitPrice
	}
	if a.StopPrice != nil {
		next.StopPrice = *a.StopPrice
	}
	if a.TIF != nil {
		next.TIF = *a.TIF
	}
	next.Version = d.Version + 1
	return next
}

// OrderStatus is the canonical order state.
type OrderStatus string

const (
	OrderStatusUnknown         OrderStatus = "UNKNOWN"
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
)

// Terminal reports whether no further transitions are expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRejected, OrderStatusFilled:
		return true
	default:
		return false
	}
}
