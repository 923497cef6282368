package gateway

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/tickwire/internal/schema"
)

// CallbackKind names a callback on the wire.
type CallbackKind string

const (
	KindTickPrice        CallbackKind = "tick_price"
	KindTickSize         CallbackKind = "tick_size"
	KindDepthUpdate      CallbackKind = "depth_update"
	KindHistoricalBar    CallbackKind = "historical_bar"
	KindRealtimeBar      CallbackKind = "realtime_bar"
	KindOrderStatus      CallbackKind = "order_status"
	KindExecDetails      CallbackKind = "exec_details"
	KindNextValidID      CallbackKind = "next_valid_id"
	KindConnectionClosed CallbackKind = "connection_closed"
	KindError            CallbackKind = "error"
)

// Venue tick field codes.
const (
	TickBidSize  = 0
	TickBid      = 1
	TickAsk      = 2
	TickAskSize  = 3
	TickLast     = 4
	TickLastSize = 5
	TickHigh     = 6
	TickLow      = 7
	TickVolume   = 8
	TickClose    = 9
	TickOpen     = 14
)

// Venue depth codes.
const (
	DepthOpInsert = 0
	DepthOpUpdate = 1
	DepthOpDelete = 2

	DepthSideAsk = 0
	DepthSideBid = 1
)

// Venue error codes that end a data request.
const (
	ErrCodeHistoricalDataError  = 162
	ErrCodeNoSecurityDefinition = 200
	ErrCodeNotSubscribed        = 354
)

// Callback is one message delivered by the gateway.
type Callback interface {
	Kind() CallbackKind
}

// TickPrice reports a price field change.
type TickPrice struct {
	ID    schema.CorrelationID `json:"id"`
	Field int                  `json:"field"`
	Price float64              `json:"price"`
}

// TickSize reports a size field change.
type TickSize struct {
	ID    schema.CorrelationID `json:"id"`
	Field int                  `json:"field"`
	Size  int64                `json:"size"`
}

// DepthUpdate reports one book row mutation. MarketMaker is set on L2 updates.
type DepthUpdate struct {
	ID          schema.CorrelationID `json:"id"`
	Position    int                  `json:"position"`
	MarketMaker string               `json:"market_maker,omitempty"`
	Operation   int                  `json:"operation"`
	Side        int                  `json:"side"`
	Price       float64              `json:"price"`
	Size        int64                `json:"size"`
}

// HistoricalBar is one bar of a historical request. A Date starting with
// "finished" marks the end of the request.
type HistoricalBar struct {
	ID       schema.CorrelationID `json:"id"`
	Date     string               `json:"date"`
	Open     float64              `json:"open"`
	High     float64              `json:"high"`
	Low      float64              `json:"low"`
	Close    float64              `json:"close"`
	Volume   int64                `json:"volume"`
	BarCount int                  `json:"bar_count"`
	WAP      float64              `json:"wap"`
}

// RealtimeBar is one live bar; Time is in unix seconds.
type RealtimeBar struct {
	ID     schema.CorrelationID `json:"id"`
	Time   int64                `json:"time"`
	Open   float64              `json:"open"`
	High   float64              `json:"high"`
	Low    float64              `json:"low"`
	Close  float64              `json:"close"`
	Volume int64                `json:"volume"`
	WAP    float64              `json:"wap"`
	Count  int                  `json:"count"`
}

// OrderStatus reports the venue's view of an order.
type OrderStatus struct {
	OrderID       schema.OrderID  `json:"order_id"`
	Status        string          `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  decimal.Decimal `json:"avg_fill_price"`
	LastFillPrice decimal.Decimal `json:"last_fill_price"`
	PermID        int64           `json:"perm_id"`
	WhyHeld       string          `json:"why_held,omitempty"`
}

// ExecDetails reports one execution.
type ExecDetails struct {
	ReqID    int64           `json:"req_id"`
	OrderID  schema.OrderID  `json:"order_id"`
	ExecID   string          `json:"exec_id"`
	Time     string          `json:"time"`
	Account  string          `json:"account,omitempty"`
	Exchange string          `json:"exchange,omitempty"`
	Side     string          `json:"side"`
	Shares   decimal.Decimal `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	CumQty   decimal.Decimal `json:"cum_qty"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// NextValidID reports the next order id the venue will accept.
type NextValidID struct {
	OrderID schema.OrderID `json:"order_id"`
}

// ConnectionClosed reports the gateway dropped the session.
type ConnectionClosed struct{}

// GatewayError is a venue error or notice. ID is the request or order id it
// refers to, or -1.
type GatewayError struct {
	ID      int64  `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (TickPrice) Kind() CallbackKind        { return KindTickPrice }
func (TickSize) Kind() CallbackKind         { return KindTickSize }
func (DepthUpdate) Kind() CallbackKind      { return KindDepthUpdate }
func (HistoricalBar) Kind() CallbackKind    { return KindHistoricalBar }
func (RealtimeBar) Kind() CallbackKind      { return KindRealtimeBar }
func (OrderStatus) Kind() CallbackKind      { return KindOrderStatus }
func (ExecDetails) Kind() CallbackKind      { return KindExecDetails }
func (NextValidID) Kind() CallbackKind      { return KindNextValidID }
func (ConnectionClosed) Kind() CallbackKind { return KindConnectionClosed }
func (GatewayError) Kind() CallbackKind     { return KindError }

// EndsDataRequest reports whether the error terminates the referenced data request.
func (e GatewayError) EndsDataRequest() bool {
	switch e.Code {
	case ErrCodeHistoricalDataError, ErrCodeNoSecurityDefinition, ErrCodeNotSubscribed:
		return e.ID >= 0
	default:
		return false
	}
}
