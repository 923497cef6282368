package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topic identifies a category of published events.
type Topic string

const (
	// TopicMarketData carries Quote, Trade, Bar and MarketDepth events.
	TopicMarketData Topic = "market_data"
	// TopicExecution carries OrderStatusUpdate and ExecutionReport events.
	TopicExecution Topic = "execution"
)

// EventType enumerates canonical domain events.
type EventType string

const (
	EventTypeQuote             EventType = "Quote"
	EventTypeTrade             EventType = "Trade"
	EventTypeBar               EventType = "Bar"
	EventTypeMarketDepth       EventType = "MarketDepth"
	EventTypeOrderStatusUpdate EventType = "OrderStatusUpdate"
	EventTypeExecutionReport   EventType = "ExecutionReport"
)

// Topic returns the bus topic the event type is published on.
func (t EventType) Topic() Topic {
	switch t {
	case EventTypeOrderStatusUpdate, EventTypeExecutionReport:
		return TopicExecution
	default:
		return TopicMarketData
	}
}

// Event represents a canonical domain event emitted by the dispatcher.
type Event struct {
	EventID    string       `json:"event_id"`
	Topic      Topic        `json:"topic"`
	Type       EventType    `json:"type"`
	Instrument InstrumentID `json:"instrument"`
	Timestamp  time.Time    `json:"timestamp"`
	Payload    any          `json:"payload"`
}

// NewEvent builds an event with a fresh id and the topic implied by its type.
func NewEvent(typ EventType, instrument InstrumentID, ts time.Time, payload any) *Event {
	return &Event{
		EventID:    uuid.NewString(),
		Topic:      typ.Topic(),
		Type:       typ,
		Instrument: instrument,
		Timestamp:  ts,
		Payload:    payload,
	}
}

// QuotePayload is a two-sided top-of-book quote.
type QuotePayload struct {
	Bid     float64 `json:"bid"`
	BidSize int64   `json:"bid_size"`
	Ask     float64 `json:"ask"`
	AskSize int64   `json:"ask_size"`
}

// TradePayload is a last-trade print.
type TradePayload struct {
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
}

// BarPayload is one OHLCV bar.
type BarPayload struct {
	Open    float64       `json:"open"`
	High    float64       `json:"high"`
	Low     float64       `json:"low"`
	Close   float64       `json:"close"`
	Volume  int64         `json:"volume"`
	BarSize time.Duration `json:"bar_size"`
}

// DepthOperation is the canonical book mutation.
type DepthOperation string

const (
	DepthInsert DepthOperation = "INSERT"
	DepthUpdate DepthOperation = "UPDATE"
	DepthDelete DepthOperation = "DELETE"
)

// DepthSide is the canonical book side.
type DepthSide string

const (
	DepthBid DepthSide = "BID"
	DepthAsk DepthSide = "ASK"
)

// MarketDepthPayload is a single depth row mutation.
type MarketDepthPayload struct {
	Position    int            `json:"position"`
	Operation   DepthOperation `json:"operation"`
	Side        DepthSide      `json:"side"`
	Price       float64        `json:"price"`
	Size        int64          `json:"size"`
	MarketMaker string         `json:"market_maker,omitempty"`
}

// OrderStatusUpdatePayload reports an order state transition.
type OrderStatusUpdatePayload struct {
	OrderID       OrderID         `json:"order_id"`
	ClientID      string          `json:"client_id"`
	ClientOrderID string          `json:"client_order_id"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
}

// ExecutionReportPayload reports one fill. Cumulative fields are venue-authoritative.
type ExecutionReportPayload struct {
	OrderID       OrderID         `json:"order_id"`
	ClientID      string          `json:"client_id"`
	ClientOrderID string          `json:"client_order_id"`
	ExecID        string          `json:"exec_id"`
	LastQty       decimal.Decimal `json:"last_qty"`
	LastPrice     decimal.Decimal `json:"last_price"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
}
