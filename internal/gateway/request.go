package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tickwire/internal/schema"
)

// RequestKind names an outbound request on the wire.
type RequestKind string

const (
	RequestStartAPI          RequestKind = "start_api"
	RequestMarketData        RequestKind = "req_mkt_data"
	RequestCancelMarketData  RequestKind = "cancel_mkt_data"
	RequestRealtimeBars      RequestKind = "req_realtime_bars"
	RequestCancelRealtimeBar RequestKind = "cancel_realtime_bars"
	RequestMarketDepth       RequestKind = "req_mkt_depth"
	RequestCancelDepth       RequestKind = "cancel_mkt_depth"
	RequestHistoricalData    RequestKind = "req_historical_data"
	RequestCancelHistorical  RequestKind = "cancel_historical_data"
	RequestPlaceOrder        RequestKind = "place_order"
	RequestCancelOrder       RequestKind = "cancel_order"
)

// Request is one numbered outbound request.
type Request struct {
	Kind    RequestKind
	ID      int64
	Payload any
}

// StartAPIPayload opens an API session for a client id.
type StartAPIPayload struct {
	ClientID int `json:"client_id"`
}

// MarketDataPayload requests streaming ticks.
type MarketDataPayload struct {
	Contract Contract `json:"contract"`
}

// RealtimeBarsPayload requests live bars.
type RealtimeBarsPayload struct {
	Contract   Contract `json:"contract"`
	BarSize    int      `json:"bar_size"`
	WhatToShow string   `json:"what_to_show"`
	UseRTH     bool     `json:"use_rth"`
}

// MarketDepthPayload requests depth rows.
type MarketDepthPayload struct {
	Contract Contract `json:"contract"`
	Rows     int      `json:"rows"`
}

// HistoricalQuery carries the venue parameters of a historical bar request.
type HistoricalQuery struct {
	EndDateTime string `json:"end_date_time"`
	Duration    string `json:"duration"`
	BarSize     string `json:"bar_size"`
	WhatToShow  string `json:"what_to_show"`
	UseRTH      bool   `json:"use_rth"`
	FormatDate  int    `json:"format_date"`
}

// HistoricalDataPayload requests a historical bar range.
type HistoricalDataPayload struct {
	Contract Contract        `json:"contract"`
	Query    HistoricalQuery `json:"query"`
}

// OrderTicket is the venue representation of an order.
type OrderTicket struct {
	Action        string          `json:"action"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderType     string          `json:"order_type"`
	LimitPrice    decimal.Decimal `json:"lmt_price"`
	AuxPrice      decimal.Decimal `json:"aux_price"`
	TIF           string          `json:"tif"`
	OrderRef      string          `json:"order_ref"`
	Account       string          `json:"account,omitempty"`
}

// NewOrderTicket converts an order descriptor into a venue ticket.
func NewOrderTicket(desc schema.OrderDescriptor, account string) OrderTicket {
	tif := desc.TIF
	if tif == "" {
		tif = schema.TIFDay
	}
	return OrderTicket{
		Action:        string(desc.Side),
		TotalQuantity: desc.Quantity,
		OrderType:     string(desc.Type),
		LimitPrice:    desc.LimitPrice,
		AuxPrice:      desc.StopPrice,
		TIF:           string(tif),
		OrderRef:      desc.ClientID + "/" + desc.ClientOrderID,
		Account:       account,
	}
}

// PlaceOrderPayload places or modifies an order.
type PlaceOrderPayload struct {
	Contract Contract    `json:"contract"`
	Order    OrderTicket `json:"order"`
}

// SendFunc delivers one request to the gateway.
type SendFunc func(ctx context.Context, req Request) error

type requester struct {
	send SendFunc
}

// NewRequester builds a Requester that renders every call as a Request and
// hands it to send.
func NewRequester(send SendFunc) Requester {
	return requester{send: send}
}

func (r requester) RequestMarketData(ctx context.Context, id schema.CorrelationID, contract Contract) error {
	return r.send(ctx, Request{Kind: RequestMarketData, ID: int64(id), Payload: MarketDataPayload{Contract: contract}})
}

func (r requester) CancelMarketData(ctx context.Context, id schema.CorrelationID) error {
	return r.send(ctx, Request{Kind: RequestCancelMarketData, ID: int64(id)})
}

func (r requester) RequestRealtimeBars(ctx context.Context, id schema.CorrelationID, contract Contract, barSize time.Duration, whatToShow string) error {
	return r.send(ctx, Request{Kind: RequestRealtimeBars, ID: int64(id), Payload: RealtimeBarsPayload{
		Contract:   contract,
		BarSize:    int(barSize / time.Second),
		WhatToShow: whatToShowOrDefault(whatToShow),
	}})
}

func (r requester) CancelRealtimeBars(ctx context.Context, id schema.CorrelationID) error {
	return r.send(ctx, Request{Kind: RequestCancelRealtimeBar, ID: int64(id)})
}

func (r requester) RequestMarketDepth(ctx context.Context, id schema.CorrelationID, contract Contract, rows int) error {
	return r.send(ctx, Request{Kind: RequestMarketDepth, ID: int64(id), Payload: MarketDepthPayload{Contract: contract, Rows: rows}})
}

func (r requester) CancelMarketDepth(ctx context.Context, id schema.CorrelationID) error {
	return r.send(ctx, Request{Kind: RequestCancelDepth, ID: int64(id)})
}

func (r requester) RequestHistoricalData(ctx context.Context, id schema.CorrelationID, contract Contract, query HistoricalQuery) error {
	return r.send(ctx, Request{Kind: RequestHistoricalData, ID: int64(id), Payload: HistoricalDataPayload{Contract: contract, Query: query}})
}

func (r requester) CancelHistoricalData(ctx context.Context, id schema.CorrelationID) error {
	return r.send(ctx, Request{Kind: RequestCancelHistorical, ID: int64(id)})
}

func (r requester) PlaceOrder(ctx context.Context, id schema.OrderID, contract Contract, ticket OrderTicket) error {
	return r.send(ctx, Request{Kind: RequestPlaceOrder, ID: int64(id), Payload: PlaceOrderPayload{Contract: contract, Order: ticket}})
}

func (r requester) CancelOrder(ctx context.Context, id schema.OrderID) error {
	return r.send(ctx, Request{Kind: RequestCancelOrder, ID: int64(id)})
}
