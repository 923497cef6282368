// Package gateway defines the venue gateway client contract, its callback
// vocabulary and the JSON envelope shared by the transports.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/coachpo/tickwire/internal/schema"
)

// ErrClosed is returned by Receive once the gateway connection is gone.
var ErrClosed = errors.New("gateway: connection closed")

// Contract carries the venue-specific parameters of an instrument.
type Contract struct {
	Symbol          string `json:"symbol" yaml:"symbol"`
	SecType         string `json:"sec_type" yaml:"secType"`
	Exchange        string `json:"exchange" yaml:"exchange"`
	PrimaryExchange string `json:"primary_exchange,omitempty" yaml:"primaryExchange"`
	Currency        string `json:"currency" yaml:"currency"`
}

// Client is the connection side of the gateway. Receive blocks until one
// callback is available, the context ends, or the connection closes.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Receive(ctx context.Context) (Callback, error)
}

// Requester issues numbered requests to the gateway.
type Requester interface {
	RequestMarketData(ctx context.Context, id schema.CorrelationID, contract Contract) error
	CancelMarketData(ctx context.Context, id schema.CorrelationID) error
	RequestRealtimeBars(ctx context.Context, id schema.CorrelationID, contract Contract, barSize time.Duration, whatToShow string) error
	CancelRealtimeBars(ctx context.Context, id schema.CorrelationID) error
	RequestMarketDepth(ctx context.Context, id schema.CorrelationID, contract Contract, rows int) error
	CancelMarketDepth(ctx context.Context, id schema.CorrelationID) error
	RequestHistoricalData(ctx context.Context, id schema.CorrelationID, contract Contract, query HistoricalQuery) error
	CancelHistoricalData(ctx context.Context, id schema.CorrelationID) error
	PlaceOrder(ctx context.Context, id schema.OrderID, contract Contract, ticket OrderTicket) error
	CancelOrder(ctx context.Context, id schema.OrderID) error
}

// Session is a connected client able to issue requests.
type Session interface {
	Client
	Requester
}
