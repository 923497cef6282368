// Package broker places, replaces and cancels orders against the gateway.
package broker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/refdata"
	"github.com/coachpo/tickwire/internal/registry"
	"github.com/coachpo/tickwire/internal/schema"
)

// Option configures a Broker.
type Option func(*Broker)

// WithAccount stamps every order ticket with the venue account.
func WithAccount(account string) Option {
	return func(b *Broker) { b.account = account }
}

// WithLogger sets the broker logger.
func WithLogger(l observability.Logger) Option {
	return func(b *Broker) { b.log = observability.OrDefault(l) }
}

// WithRiskCheck screens orders before they reach the venue.
func WithRiskCheck(c RiskChecker) Option {
	return func(b *Broker) { b.risk = c }
}

// RiskChecker rejects orders that breach pre-trade limits.
type RiskChecker interface {
	CheckOrder(ctx context.Context, desc schema.OrderDescriptor) error
}

// Broker is the order role. Its methods may be called from any goroutine.
type Broker struct {
	orders    *registry.OrderRegistry
	seq       *registry.Sequence
	contracts refdata.Resolver
	req       gateway.Requester
	account   string
	risk      RiskChecker
	log       observability.Logger
}

// New builds a broker allocating venue order ids from seq.
func New(orders *registry.OrderRegistry, seq *registry.Sequence, contracts refdata.Resolver, req gateway.Requester, opts ...Option) (*Broker, error) {
	if orders == nil || seq == nil || contracts == nil || req == nil {
		return nil, errs.New("broker/new", errs.CodeInvalid, errs.WithMessage("registry, sequence, resolver and requester required"))
	}
	b := &Broker{
		orders:    orders,
		seq:       seq,
		contracts: contracts,
		req:       req,
		log:       observability.Log(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

func (b *Broker) screen(ctx context.Context, desc schema.OrderDescriptor) error {
	if b.risk == nil {
		return nil
	}
	if err := b.risk.CheckOrder(ctx, desc); err != nil {
		b.log.Warn("order rejected by risk check",
			observability.F("client_id", desc.ClientID),
			observability.F("client_order_id", desc.ClientOrderID),
			observability.Err(err))
		return err
	}
	return nil
}

func orderField(id schema.OrderID) errs.Option {
	return errs.WithField("order_id", strconv.FormatInt(int64(id), 10))
}

// Place allocates the next order id, binds the descriptor to it and places
// the order. A failed placement releases the binding.
func (b *Broker) Place(ctx context.Context, desc schema.OrderDescriptor) (schema.OrderID, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}
	if err := b.screen(ctx, desc); err != nil {
		return 0, err
	}
	contract, err := b.contracts.Contract(desc.Instrument)
	if err != nil {
		return 0, fmt.Errorf("place %s/%s: %w", desc.ClientID, desc.ClientOrderID, err)
	}
	desc.Version = 1

	id := schema.OrderID(b.seq.Next())
	if err := b.orders.Bind(id, desc); err != nil {
		return 0, err
	}
	if err := b.req.PlaceOrder(ctx, id, contract, gateway.NewOrderTicket(desc, b.account)); err != nil {
		b.orders.Unbind(id)
		return 0, errs.New("broker/place", errs.CodeUnavailable,
			errs.WithMessage("place order"), orderField(id), errs.WithCause(err))
	}
	b.log.Info("order placed",
		observability.F("order_id", int64(id)),
		observability.F("client_id", desc.ClientID),
		observability.F("client_order_id", desc.ClientOrderID),
		observability.F("instrument", string(desc.Instrument)))
	return id, nil
}

// Replace amends an open order. The next descriptor version is bound before
// the request is sent so venue callbacks for the modification resolve to it;
// a failed send restores the previous version.
func (b *Broker) Replace(ctx context.Context, clientID, clientOrderID string, amend schema.OrderAmend) (schema.OrderDescriptor, error) {
	id, current, err := b.open("broker/replace", clientID, clientOrderID)
	if err != nil {
		return schema.OrderDescriptor{}, err
	}
	next := current.Amend(amend)
	if err := next.Validate(); err != nil {
		return schema.OrderDescriptor{}, err
	}
	if err := b.screen(ctx, next); err != nil {
		return schema.OrderDescriptor{}, err
	}
	contract, err := b.contracts.Contract(next.Instrument)
	if err != nil {
		return schema.OrderDescriptor{}, fmt.Errorf("replace %s/%s: %w", clientID, clientOrderID, err)
	}
	bound, err := b.orders.Rebind(id, next)
	if err != nil {
		return schema.OrderDescriptor{}, err
	}
	if err := b.req.PlaceOrder(ctx, id, contract, gateway.NewOrderTicket(bound, b.account)); err != nil {
		if !b.orders.Restore(id, bound.Version, current) {
			b.log.Warn("order version moved during failed replace",
				observability.F("order_id", int64(id)),
				observability.F("version", bound.Version))
		}
		return schema.OrderDescriptor{}, errs.New("broker/replace", errs.CodeUnavailable,
			errs.WithMessage("modify order"), orderField(id), errs.WithCause(err))
	}
	b.log.Info("order replaced",
		observability.F("order_id", int64(id)),
		observability.F("client_order_id", clientOrderID),
		observability.F("version", bound.Version))
	return bound, nil
}

// Cancel requests cancellation of an open order.
func (b *Broker) Cancel(ctx context.Context, clientID, clientOrderID string) error {
	id, _, err := b.open("broker/cancel", clientID, clientOrderID)
	if err != nil {
		return err
	}
	if err := b.req.CancelOrder(ctx, id); err != nil {
		return errs.New("broker/cancel", errs.CodeUnavailable,
			errs.WithMessage("cancel order"), orderField(id), errs.WithCause(err))
	}
	b.log.Info("order cancel requested",
		observability.F("order_id", int64(id)),
		observability.F("client_order_id", clientOrderID))
	return nil
}

func (b *Broker) open(op, clientID, clientOrderID string) (schema.OrderID, schema.OrderDescriptor, error) {
	id, ok := b.orders.ResolveIDByClientKey(clientID, clientOrderID)
	if !ok {
		return 0, schema.OrderDescriptor{}, errs.New(op, errs.CodeUnresolvedCorrelation,
			errs.WithMessage("unknown client order"),
			errs.WithField("client_id", clientID),
			errs.WithField("client_order_id", clientOrderID))
	}
	desc, ok := b.orders.ResolveByID(id)
	if !ok {
		return 0, schema.OrderDescriptor{}, errs.New(op, errs.CodeUnresolvedCorrelation,
			errs.WithMessage("order released"), orderField(id))
	}
	if b.orders.Terminal(id) {
		return 0, schema.OrderDescriptor{}, errs.New(op, errs.CodeInvalid,
			errs.WithMessage("order is in a terminal state"), orderField(id))
	}
	return id, desc, nil
}
