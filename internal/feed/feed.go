// Package feed issues and cancels market-data requests for subscription descriptors.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/refdata"
	"github.com/coachpo/tickwire/internal/registry"
	"github.com/coachpo/tickwire/internal/schema"
)

type requestFunc func(ctx context.Context, id schema.CorrelationID, contract gateway.Contract, desc schema.SubscriptionDescriptor) error

type cancelFunc func(ctx context.Context, id schema.CorrelationID) error

type kindHandler struct {
	request requestFunc
	cancel  cancelFunc
}

// pendingRequest tracks a request that has been bound but not yet sent.
type pendingRequest struct {
	done    chan struct{}
	err     error
	waiters int
}

// Feed is the market-data role. Subscribe and Unsubscribe may be called from
// any goroutine.
type Feed struct {
	subs      *registry.SubscriptionRegistry
	contracts refdata.Resolver
	log       observability.Logger
	handlers  map[schema.SubscriptionKind]kindHandler

	mu      sync.Mutex
	pending map[schema.CorrelationID]*pendingRequest
}

// New builds a feed issuing requests through req.
func New(subs *registry.SubscriptionRegistry, contracts refdata.Resolver, req gateway.Requester, logger observability.Logger) (*Feed, error) {
	if subs == nil || contracts == nil || req == nil {
		return nil, errs.New("feed/new", errs.CodeInvalid, errs.WithMessage("registry, resolver and requester required"))
	}
	marketData := kindHandler{
		request: func(ctx context.Context, id schema.CorrelationID, contract gateway.Contract, _ schema.SubscriptionDescriptor) error {
			return req.RequestMarketData(ctx, id, contract)
		},
		cancel: req.CancelMarketData,
	}
	return &Feed{
		subs:      subs,
		contracts: contracts,
		log:       observability.OrDefault(logger),
		pending:   make(map[schema.CorrelationID]*pendingRequest),
		handlers: map[schema.SubscriptionKind]kindHandler{
			schema.KindQuote: marketData,
			schema.KindTrade: marketData,
			schema.KindBar: {
				request: func(ctx context.Context, id schema.CorrelationID, contract gateway.Contract, desc schema.SubscriptionDescriptor) error {
					return req.RequestRealtimeBars(ctx, id, contract, desc.BarSize, desc.WhatToShow)
				},
				cancel: req.CancelRealtimeBars,
			},
			schema.KindDepth: {
				request: func(ctx context.Context, id schema.CorrelationID, contract gateway.Contract, desc schema.SubscriptionDescriptor) error {
					return req.RequestMarketDepth(ctx, id, contract, desc.DepthRows)
				},
				cancel: req.CancelMarketDepth,
			},
			schema.KindHistorical: {
				request: func(ctx context.Context, id schema.CorrelationID, contract gateway.Contract, desc schema.SubscriptionDescriptor) error {
					query := gateway.NewHistoricalQuery(desc.From, desc.To, desc.BarSize, desc.WhatToShow)
					return req.RequestHistoricalData(ctx, id, contract, query)
				},
				cancel: req.CancelHistoricalData,
			},
		},
	}, nil
}

// Subscribe binds the descriptor and issues its request. Subscribing with a
// descriptor that is already bound returns the existing id without a new
// request; while the first request is still in flight the caller waits for
// its outcome. A failed request releases the binding.
func (f *Feed) Subscribe(ctx context.Context, desc schema.SubscriptionDescriptor) (schema.CorrelationID, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}
	handler := f.handlers[desc.Kind]
	contract, err := f.contracts.Contract(desc.Instrument)
	if err != nil {
		return 0, fmt.Errorf("subscribe %s %s: %w", desc.Kind, desc.Instrument, err)
	}

	f.mu.Lock()
	id, created := f.subs.Bind(desc)
	p := f.pending[id]
	if created {
		p = &pendingRequest{done: make(chan struct{})}
		f.pending[id] = p
	} else if p != nil {
		p.waiters++
	}
	f.mu.Unlock()

	if !created {
		f.log.Debug("subscription already bound",
			observability.F("correlation_id", int64(id)),
			observability.F("instrument", string(desc.Instrument)),
			observability.F("kind", string(desc.Kind)))
		if p == nil {
			return id, nil
		}
		select {
		case <-p.done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		if p.err != nil {
			return 0, p.err
		}
		return id, nil
	}

	err = handler.request(ctx, id, contract, desc)
	if err != nil {
		f.subs.Unbind(id)
		err = errs.New("feed/subscribe", errs.CodeUnavailable,
			errs.WithMessage("request "+string(desc.Kind)+" data"),
			errs.WithField("correlation_id", strconv.FormatInt(int64(id), 10)),
			errs.WithCause(err))
	}
	f.mu.Lock()
	p.err = err
	delete(f.pending, id)
	f.mu.Unlock()
	close(p.done)
	if err != nil {
		return 0, err
	}
	f.log.Info("subscribed",
		observability.F("correlation_id", int64(id)),
		observability.F("instrument", string(desc.Instrument)),
		observability.F("kind", string(desc.Kind)))
	return id, nil
}

// Unsubscribe releases the binding for desc and cancels its request. Unknown
// descriptors are ignored.
func (f *Feed) Unsubscribe(ctx context.Context, desc schema.SubscriptionDescriptor) error {
	id, ok := f.subs.Find(desc)
	if !ok {
		return nil
	}
	if !f.subs.Unbind(id) {
		return nil
	}
	handler, ok := f.handlers[desc.Kind]
	if !ok {
		return nil
	}
	if err := handler.cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel %s subscription %d: %w", desc.Kind, id, err)
	}
	f.log.Info("unsubscribed",
		observability.F("correlation_id", int64(id)),
		observability.F("instrument", string(desc.Instrument)),
		observability.F("kind", string(desc.Kind)))
	return nil
}
