// Package app composes the market-data, order and dispatch roles into one
// gateway session.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachpo/tickwire/internal/broker"
	"github.com/coachpo/tickwire/internal/dispatcher"
	"github.com/coachpo/tickwire/internal/feed"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/ingest"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/refdata"
	"github.com/coachpo/tickwire/internal/registry"
	"github.com/coachpo/tickwire/internal/risk"
	"github.com/coachpo/tickwire/internal/timeseries"
)

const defaultDeadLetterCapacity = 1024

// Config tunes a Session.
type Config struct {
	RequestSeed        int64
	OrderSeed          int64
	Account            string
	Location           *time.Location
	DeadLetterCapacity int
	Risk               risk.Limits
	// RecordSeries keeps in-memory OHLCV and quote series per instrument.
	RecordSeries bool
	Clock        func() time.Time
}

// Session owns the correlation state for one gateway connection.
type Session struct {
	Subscriptions *registry.SubscriptionRegistry
	Orders        *registry.OrderRegistry
	Feed          *feed.Feed
	Broker        *broker.Broker
	Dispatcher    *dispatcher.Dispatcher
	Series        *timeseries.Recorder
	DeadLetters   *observability.DeadLetterQueue

	client gateway.Session
	loop   *ingest.Loop
	log    observability.Logger
}

// New wires a session around client. Events are handed to publisher from the
// ingestion goroutine in callback order.
func New(client gateway.Session, contracts refdata.Resolver, publisher dispatcher.Publisher, cfg Config, logger observability.Logger) (*Session, error) {
	if client == nil {
		return nil, errors.New("gateway client required")
	}
	if contracts == nil {
		return nil, errors.New("contract resolver required")
	}
	logger = observability.OrDefault(logger)
	if cfg.DeadLetterCapacity <= 0 {
		cfg.DeadLetterCapacity = defaultDeadLetterCapacity
	}

	requestSeq := registry.NewSequence(cfg.RequestSeed)
	orderSeq := registry.NewSequence(cfg.OrderSeed)

	s := &Session{
		Subscriptions: registry.NewSubscriptionRegistry(requestSeq),
		Orders:        registry.NewOrderRegistry(),
		DeadLetters:   observability.NewDeadLetterQueue(cfg.DeadLetterCapacity),
		client:        client,
		log:           logger,
	}

	var err error
	if s.Feed, err = feed.New(s.Subscriptions, contracts, client, logger); err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	if s.Broker, err = broker.New(s.Orders, orderSeq, contracts, client,
		broker.WithAccount(cfg.Account),
		broker.WithRiskCheck(risk.NewManager(cfg.Risk)),
		broker.WithLogger(logger)); err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(logger),
		dispatcher.WithOrderSequence(orderSeq),
		dispatcher.WithDeadLetterQueue(s.DeadLetters),
		dispatcher.WithLocation(cfg.Location),
	}
	if cfg.Clock != nil {
		opts = append(opts, dispatcher.WithClock(cfg.Clock))
	}
	if cfg.RecordSeries {
		s.Series = timeseries.NewRecorder()
		opts = append(opts, dispatcher.WithRecorder(s.Series))
	}
	if s.Dispatcher, err = dispatcher.New(s.Subscriptions, s.Orders, publisher, opts...); err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	if s.loop, err = ingest.New(client, s.Dispatcher, logger); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return s, nil
}

// Start connects the client and begins draining callbacks. A connection
// failure is returned unchanged so callers can abort startup.
func (s *Session) Start(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if err := s.loop.Start(ctx); err != nil {
		_ = s.client.Disconnect(ctx)
		return err
	}
	s.log.Info("session started")
	return nil
}

// Done is closed when the ingestion loop ends.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

// Err reports why the ingestion loop ended, if it failed.
func (s *Session) Err() error {
	return s.loop.Err()
}

// Received counts callbacks handed to the dispatcher.
func (s *Session) Received() int64 {
	return s.loop.Received()
}

// Stop joins the ingestion loop, then disconnects.
func (s *Session) Stop(ctx context.Context) error {
	loopErr := s.loop.Stop(ctx)
	disconnectErr := s.client.Disconnect(ctx)
	if dropped := s.DeadLetters.Total(); dropped > 0 {
		s.log.Warn("callbacks dropped during session", observability.F("dropped", dropped))
	}
	return observability.JoinErrors(s.log, "session stop", loopErr, disconnectErr)
}
