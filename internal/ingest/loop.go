// Package ingest owns the single goroutine that receives gateway callbacks and
// hands them to the dispatcher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/telemetry"
)

// Handler processes one callback to completion.
type Handler interface {
	Dispatch(ctx context.Context, cb gateway.Callback)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cb gateway.Callback)

// Dispatch calls f.
func (f HandlerFunc) Dispatch(ctx context.Context, cb gateway.Callback) { f(ctx, cb) }

// Receiver is the blocking side of a gateway client.
type Receiver interface {
	Receive(ctx context.Context) (gateway.Callback, error)
}

// Loop receives callbacks on one goroutine until stopped or the gateway
// connection ends. Callbacks are never handled concurrently.
type Loop struct {
	recv    Receiver
	handler Handler
	log     observability.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	done    chan struct{}
	err     error

	received      int64
	receiveErrors metric.Int64Counter
	panics        metric.Int64Counter
}

// New builds a loop over recv and handler.
func New(recv Receiver, handler Handler, logger observability.Logger) (*Loop, error) {
	if recv == nil || handler == nil {
		return nil, errs.New("ingest/new", errs.CodeInvalid, errs.WithMessage("receiver and handler required"))
	}
	l := &Loop{
		recv:    recv,
		handler: handler,
		log:     observability.OrDefault(logger),
		done:    make(chan struct{}),
	}
	meter := otel.Meter("ingest")
	l.receiveErrors, _ = meter.Int64Counter(telemetry.MetricIngestReceiveErrors,
		metric.WithDescription("Gateway frames that could not be decoded"),
		metric.WithUnit("{frame}"))
	l.panics, _ = meter.Int64Counter(telemetry.MetricIngestPanics,
		metric.WithDescription("Panics recovered while handling callbacks"),
		metric.WithUnit("{panic}"))
	return l, nil
}

// Start launches the receive goroutine. The loop runs until ctx is cancelled,
// Stop is called, or the gateway reports the connection closed.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errs.New("ingest/start", errs.CodeInvalid, errs.WithMessage("loop already started"))
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Go(func() {
		defer close(l.done)
		err := l.run(runCtx)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
	})
	return nil
}

// Stop cancels the receive and waits for the goroutine to return or ctx to end.
// A callback already being handled runs to completion first.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel := l.cancel
	started := l.started
	l.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	select {
	case <-l.done:
		l.wg.Wait()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop ingest loop: %w", ctx.Err())
	}
}

// Done is closed once the receive goroutine has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err reports why the loop ended. It is nil while running, after Stop, and
// when a finite capture was fully consumed.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Received returns the number of callbacks handed to the handler.
func (l *Loop) Received() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received
}

func (l *Loop) run(ctx context.Context) error {
	l.log.Info("ingest loop started")
	defer l.log.Info("ingest loop stopped")
	for {
		cb, err := l.recv.Receive(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				l.log.Info("gateway stream exhausted")
				return nil
			case errors.Is(err, gateway.ErrClosed):
				l.log.Warn("gateway connection closed", observability.Err(err))
				return err
			case errs.IsCode(err, errs.CodeMalformedCallback):
				l.log.Warn("malformed gateway frame skipped", observability.Err(err))
				if l.receiveErrors != nil {
					l.receiveErrors.Add(ctx, 1)
				}
				continue
			default:
				l.log.Error("gateway receive failed", observability.Err(err))
				return err
			}
		}
		if cb == nil {
			continue
		}
		l.handle(ctx, cb)
		if _, closed := cb.(gateway.ConnectionClosed); closed {
			return gateway.ErrClosed
		}
	}
}

func (l *Loop) handle(ctx context.Context, cb gateway.Callback) {
	l.mu.Lock()
	l.received++
	l.mu.Unlock()

	var pc panics.Catcher
	pc.Try(func() { l.handler.Dispatch(ctx, cb) })
	if r := pc.Recovered(); r != nil {
		l.log.Error("callback handler panicked",
			observability.F("callback", string(cb.Kind())),
			observability.F("panic", r.String()))
		if l.panics != nil {
			l.panics.Add(ctx, 1)
		}
	}
}
