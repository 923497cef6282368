// Package wsbridge implements the gateway client over a websocket bridge that
// speaks the JSON envelope protocol.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/telemetry"
)

const (
	defaultConnectAttempts = 5
	defaultInitialBackoff  = 500 * time.Millisecond
	defaultMaxBackoff      = 10 * time.Second
	defaultRequestRate     = 45 // venue pacing limit is 50 messages per second
	defaultReadLimit       = 2 * 1024 * 1024
	defaultWriteTimeout    = 5 * time.Second
)

// Config describes the bridge endpoint and client behaviour.
type Config struct {
	URL                string
	ClientID           int
	MaxConnectAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	RequestsPerSecond  float64
	RequestBurst       int
	ReadLimit          int64
	WriteTimeout       time.Duration
}

func (c Config) normalize() Config {
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = defaultConnectAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRequestRate
	}
	if c.RequestBurst <= 0 {
		c.RequestBurst = 1
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Client is a gateway session over a websocket bridge.
type Client struct {
	gateway.Requester

	cfg     Config
	limiter *rate.Limiter
	log     observability.Logger

	mu   sync.RWMutex
	conn *websocket.Conn

	connectAttempts metric.Int64Counter
	requests        metric.Int64Counter
}

// New constructs a client. Connect must be called before Receive or any request.
func New(cfg Config, logger observability.Logger) (*Client, error) {
	cfg = cfg.normalize()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errs.New("wsbridge/new", errs.CodeInvalid, errs.WithMessage("bridge url required"))
	}
	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst),
		log:     observability.OrDefault(logger),
	}
	c.Requester = gateway.NewRequester(c.send)

	meter := otel.Meter("gateway.wsbridge")
	c.connectAttempts, _ = meter.Int64Counter(telemetry.MetricGatewayConnects,
		metric.WithDescription("Gateway bridge dial attempts"),
		metric.WithUnit("{attempt}"))
	c.requests, _ = meter.Int64Counter(telemetry.MetricGatewayRequests,
		metric.WithDescription("Requests written to the gateway bridge"),
		metric.WithUnit("{request}"))
	return c, nil
}

// Connect dials the bridge with exponential backoff and opens the API session.
// Exhausting the attempts fails with a connection_failure error.
func (c *Client) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxConnectAttempts; attempt++ {
		conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
		if err == nil {
			c.recordConnect(ctx, telemetry.ResultSuccess)
			conn.SetReadLimit(c.cfg.ReadLimit)
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			if err := c.send(ctx, gateway.Request{
				Kind:    gateway.RequestStartAPI,
				Payload: gateway.StartAPIPayload{ClientID: c.cfg.ClientID},
			}); err != nil {
				_ = c.Disconnect(ctx)
				return errs.New("wsbridge/connect", errs.CodeConnectionFailure,
					errs.WithMessage("start api session"), errs.WithCause(err))
			}
			c.log.Info("gateway bridge connected",
				observability.F("url", c.cfg.URL),
				observability.F("attempt", attempt))
			return nil
		}

		lastErr = err
		c.recordConnect(ctx, telemetry.ResultError)
		c.log.Warn("gateway bridge dial failed",
			observability.F("url", c.cfg.URL),
			observability.F("attempt", attempt),
			observability.Err(err))
		if attempt == c.cfg.MaxConnectAttempts {
			break
		}
		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return errs.New("wsbridge/connect", errs.CodeConnectionFailure,
				errs.WithMessage("connect cancelled"), errs.WithCause(ctx.Err()))
		case <-time.After(sleep):
		}
	}
	return errs.New("wsbridge/connect", errs.CodeConnectionFailure,
		errs.WithMessage("gave up dialing gateway bridge"),
		errs.WithField("url", c.cfg.URL),
		errs.WithField("attempts", strconv.Itoa(c.cfg.MaxConnectAttempts)),
		errs.WithCause(lastErr))
}

// Disconnect closes the bridge connection.
func (c *Client) Disconnect(context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, "shutdown"); err != nil && !isClosed(err) {
		return fmt.Errorf("close bridge: %w", err)
	}
	return nil
}

// Receive blocks for the next callback frame. Transport failures end the
// session and are reported as gateway.ErrClosed; undecodable frames return a
// malformed_callback error and leave the session usable.
func (c *Client) Receive(ctx context.Context) (gateway.Callback, error) {
	conn := c.current()
	if conn == nil {
		return nil, gateway.ErrClosed
	}
	_, frame, err := conn.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", gateway.ErrClosed, err)
	}
	return gateway.DecodeCallback(frame)
}

func (c *Client) send(ctx context.Context, req gateway.Request) error {
	conn := c.current()
	if conn == nil {
		return errs.New("wsbridge/send", errs.CodeUnavailable, errs.WithMessage("not connected"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request pacing: %w", err)
	}
	frame, err := gateway.EncodeRequest(req)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		c.recordRequest(ctx, req.Kind, telemetry.ResultError)
		return fmt.Errorf("write %s: %w", req.Kind, err)
	}
	c.recordRequest(ctx, req.Kind, telemetry.ResultSuccess)
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) recordConnect(ctx context.Context, result string) {
	if c.connectAttempts != nil {
		c.connectAttempts.Add(ctx, 1, metric.WithAttributes(
			telemetry.OperationResultAttributes("gateway.connect", result)...))
	}
}

func (c *Client) recordRequest(ctx context.Context, kind gateway.RequestKind, result string) {
	if c.requests != nil {
		attrs := telemetry.OperationResultAttributes("gateway.request", result)
		attrs = append(attrs, telemetry.AttrRequestKind.String(string(kind)))
		c.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) != -1
}
