// Package risk enforces pre-trade limits on outgoing orders.
package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/schema"
)

// Limits defines per-order risk parameters. Zero values disable a check.
type Limits struct {
	// MaxOrderQuantity caps the quantity of a single order.
	MaxOrderQuantity decimal.Decimal `yaml:"maxOrderQuantity"`

	// MaxOrderNotional caps quantity times limit price for priced orders.
	MaxOrderNotional decimal.Decimal `yaml:"maxOrderNotional"`

	// OrderThrottle is the maximum rate of orders per second.
	OrderThrottle float64 `yaml:"orderThrottle"`
	OrderBurst    int     `yaml:"orderBurst"`
}

// Manager checks orders against Limits. It is safe for concurrent use.
type Manager struct {
	limits  Limits
	limiter *rate.Limiter
}

// NewManager creates a new risk manager with the given limits.
func NewManager(limits Limits) *Manager {
	m := &Manager{limits: limits}
	if limits.OrderThrottle > 0 {
		burst := limits.OrderBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(limits.OrderThrottle), burst)
	}
	return m
}

func rejected(msg string) error {
	return errs.New("risk/check", errs.CodeInvalid, errs.WithMessage(msg))
}

// CheckOrder evaluates an order against the configured limits. Throttled
// orders wait for a token until ctx ends.
func (m *Manager) CheckOrder(ctx context.Context, desc schema.OrderDescriptor) error {
	if m == nil {
		return nil
	}
	if limit := m.limits.MaxOrderQuantity; limit.IsPositive() && desc.Quantity.GreaterThan(limit) {
		return rejected(fmt.Sprintf("order quantity %s exceeds limit %s", desc.Quantity, limit))
	}
	if limit := m.limits.MaxOrderNotional; limit.IsPositive() && !desc.LimitPrice.IsZero() {
		notional := desc.Quantity.Mul(desc.LimitPrice.Abs())
		if notional.GreaterThan(limit) {
			return rejected(fmt.Sprintf("order notional %s exceeds limit %s", notional, limit))
		}
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return errs.New("risk/check", errs.CodeUnavailable,
				errs.WithMessage("order throttle"), errs.WithCause(err))
		}
	}
	return nil
}
