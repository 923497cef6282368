package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/schema"
)

func order(qty, price string) schema.OrderDescriptor {
	desc := schema.OrderDescriptor{
		ClientID:      "desk-1",
		ClientOrderID: "c-1",
		Instrument:    "AAPL",
		Side:          schema.SideBuy,
		Type:          schema.OrderTypeMarket,
		Quantity:      decimal.RequireFromString(qty),
	}
	if price != "" {
		desc.Type = schema.OrderTypeLimit
		desc.LimitPrice = decimal.RequireFromString(price)
	}
	return desc
}

func TestCheckOrderLimits(t *testing.T) {
	m := NewManager(Limits{
		MaxOrderQuantity: decimal.NewFromInt(500),
		MaxOrderNotional: decimal.NewFromInt(50000),
	})
	ctx := context.Background()

	require.NoError(t, m.CheckOrder(ctx, order("100", "187.25")))
	require.NoError(t, m.CheckOrder(ctx, order("500", "")))

	err := m.CheckOrder(ctx, order("501", ""))
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
	require.Contains(t, err.Error(), "quantity")

	err = m.CheckOrder(ctx, order("300", "187.25"))
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
	require.Contains(t, err.Error(), "notional")
}

func TestZeroLimitsAllowEverything(t *testing.T) {
	var nilManager *Manager
	require.NoError(t, nilManager.CheckOrder(context.Background(), order("1000000", "1")))
	require.NoError(t, NewManager(Limits{}).CheckOrder(context.Background(), order("1000000", "1")))
}

func TestThrottleHonoursContext(t *testing.T) {
	m := NewManager(Limits{OrderThrottle: 0.01})
	require.NoError(t, m.CheckOrder(context.Background(), order("1", "")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.CheckOrder(ctx, order("1", ""))
	require.True(t, errs.IsCode(err, errs.CodeUnavailable))
}
