package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
)

func TestFingerprintStructuralEquality(t *testing.T) {
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	a := SubscriptionDescriptor{Instrument: "AAPL", Kind: KindHistorical, BarSize: time.Minute, From: from, To: from.Add(24 * time.Hour)}
	b := SubscriptionDescriptor{Instrument: "AAPL", Kind: KindHistorical, BarSize: time.Minute, From: from.In(time.FixedZone("X", 3600)), To: from.Add(24 * time.Hour)}

	require.True(t, a.Equal(b), "same instant in another zone is the same subscription")

	b.BarSize = 5 * time.Minute
	require.False(t, a.Equal(b))
}

func TestFingerprintDistinguishesKind(t *testing.T) {
	quote := SubscriptionDescriptor{Instrument: "EURUSD", Kind: KindQuote}
	trade := SubscriptionDescriptor{Instrument: "EURUSD", Kind: KindTrade}

	require.NotEqual(t, quote.Fingerprint(), trade.Fingerprint())
	require.True(t, quote.QuoteInterest())
	require.False(t, quote.TradeInterest())
	require.True(t, trade.TradeInterest())
}

func TestSubscriptionValidate(t *testing.T) {
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		desc SubscriptionDescriptor
		ok   bool
	}{
		{"quote", SubscriptionDescriptor{Instrument: "AAPL", Kind: KindQuote}, true},
		{"missing instrument", SubscriptionDescriptor{Kind: KindQuote}, false},
		{"unknown kind", SubscriptionDescriptor{Instrument: "AAPL", Kind: "tape"}, false},
		{"bar without size", SubscriptionDescriptor{Instrument: "AAPL", Kind: KindBar}, false},
		{"depth rows", SubscriptionDescriptor{Instrument: "AAPL", Kind: KindDepth, DepthRows: 5}, true},
		{"depth without rows", SubscriptionDescriptor{Instrument: "AAPL", Kind: KindDepth}, false},
		{"historical", SubscriptionDescriptor{Instrument: "AAPL", Kind: KindHistorical, BarSize: time.Hour, From: from, To: from.Add(time.Hour)}, true},
		{"historical inverted", SubscriptionDescriptor{Instrument: "AAPL", Kind: KindHistorical, BarSize: time.Hour, From: from, To: from}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.desc.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, errs.IsCode(err, errs.CodeInvalid))
		})
	}
}

func TestOrderValidate(t *testing.T) {
	base := OrderDescriptor{
		ClientID:      "strat-1",
		ClientOrderID: "c-1",
		Instrument:    "AAPL",
		Side:          SideBuy,
		Type:          OrderTypeLimit,
		Quantity:      decimal.NewFromInt(100),
		LimitPrice:    decimal.RequireFromString("187.25"),
		TIF:           TIFDay,
	}
	require.NoError(t, base.Validate())

	noPrice := base
	noPrice.LimitPrice = decimal.Zero
	require.Error(t, noPrice.Validate())

	market := base
	market.Type = OrderTypeMarket
	market.LimitPrice = decimal.Zero
	require.NoError(t, market.Validate())

	zeroQty := base
	zeroQty.Quantity = decimal.Zero
	require.Error(t, zeroQty.Validate())
}

func TestOrderAmendBumpsVersion(t *testing.T) {
	base := OrderDescriptor{ClientID: "s", ClientOrderID: "c", Quantity: decimal.NewFromInt(10), LimitPrice: decimal.NewFromInt(5), Version: 1}
	qty := decimal.NewFromInt(20)

	next := base.Amend(OrderAmend{Quantity: &qty})

	require.Equal(t, 2, next.Version)
	require.True(t, next.Quantity.Equal(qty))
	require.True(t, next.LimitPrice.Equal(base.LimitPrice))
	require.Equal(t, base.Key(), next.Key())
	require.Equal(t, 1, base.Version, "amend must not mutate the previous version")
}

func TestOrderStatusTerminal(t *testing.T) {
	require.True(t, OrderStatusCancelled.Terminal())
	require.True(t, OrderStatusRejected.Terminal())
	require.True(t, OrderStatusFilled.Terminal())
	require.False(t, OrderStatusNew.Terminal())
	require.False(t, OrderStatusPartiallyFilled.Terminal())
}

func TestNewEventTopic(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	evt := NewEvent(EventTypeExecutionReport, "AAPL", ts, ExecutionReportPayload{ExecID: "e1"})

	require.NotEmpty(t, evt.EventID)
	require.Equal(t, TopicExecution, evt.Topic)
	require.Equal(t, TopicMarketData, EventTypeBar.Topic())
	require.Equal(t, ts, evt.Timestamp)
}
