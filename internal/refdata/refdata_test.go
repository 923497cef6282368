package refdata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/schema"
)

func TestStaticDefaultsAndLookup(t *testing.T) {
	res, err := NewStatic(map[schema.InstrumentID]gateway.Contract{
		"AAPL":   {},
		"EURUSD": {Symbol: "EUR", SecType: "cash", Exchange: "IDEALPRO", Currency: "usd"},
	})
	require.NoError(t, err)

	aapl, err := res.Contract("AAPL")
	require.NoError(t, err)
	require.Equal(t, gateway.Contract{Symbol: "AAPL", SecType: "STK", Exchange: "SMART", Currency: "USD"}, aapl)

	fx, err := res.Contract("EURUSD")
	require.NoError(t, err)
	require.Equal(t, "CASH", fx.SecType)
	require.Equal(t, "USD", fx.Currency)

	require.Equal(t, []schema.InstrumentID{"AAPL", "EURUSD"}, res.Instruments())
}

func TestStaticUnknownInstrument(t *testing.T) {
	res, err := NewStatic(nil)
	require.NoError(t, err)
	_, err = res.Contract("MSFT")
	require.True(t, errs.IsCode(err, errs.CodeNotFound))
	require.Error(t, res.Add(" ", gateway.Contract{}))
}
