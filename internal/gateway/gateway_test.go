package gateway

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/schema"
)

func TestDecodeCallbackFrames(t *testing.T) {
	cb, err := DecodeCallback([]byte(`{"type":"tick_price","data":{"id":7,"field":1,"price":101.25}}`))
	require.NoError(t, err)
	require.Equal(t, TickPrice{ID: 7, Field: TickBid, Price: 101.25}, cb)

	cb, err = DecodeCallback([]byte(`{"type":"order_status","data":{"order_id":11,"status":"Submitted","filled":"0","remaining":"100","avg_fill_price":0}}`))
	require.NoError(t, err)
	status, ok := cb.(OrderStatus)
	require.True(t, ok)
	require.Equal(t, schema.OrderID(11), status.OrderID)
	require.True(t, status.Remaining.Equal(decimal.NewFromInt(100)))

	cb, err = DecodeCallback([]byte(`{"type":"connection_closed"}`))
	require.NoError(t, err)
	require.Equal(t, ConnectionClosed{}, cb)
}

func TestDecodeCallbackMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"type":`,
		"unknown kind":  `{"type":"account_summary","data":{}}`,
		"bad payload":   `{"type":"tick_size","data":{"id":"x"}}`,
		"empty payload": `{"type":"tick_size"}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCallback([]byte(frame))
			require.ErrorIs(t, err, errs.ErrMalformedCallback)
		})
	}
}

func TestEncodeCallbackRoundTrip(t *testing.T) {
	in := ExecDetails{
		OrderID:  42,
		ExecID:   "0001f4e8.1",
		Time:     "20240301  14:30:05",
		Side:     "BOT",
		Shares:   decimal.NewFromInt(50),
		Price:    decimal.RequireFromString("187.12"),
		CumQty:   decimal.NewFromInt(50),
		AvgPrice: decimal.RequireFromString("187.12"),
	}
	frame, err := EncodeCallback(in)
	require.NoError(t, err)

	out, err := DecodeCallback(frame)
	require.NoError(t, err)
	got := out.(ExecDetails)
	require.Equal(t, in.ExecID, got.ExecID)
	require.True(t, in.Price.Equal(got.Price))
	require.True(t, in.CumQty.Equal(got.CumQty))
}

func TestRequesterRendersRequests(t *testing.T) {
	var sent []Request
	req := NewRequester(func(_ context.Context, r Request) error {
		sent = append(sent, r)
		return nil
	})
	contract := Contract{Symbol: "AAPL", SecType: "STK", Exchange: "SMART", Currency: "USD"}
	ctx := context.Background()

	require.NoError(t, req.RequestRealtimeBars(ctx, 3, contract, 5*time.Second, ""))
	require.NoError(t, req.CancelOrder(ctx, 9))

	require.Len(t, sent, 2)
	require.Equal(t, RequestRealtimeBars, sent[0].Kind)
	require.Equal(t, int64(3), sent[0].ID)
	require.Equal(t, RealtimeBarsPayload{Contract: contract, BarSize: 5, WhatToShow: "TRADES"}, sent[0].Payload)
	require.Equal(t, Request{Kind: RequestCancelOrder, ID: 9}, sent[1])

	frame, err := EncodeRequest(sent[0])
	require.NoError(t, err)
	kind, id, data, err := DecodeRequest(frame)
	require.NoError(t, err)
	require.Equal(t, RequestRealtimeBars, kind)
	require.Equal(t, int64(3), id)
	var payload RealtimeBarsPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, 5, payload.BarSize)
}

func TestParseVenueTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ts, err := ParseVenueTime("20240301  14:30:00", nil)
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)))

	ts, err = ParseVenueTime("20240301", ny)
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, ny)))

	ts, err = ParseVenueTime("1709303400", nil)
	require.NoError(t, err)
	require.Equal(t, time.Unix(1709303400, 0).UTC(), ts)

	ts, err = ParseVenueTime("20240301 09:30:00 America/New_York", nil)
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, ny)))

	_, err = ParseVenueTime("yesterday", nil)
	require.Error(t, err)
	_, err = ParseVenueTime(" ", nil)
	require.Error(t, err)
}

func TestHistoricalQuery(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	q := NewHistoricalQuery(from, from.Add(72*time.Hour), time.Hour, "midpoint")
	require.Equal(t, "20240304 00:00:00 UTC", q.EndDateTime)
	require.Equal(t, "3 D", q.Duration)
	require.Equal(t, "1 hour", q.BarSize)
	require.Equal(t, "MIDPOINT", q.WhatToShow)

	q = NewHistoricalQuery(from, from.Add(30*time.Minute), 5*time.Minute, "")
	require.Equal(t, "1800 S", q.Duration)
	require.Equal(t, "5 mins", q.BarSize)
	require.Equal(t, "TRADES", q.WhatToShow)

	require.Equal(t, "1 day", barSizeSetting(24*time.Hour))
	require.Equal(t, "30 secs", barSizeSetting(30*time.Second))
}

func TestHistoricalEndMarkerAndErrors(t *testing.T) {
	require.True(t, IsHistoricalEnd("finished-20240301  00:00:00-20240304  00:00:00"))
	require.False(t, IsHistoricalEnd("20240301"))

	require.True(t, GatewayError{ID: 4, Code: ErrCodeNotSubscribed}.EndsDataRequest())
	require.False(t, GatewayError{ID: -1, Code: ErrCodeHistoricalDataError}.EndsDataRequest())
	require.False(t, GatewayError{ID: 4, Code: 2104}.EndsDataRequest())
}

func TestNewOrderTicket(t *testing.T) {
	desc := schema.OrderDescriptor{
		ClientID:      "strat",
		ClientOrderID: "c-1",
		Side:          schema.SideSell,
		Type:          schema.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(10),
		LimitPrice:    decimal.RequireFromString("99.5"),
	}
	ticket := NewOrderTicket(desc, "DU123")
	require.Equal(t, "SELL", ticket.Action)
	require.Equal(t, "LMT", ticket.OrderType)
	require.Equal(t, "DAY", ticket.TIF)
	require.Equal(t, "strat/c-1", ticket.OrderRef)
	require.Equal(t, "DU123", ticket.Account)
}
