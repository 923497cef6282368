package replay

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
)

const capture = `
# session 2024-03-01
{"type":"next_valid_id","data":{"order_id":1000}}
{"type":"tick_price","data":{"id":1,"field":1,"price":1.00}}

{"type":"tick_price","data":{"id":1,"field":2,"price":1.01}}
{"type":"bogus"}
{"type":"tick_size","data":{"id":1,"field":0,"size":300}}
`

func TestReceiveReplaysFramesUntilEOF(t *testing.T) {
	c := New(strings.NewReader(capture))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	cb, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.NextValidID{OrderID: 1000}, cb)

	cb, err = c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.TickPrice{ID: 1, Field: gateway.TickBid, Price: 1.00}, cb)

	cb, err = c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.TickPrice{ID: 1, Field: gateway.TickAsk, Price: 1.01}, cb)

	_, err = c.Receive(ctx)
	require.ErrorIs(t, err, errs.ErrMalformedCallback)
	require.Contains(t, err.Error(), "capture line 7")

	cb, err = c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.TickSize{ID: 1, Field: gateway.TickBidSize, Size: 300}, cb)

	_, err = c.Receive(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestReceiveRequiresConnection(t *testing.T) {
	c := New(strings.NewReader(capture))
	_, err := c.Receive(context.Background())
	require.ErrorIs(t, err, gateway.ErrClosed)
}

func TestReceiveHonoursContextWhilePacing(t *testing.T) {
	c := New(strings.NewReader(capture), WithPace(time.Hour))
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestsAreRecorded(t *testing.T) {
	c := New(strings.NewReader(""))
	ctx := context.Background()
	contract := gateway.Contract{Symbol: "AAPL", SecType: "STK", Exchange: "SMART", Currency: "USD"}

	require.NoError(t, c.RequestMarketData(ctx, 1, contract))
	require.NoError(t, c.CancelMarketData(ctx, 1))

	reqs := c.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, gateway.RequestMarketData, reqs[0].Kind)
	require.Equal(t, gateway.MarketDataPayload{Contract: contract}, reqs[0].Payload)
	require.Equal(t, gateway.RequestCancelMarketData, reqs[1].Kind)
}

func TestOpenAndDisconnectClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(capture), 0o600))

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect(context.Background()))

	_, err = c.Receive(context.Background())
	require.ErrorIs(t, err, gateway.ErrClosed)

	_, err = Open(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}
