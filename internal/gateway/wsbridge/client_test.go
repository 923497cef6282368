package wsbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
)

type bridgeServer struct {
	*httptest.Server
	requests chan gateway.RequestKind
	payloads chan json.RawMessage
}

// newBridgeServer accepts one session, records every request and pushes frames after start_api.
func newBridgeServer(t *testing.T, frames ...string) *bridgeServer {
	t.Helper()
	srv := &bridgeServer{
		requests: make(chan gateway.RequestKind, 16),
		payloads: make(chan json.RawMessage, 16),
	}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			kind, _, payload, err := gateway.DecodeRequest(data)
			if err != nil {
				return
			}
			srv.requests <- kind
			srv.payloads <- payload
			if kind == gateway.RequestStartAPI {
				for _, f := range frames {
					if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestConnectHandshakeAndReceive(t *testing.T) {
	srv := newBridgeServer(t,
		`{"type":"next_valid_id","data":{"order_id":500}}`,
		`{"type":"nonsense"}`,
		`{"type":"tick_price","data":{"id":3,"field":4,"price":187.5}}`,
	)
	client, err := New(Config{URL: wsURL(srv.URL), ClientID: 7}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect(ctx)

	require.Equal(t, gateway.RequestStartAPI, <-srv.requests)
	var start gateway.StartAPIPayload
	require.NoError(t, json.Unmarshal(<-srv.payloads, &start))
	require.Equal(t, 7, start.ClientID)

	cb, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.NextValidID{OrderID: 500}, cb)

	_, err = client.Receive(ctx)
	require.ErrorIs(t, err, errs.ErrMalformedCallback)

	cb, err = client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, gateway.TickPrice{ID: 3, Field: gateway.TickLast, Price: 187.5}, cb)
}

func TestRequestsAreWrittenAsEnvelopes(t *testing.T) {
	srv := newBridgeServer(t)
	client, err := New(Config{URL: wsURL(srv.URL), RequestsPerSecond: 1000, RequestBurst: 10}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect(ctx)
	<-srv.requests
	<-srv.payloads

	contract := gateway.Contract{Symbol: "AAPL", SecType: "STK", Exchange: "SMART", Currency: "USD"}
	require.NoError(t, client.RequestMarketDepth(ctx, 12, contract, 5))

	require.Equal(t, gateway.RequestMarketDepth, <-srv.requests)
	var payload gateway.MarketDepthPayload
	require.NoError(t, json.Unmarshal(<-srv.payloads, &payload))
	require.Equal(t, 5, payload.Rows)
	require.Equal(t, "AAPL", payload.Contract.Symbol)
}

func TestConnectFailsAfterAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv.URL)
	srv.Close()

	client, err := New(Config{
		URL:                url,
		MaxConnectAttempts: 2,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         2 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.ErrorIs(t, err, errs.ErrConnectionFailure)
	require.Contains(t, err.Error(), "attempts=\"2\"")
}

func TestReceiveAndSendRequireConnection(t *testing.T) {
	client, err := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	_, err = client.Receive(context.Background())
	require.ErrorIs(t, err, gateway.ErrClosed)

	err = client.CancelMarketData(context.Background(), 1)
	require.True(t, errs.IsCode(err, errs.CodeUnavailable))
	require.NoError(t, client.Disconnect(context.Background()))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{}, nil)
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}
