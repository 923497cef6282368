package gateway

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/coachpo/tickwire/errs"
)

// Envelope is the wire frame shared by callbacks and requests.
type Envelope struct {
	Type string          `json:"type"`
	ID   int64           `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

var errEmptyPayload = errors.New("empty payload")

func malformed(op string, cause error, msg string) error {
	return errs.New(op, errs.CodeMalformedCallback, errs.WithMessage(msg), errs.WithCause(cause))
}

// EncodeCallback renders cb as an envelope frame.
func EncodeCallback(cb Callback) ([]byte, error) {
	if cb == nil {
		return nil, errs.New("gateway/encode", errs.CodeInvalid, errs.WithMessage("nil callback"))
	}
	data, err := json.Marshal(cb)
	if err != nil {
		return nil, fmt.Errorf("encode %s callback: %w", cb.Kind(), err)
	}
	out, err := json.Marshal(Envelope{Type: string(cb.Kind()), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}

// DecodeCallback parses one envelope frame. Undecodable frames and unknown
// kinds fail with a malformed_callback error.
func DecodeCallback(frame []byte) (Callback, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, malformed("gateway/decode", err, "invalid envelope")
	}
	kind := CallbackKind(env.Type)
	var (
		cb  Callback
		err error
	)
	switch kind {
	case KindTickPrice:
		cb, err = decodeInto[TickPrice](env.Data)
	case KindTickSize:
		cb, err = decodeInto[TickSize](env.Data)
	case KindDepthUpdate:
		cb, err = decodeInto[DepthUpdate](env.Data)
	case KindHistoricalBar:
		cb, err = decodeInto[HistoricalBar](env.Data)
	case KindRealtimeBar:
		cb, err = decodeInto[RealtimeBar](env.Data)
	case KindOrderStatus:
		cb, err = decodeInto[OrderStatus](env.Data)
	case KindExecDetails:
		cb, err = decodeInto[ExecDetails](env.Data)
	case KindNextValidID:
		cb, err = decodeInto[NextValidID](env.Data)
	case KindConnectionClosed:
		cb = ConnectionClosed{}
	case KindError:
		cb, err = decodeInto[GatewayError](env.Data)
	default:
		return nil, errs.New("gateway/decode", errs.CodeMalformedCallback,
			errs.WithMessage("unknown callback kind"), errs.WithField("type", env.Type))
	}
	if err != nil {
		return nil, malformed("gateway/decode", err, "invalid "+env.Type+" payload")
	}
	return cb, nil
}

func decodeInto[T Callback](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, errEmptyPayload
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// EncodeRequest renders req as an envelope frame.
func EncodeRequest(req Request) ([]byte, error) {
	env := Envelope{Type: string(req.Kind), ID: req.ID}
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", req.Kind, err)
		}
		env.Data = data
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}

// DecodeRequest parses a request frame, leaving the payload raw.
func DecodeRequest(frame []byte) (RequestKind, int64, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", 0, nil, errs.New("gateway/decode", errs.CodeInvalid, errs.WithMessage("invalid request envelope"), errs.WithCause(err))
	}
	return RequestKind(env.Type), env.ID, env.Data, nil
}
