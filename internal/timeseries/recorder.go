package timeseries

import (
	"sync"
	"time"

	"github.com/coachpo/tickwire/internal/schema"
)

// Frame field keys written by the Recorder.
const (
	FieldOpen    = "open"
	FieldHigh    = "high"
	FieldLow     = "low"
	FieldClose   = "close"
	FieldVolume  = "volume"
	FieldBid     = "bid"
	FieldBidSize = "bid_size"
	FieldAsk     = "ask"
	FieldAskSize = "ask_size"
	FieldPrice   = "price"
	FieldSize    = "size"
)

type frameKey struct {
	instrument schema.InstrumentID
	typ        schema.EventType
	barSize    time.Duration
}

func (k frameKey) name() string {
	name := string(k.instrument) + "/" + string(k.typ)
	if k.barSize > 0 {
		name += "/" + k.barSize.String()
	}
	return name
}

// Recorder appends market-data events into per-instrument frames, one frame
// per event type. Bars are further split by bar size so a historical
// backfill never interleaves with a live bar stream. It runs on the
// ingestion goroutine.
type Recorder struct {
	opts []Option

	mu     sync.RWMutex
	frames map[frameKey]*Frame
}

// NewRecorder creates a recorder whose frames use opts.
func NewRecorder(opts ...Option) *Recorder {
	return &Recorder{opts: opts, frames: make(map[frameKey]*Frame)}
}

// Record writes the event's fields. Events other than Bar, Quote and Trade are ignored.
func (r *Recorder) Record(evt *schema.Event) error {
	if evt == nil {
		return nil
	}
	key := frameKey{instrument: evt.Instrument, typ: evt.Type}
	var values map[string]float64
	switch p := evt.Payload.(type) {
	case schema.BarPayload:
		key.barSize = p.BarSize
		values = map[string]float64{
			FieldOpen:   p.Open,
			FieldHigh:   p.High,
			FieldLow:    p.Low,
			FieldClose:  p.Close,
			FieldVolume: float64(p.Volume),
		}
	case schema.QuotePayload:
		values = map[string]float64{
			FieldBid:     p.Bid,
			FieldBidSize: float64(p.BidSize),
			FieldAsk:     p.Ask,
			FieldAskSize: float64(p.AskSize),
		}
	case schema.TradePayload:
		values = map[string]float64{
			FieldPrice: p.Price,
			FieldSize:  float64(p.Size),
		}
	default:
		return nil
	}
	return r.frame(key, true).Append(evt.Timestamp, values)
}

func (r *Recorder) frame(key frameKey, create bool) *Frame {
	r.mu.RLock()
	f := r.frames[key]
	r.mu.RUnlock()
	if f != nil || !create {
		return f
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f = r.frames[key]; f == nil {
		f = NewFrame(key.name(), r.opts...)
		r.frames[key] = f
	}
	return f
}

// Frame returns the frame holding events of typ for instrument. Bars without
// a bar size land here too; sized bars are read with BarFrame.
func (r *Recorder) Frame(instrument schema.InstrumentID, typ schema.EventType) (*Frame, bool) {
	f := r.frame(frameKey{instrument: instrument, typ: typ}, false)
	return f, f != nil
}

// BarFrame returns the frame holding bars of the given size for instrument.
func (r *Recorder) BarFrame(instrument schema.InstrumentID, barSize time.Duration) (*Frame, bool) {
	f := r.frame(frameKey{instrument: instrument, typ: schema.EventTypeBar, barSize: barSize}, false)
	return f, f != nil
}
