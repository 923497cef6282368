package registry

import "github.com/coachpo/tickwire/internal/schema"

// ScratchRecord caches the last-seen field values of one subscription.
// It is created with the binding, discarded with it, and only mutated by the
// ingestion context.
type ScratchRecord struct {
	Instrument schema.InstrumentID

	Bid   float64
	Ask   float64
	Last  float64
	Open  float64
	High  float64
	Low   float64
	Close float64

	BidSize  int64
	AskSize  int64
	LastSize int64
	Volume   int64

	QuoteInterest bool
	TradeInterest bool
}

func newScratchRecord(desc schema.SubscriptionDescriptor) *ScratchRecord {
	return &ScratchRecord{
		Instrument:    desc.Instrument,
		QuoteInterest: desc.QuoteInterest(),
		TradeInterest: desc.TradeInterest(),
	}
}
