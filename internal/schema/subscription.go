// Package schema defines the canonical descriptors, identifiers and domain events.
package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/tickwire/errs"
)

// InstrumentID identifies an instrument in the internal reference data.
type InstrumentID string

// CorrelationID is the process-local id bound to a market-data or historical request.
type CorrelationID int64

// OrderID is the venue order id bound to an order descriptor.
type OrderID int64

// SubscriptionKind tags the data kind of a subscription.
type SubscriptionKind string

const (
	// KindQuote requests top-of-book quotes.
	KindQuote SubscriptionKind = "quote"
	// KindTrade requests last-trade prints.
	KindTrade SubscriptionKind = "trade"
	// KindBar requests real-time bars.
	KindBar SubscriptionKind = "bar"
	// KindDepth requests market depth.
	KindDepth SubscriptionKind = "depth"
	// KindHistorical requests a bounded historical bar range.
	KindHistorical SubscriptionKind = "historical"
)

// Valid reports whether the kind is one of the known subscription kinds.
func (k SubscriptionKind) Valid() bool {
	switch k {
	case KindQuote, KindTrade, KindBar, KindDepth, KindHistorical:
		return true
	default:
		return false
	}
}

// SubscriptionDescriptor is the domain-level description of a market-data subscription.
// Two descriptors with identical fields describe the same subscription.
type SubscriptionDescriptor struct {
	Instrument InstrumentID     `json:"instrument" yaml:"instrument"`
	Kind       SubscriptionKind `json:"kind" yaml:"kind"`
	BarSize    time.Duration    `json:"bar_size,omitempty" yaml:"barSize"`
	WhatToShow string           `json:"what_to_show,omitempty" yaml:"whatToShow"`
	DepthRows  int              `json:"depth_rows,omitempty" yaml:"depthRows"`
	From       time.Time        `json:"from,omitempty" yaml:"from"`
	To         time.Time        `json:"to,omitempty" yaml:"to"`
}

// Fingerprint returns the structural identity of the descriptor.
func (d SubscriptionDescriptor) Fingerprint() string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(string(d.Instrument))
	b.WriteByte('|')
	b.WriteString(string(d.Kind))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(d.BarSize), 10))
	b.WriteByte('|')
	b.WriteString(strings.ToUpper(d.WhatToShow))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(d.DepthRows))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(unixNanos(d.From), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(unixNanos(d.To), 10))
	return b.String()
}

// Equal reports structural equality.
func (d SubscriptionDescriptor) Equal(other SubscriptionDescriptor) bool {
	return d.Fingerprint() == other.Fingerprint()
}

// QuoteInterest reports whether quote events should be derived for this subscription.
func (d SubscriptionDescriptor) QuoteInterest() bool { return d.Kind == KindQuote }

// TradeInterest reports whether trade events should be derived for this subscription.
func (d SubscriptionDescriptor) TradeInterest() bool { return d.Kind == KindTrade }

// Validate ensures the kind-specific parameters are present.
func (d SubscriptionDescriptor) Validate() error {
	if strings.TrimSpace(string(d.Instrument)) == "" {
		return errs.New("schema/subscription", errs.CodeInvalid, errs.WithMessage("instrument required"))
	}
	if !d.Kind.Valid() {
		return errs.New("schema/subscription", errs.CodeInvalid, errs.WithMessage("unknown subscription kind "+strconv.Quote(string(d.Kind))))
	}
	switch d.Kind {
	case KindBar:
		if d.BarSize <= 0 {
			return errs.New("schema/subscription", errs.CodeInvalid, errs.WithMessage("bar size required"))
		}
	case KindDepth:
		if d.DepthRows <= 0 {
			return errs.New("schema/subscription", errs.CodeInvalid, errs.WithMessage("depth rows must be >0"))
		}
	case KindHistorical:
		if d.BarSize <= 0 {
			return errs.New("schema/subscription", errs.CodeInvalid, errs.WithMessage("bar size required"))
		}
		if d.From.IsZero() || d.To.IsZero() || !d.To.After(d.From) {
			return errs.New("schema/subscription", errs.CodeInvalid, errs.WithMessage("historical range requires from < to"))
		}
	case KindQuote, KindTrade:
	}
	return nil
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
