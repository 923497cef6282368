package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/schema"
)

var base = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func at(i int) time.Time { return base.Add(time.Duration(i) * time.Minute) }

func TestAppendStrictlyIncreasing(t *testing.T) {
	s := NewStore()
	values := []float64{1, 2, 3, 4, 5}
	for i, v := range values {
		require.NoError(t, s.Append("close", at(i), v))
	}
	require.Equal(t, len(values), s.Size("close"))
	require.Equal(t, 5.0, s.Now("close"))
}

func TestAppendEqualTimestampAmends(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append("close", at(0), 5))
	require.NoError(t, s.Append("close", at(0), 7))

	require.Equal(t, 1, s.Size("close"))
	require.Equal(t, 7.0, s.Now("close"))
}

func TestAppendEarlierTimestampRejected(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append("close", at(5), 10))

	err := s.Append("close", at(1), 11)
	require.ErrorIs(t, err, errs.ErrOutOfOrderTimestamp)
	require.True(t, errs.IsCode(err, errs.CodeOutOfOrderTimestamp))

	require.Equal(t, 1, s.Size("close"))
	require.Equal(t, 10.0, s.Now("close"))
}

func TestKeysAreIndependent(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append("a", at(5), 1))
	require.NoError(t, s.Append("b", at(1), 2))
	require.Equal(t, 1, s.Size("a"))
	require.Equal(t, 1, s.Size("b"))
	require.ElementsMatch(t, []string{"a", "b"}, s.Keys())
}

func TestLookbackAndMissingValue(t *testing.T) {
	s := NewStore()
	require.True(t, math.IsNaN(s.Now("close")), "empty series yields the missing value")
	_, ok := s.Lookup("close", 0)
	require.False(t, ok)

	for i, v := range []float64{10, 11, 12} {
		require.NoError(t, s.Append("close", at(i), v))
	}

	require.Equal(t, 12.0, s.At("close", -1))
	require.Equal(t, s.Now("close"), s.At("close", -1))
	require.Equal(t, 10.0, s.At("close", 0))
	require.Equal(t, 10.0, s.At("close", -3))
	require.Equal(t, 12.0, s.Ago("close", 0))
	require.Equal(t, 11.0, s.Ago("close", 1))
	require.True(t, math.IsNaN(s.Ago("close", 3)))
	require.True(t, math.IsNaN(s.Ago("close", -1)))
	require.True(t, math.IsNaN(s.At("close", 3)))
	require.True(t, math.IsNaN(s.At("close", -4)))
}

func TestCustomMissingValue(t *testing.T) {
	s := NewStore(WithMissingValue(-1))
	require.Equal(t, -1.0, s.Now("close"))
	require.Equal(t, -1.0, s.MissingValue())

	require.NoError(t, s.Append("close", at(0), 3))
	require.NoError(t, s.Append("close", at(1), -1))
	require.NoError(t, s.Append("close", at(2), 5))
	require.Equal(t, 4.0, s.Mean("close", 0, 3), "sentinel values are skipped")
}

func TestMeanFixture(t *testing.T) {
	s := NewStore()
	fixture := []float64{44.34, 44.09, 44.15, 43.61}
	for i, v := range fixture {
		require.NoError(t, s.Append("close", at(i), v))
	}

	var sum float64
	for _, v := range fixture {
		sum += v
	}
	require.Equal(t, sum/4, s.Mean("close", 0, 4))
	require.InDelta(t, 44.0475, s.Mean("close", 0, 4), 1e-9)
}

func TestAggregatesSkipNaN(t *testing.T) {
	s := NewStore()
	for i, v := range []float64{2, math.NaN(), 4, 4, 4, math.NaN(), 5, 5, 7, 9} {
		require.NoError(t, s.Append("x", at(i), v))
	}

	require.Equal(t, 5.0, s.Mean("x", 0, 10))
	require.Equal(t, 4.0, s.Var("x", 0, 10))
	require.Equal(t, 2.0, s.Std("x", 0, 10))
	require.Equal(t, 2.0, s.Min("x", 0, 10))
	require.Equal(t, 9.0, s.Max("x", 0, 10))
	require.Equal(t, 4.5, s.Median("x", 0, 10))
}

func TestAggregateWindows(t *testing.T) {
	s := NewStore()
	for i, v := range []float64{1, 2, 3, 4, 5} {
		require.NoError(t, s.Append("x", at(i), v))
	}

	require.Equal(t, 1.5, s.Mean("x", 0, 2), "end is exclusive")
	require.Equal(t, 4.5, s.Mean("x", -2, 5), "negative start counts from the end")
	require.Equal(t, 3.0, s.Median("x", 0, 100), "end is clamped")
	require.True(t, math.IsNaN(s.Mean("x", 3, 3)), "empty window")
	require.True(t, math.IsNaN(s.Mean("missing", 0, 3)))
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	s := NewStore()
	var calls []string
	s.Subscribe("close", func(key string, p Point) { calls = append(calls, "first") })
	cancel := s.Subscribe("close", func(key string, p Point) { calls = append(calls, "second") })
	s.Subscribe("close", func(key string, p Point) {
		calls = append(calls, "third")
		require.Equal(t, p.Value, s.Now(key), "subscriber observes the accepted write")
	})

	require.NoError(t, s.Append("close", at(0), 1))
	require.Equal(t, []string{"first", "second", "third"}, calls)

	calls = nil
	require.NoError(t, s.Append("close", at(0), 2))
	require.Len(t, calls, 3, "amend notifies too")

	calls = nil
	cancel()
	require.NoError(t, s.Append("close", at(1), 3))
	require.Equal(t, []string{"first", "third"}, calls)

	calls = nil
	require.Error(t, s.Append("close", at(0), 4))
	require.Empty(t, calls, "rejected writes are not published")
}

func TestValueAtAndValues(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append("x", at(0), 1))
	require.NoError(t, s.Append("x", at(2), 3))

	v, ok := s.ValueAt("x", at(2))
	require.True(t, ok)
	require.Equal(t, 3.0, v)
	_, ok = s.ValueAt("x", at(1))
	require.False(t, ok)

	pts := s.Values("x")
	require.Equal(t, []Point{{Time: at(0), Value: 1}, {Time: at(2), Value: 3}}, pts)
	pts[0].Value = 99
	require.Equal(t, 1.0, s.At("x", 0), "Values returns a copy")
}

func TestFrameSharedNotification(t *testing.T) {
	f := NewFrame("bars")
	var notifications int
	var last map[string]float64
	f.Subscribe(func(ts time.Time, values map[string]float64) {
		notifications++
		last = values
	})

	require.NoError(t, f.Append(at(0), map[string]float64{"open": 1, "close": 2}))
	require.Equal(t, 1, notifications)
	require.Equal(t, map[string]float64{"open": 1, "close": 2}, last)
	require.Equal(t, []string{"close", "open"}, f.Keys())

	require.NoError(t, f.Append(at(1), map[string]float64{"close": 3}))
	require.Equal(t, 2, f.Size("close"))
	require.Equal(t, 1, f.Size("open"), "keys keep independent state")
	require.Equal(t, 2.0, f.Ago("close", 1))
}

func TestFrameRejectsWholeWriteOnOutOfOrderKey(t *testing.T) {
	f := NewFrame("bars")
	require.NoError(t, f.Append(at(5), map[string]float64{"close": 1}))
	require.NoError(t, f.Append(at(1), map[string]float64{"open": 1}))

	err := f.Append(at(3), map[string]float64{"open": 2, "close": 2})
	require.ErrorIs(t, err, errs.ErrOutOfOrderTimestamp)
	require.Equal(t, 1.0, f.Now("open"), "no key is mutated when one is rejected")
	require.Equal(t, 1, f.Size("open"))
}

func TestRecorderWritesMarketDataFrames(t *testing.T) {
	rec := NewRecorder()

	bar := schema.NewEvent(schema.EventTypeBar, "AAPL", at(0), schema.BarPayload{Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 100})
	require.NoError(t, rec.Record(bar))
	quote := schema.NewEvent(schema.EventTypeQuote, "AAPL", at(0), schema.QuotePayload{Bid: 1, Ask: 1.01, BidSize: 5, AskSize: 7})
	require.NoError(t, rec.Record(quote))
	require.NoError(t, rec.Record(schema.NewEvent(schema.EventTypeOrderStatusUpdate, "AAPL", at(0), schema.OrderStatusUpdatePayload{})))

	bars, ok := rec.Frame("AAPL", schema.EventTypeBar)
	require.True(t, ok)
	require.Equal(t, 2.0, bars.Now(FieldClose))
	require.Equal(t, 100.0, bars.Now(FieldVolume))

	quotes, ok := rec.Frame("AAPL", schema.EventTypeQuote)
	require.True(t, ok)
	require.Equal(t, 1.01, quotes.Now(FieldAsk))

	_, ok = rec.Frame("AAPL", schema.EventTypeOrderStatusUpdate)
	require.False(t, ok)

	stale := schema.NewEvent(schema.EventTypeBar, "AAPL", base.Add(-time.Minute), schema.BarPayload{Close: 9})
	require.ErrorIs(t, rec.Record(stale), errs.ErrOutOfOrderTimestamp)
}

func TestRecorderSeparatesBarSizes(t *testing.T) {
	rec := NewRecorder()

	live := schema.NewEvent(schema.EventTypeBar, "AAPL", time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
		schema.BarPayload{Close: 187.5, BarSize: 5 * time.Second})
	require.NoError(t, rec.Record(live))
	daily := schema.NewEvent(schema.EventTypeBar, "AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		schema.BarPayload{Close: 185.6, BarSize: 24 * time.Hour})
	require.NoError(t, rec.Record(daily))

	fast, ok := rec.BarFrame("AAPL", 5*time.Second)
	require.True(t, ok)
	require.Equal(t, 1, fast.Size(FieldClose))
	require.Equal(t, 187.5, fast.Now(FieldClose))

	slow, ok := rec.BarFrame("AAPL", 24*time.Hour)
	require.True(t, ok)
	require.Equal(t, 1, slow.Size(FieldClose))
	require.Equal(t, 185.6, slow.Now(FieldClose))

	_, ok = rec.Frame("AAPL", schema.EventTypeBar)
	require.False(t, ok)
}
