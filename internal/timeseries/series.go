// Package timeseries stores monotonic, time-indexed float series with
// amend-on-equal-timestamp writes, negative-index lookback and NaN-skipping
// windowed aggregates.
//
// Missing values: every series carries a missing-value sentinel (NaN unless
// overridden with WithMissingValue). Positional reads outside the recorded
// range return the sentinel; Lookup and ValueAt report absence explicitly.
// Aggregates exclude both NaN and the sentinel from their input.
package timeseries

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/coachpo/tickwire/errs"
)

// Point is one recorded (timestamp, value) pair.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is a single append-only series. Writes are expected from one
// goroutine; reads may run concurrently.
type Series struct {
	mu      sync.RWMutex
	key     string
	missing float64
	times   []time.Time
	values  []float64
}

func newSeries(key string, missing float64) *Series {
	return &Series{key: key, missing: missing}
}

// Key returns the series key.
func (s *Series) Key() string {
	return s.key
}

// MissingValue returns the sentinel returned by out-of-range reads.
func (s *Series) MissingValue() float64 {
	return s.missing
}

// checkLocked validates ts against the last recorded timestamp.
func (s *Series) checkLocked(ts time.Time) error {
	n := len(s.times)
	if n == 0 {
		return nil
	}
	last := s.times[n-1]
	if ts.Before(last) {
		return errs.New("timeseries/append", errs.CodeOutOfOrderTimestamp,
			errs.WithMessage("timestamp precedes last recorded point"),
			errs.WithField("key", s.key),
			errs.WithField("last", last.UTC().Format(time.RFC3339Nano)),
			errs.WithField("timestamp", ts.UTC().Format(time.RFC3339Nano)))
	}
	return nil
}

// writeLocked appends or amends; checkLocked must have passed.
func (s *Series) writeLocked(ts time.Time, value float64) {
	n := len(s.times)
	if n > 0 && s.times[n-1].Equal(ts) {
		s.values[n-1] = value
		return
	}
	s.times = append(s.times, ts)
	s.values = append(s.values, value)
}

func (s *Series) append(ts time.Time, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ts); err != nil {
		return err
	}
	s.writeLocked(ts, value)
	return nil
}

// Size returns the number of distinct time points.
func (s *Series) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Lookup returns the value at idx; negative indices count from the end.
func (s *Series) Lookup(idx int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.values)
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return s.missing, false
	}
	return s.values[idx], true
}

// At returns the value at idx, or the missing value when out of range.
func (s *Series) At(idx int) float64 {
	v, _ := s.Lookup(idx)
	return v
}

// Now returns the latest value, or the missing value when empty.
func (s *Series) Now() float64 {
	return s.At(-1)
}

// Ago returns the value n steps before the latest. Ago(0) equals Now.
func (s *Series) Ago(n int) float64 {
	if n < 0 {
		return s.missing
	}
	return s.At(-1 - n)
}

// LastTime returns the latest timestamp.
func (s *Series) LastTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.times) == 0 {
		return time.Time{}, false
	}
	return s.times[len(s.times)-1], true
}

// ValueAt returns the value recorded at exactly ts.
func (s *Series) ValueAt(ts time.Time) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.times), func(i int) bool { return !s.times[i].Before(ts) })
	if i < len(s.times) && s.times[i].Equal(ts) {
		return s.values[i], true
	}
	return s.missing, false
}

// Values returns a copy of all recorded points.
func (s *Series) Values() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Point, len(s.values))
	for i := range s.values {
		out[i] = Point{Time: s.times[i], Value: s.values[i]}
	}
	return out
}

// window copies the non-missing values of the half-open index range [start, end).
// Negative bounds count from the end; bounds are clamped to the series.
func (s *Series) window(start, end int) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.values)
	start = clampIndex(start, n)
	end = clampIndex(end, n)
	if start >= end {
		return nil
	}
	out := make([]float64, 0, end-start)
	for _, v := range s.values[start:end] {
		if s.isMissing(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (s *Series) isMissing(v float64) bool {
	return math.IsNaN(v) || v == s.missing
}

func clampIndex(idx, n int) int {
	if idx < 0 {
		idx += n
	}
	if idx < 0 {
		return 0
	}
	if idx > n {
		return n
	}
	return idx
}

// Mean returns the arithmetic mean over [start, end).
func (s *Series) Mean(start, end int) float64 { return mean(s.window(start, end)) }

// Var returns the population variance over [start, end).
func (s *Series) Var(start, end int) float64 { return variance(s.window(start, end)) }

// Std returns the population standard deviation over [start, end).
func (s *Series) Std(start, end int) float64 { return math.Sqrt(variance(s.window(start, end))) }

// Min returns the minimum over [start, end).
func (s *Series) Min(start, end int) float64 { return minimum(s.window(start, end)) }

// Max returns the maximum over [start, end).
func (s *Series) Max(start, end int) float64 { return maximum(s.window(start, end)) }

// Median returns the median over [start, end).
func (s *Series) Median(start, end int) float64 { return median(s.window(start, end)) }
