package timeseries

import (
	"math"
	"sync"
	"time"
)

// Subscriber receives every accepted write on a key.
type Subscriber func(key string, p Point)

// Option configures a Store or Frame.
type Option func(*options)

type options struct {
	missing float64
}

func defaultOptions() options {
	return options{missing: math.NaN()}
}

// WithMissingValue overrides the NaN missing-value sentinel.
func WithMissingValue(v float64) Option {
	return func(o *options) { o.missing = v }
}

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Store holds independent series per key.
type Store struct {
	opts options

	mu     sync.RWMutex
	series map[string]*Series
	subs   map[string][]subscriberEntry
	nextID uint64
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		opts:   o,
		series: make(map[string]*Series),
		subs:   make(map[string][]subscriberEntry),
	}
}

// MissingValue returns the sentinel used for absent reads.
func (s *Store) MissingValue() float64 {
	return s.opts.missing
}

func (s *Store) lookup(key string) *Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[key]
}

func (s *Store) getOrCreate(key string) *Series {
	if ser := s.lookup(key); ser != nil {
		return ser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ser, ok := s.series[key]
	if !ok {
		ser = newSeries(key, s.opts.missing)
		s.series[key] = ser
	}
	return ser
}

// Append records value at ts. An equal timestamp amends the last point; an
// earlier one fails with an out_of_order_timestamp error and leaves the series
// untouched. Subscribers on key are called synchronously in registration order.
func (s *Store) Append(key string, ts time.Time, value float64) error {
	if err := s.getOrCreate(key).append(ts, value); err != nil {
		return err
	}
	s.notify(key, Point{Time: ts, Value: value})
	return nil
}

func (s *Store) notify(key string, p Point) {
	s.mu.RLock()
	subs := append([]subscriberEntry(nil), s.subs[key]...)
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(key, p)
	}
}

// Subscribe registers fn for writes on key and returns a function removing it.
func (s *Store) Subscribe(key string, fn Subscriber) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[key] = append(s.subs[key], subscriberEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entries := s.subs[key]
		for i, e := range entries {
			if e.id == id {
				s.subs[key] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}
}

// Series returns the series for key.
func (s *Store) Series(key string) (*Series, bool) {
	ser := s.lookup(key)
	return ser, ser != nil
}

// Keys returns the keys with at least one series.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	return keys
}

// Size returns the number of distinct time points recorded for key.
func (s *Store) Size(key string) int {
	if ser := s.lookup(key); ser != nil {
		return ser.Size()
	}
	return 0
}

// Lookup returns the value at idx with an explicit presence flag.
func (s *Store) Lookup(key string, idx int) (float64, bool) {
	if ser := s.lookup(key); ser != nil {
		return ser.Lookup(idx)
	}
	return s.opts.missing, false
}

// At returns the value at idx; negative indices count from the end.
func (s *Store) At(key string, idx int) float64 {
	v, _ := s.Lookup(key, idx)
	return v
}

// Now returns the latest value of key, or the missing value.
func (s *Store) Now(key string) float64 {
	return s.At(key, -1)
}

// Ago returns the value n steps before the latest.
func (s *Store) Ago(key string, n int) float64 {
	if ser := s.lookup(key); ser != nil {
		return ser.Ago(n)
	}
	return s.opts.missing
}

// ValueAt returns the value recorded at exactly ts.
func (s *Store) ValueAt(key string, ts time.Time) (float64, bool) {
	if ser := s.lookup(key); ser != nil {
		return ser.ValueAt(ts)
	}
	return s.opts.missing, false
}

// Values returns a copy of every point recorded for key.
func (s *Store) Values(key string) []Point {
	if ser := s.lookup(key); ser != nil {
		return ser.Values()
	}
	return nil
}

func (s *Store) aggregate(key string, start, end int, fn func(*Series, int, int) float64) float64 {
	ser := s.lookup(key)
	if ser == nil {
		return math.NaN()
	}
	return fn(ser, start, end)
}

func (s *Store) Mean(key string, start, end int) float64 {
	return s.aggregate(key, start, end, (*Series).Mean)
}

func (s *Store) Var(key string, start, end int) float64 {
	return s.aggregate(key, start, end, (*Series).Var)
}

func (s *Store) Std(key string, start, end int) float64 {
	return s.aggregate(key, start, end, (*Series).Std)
}

func (s *Store) Min(key string, start, end int) float64 {
	return s.aggregate(key, start, end, (*Series).Min)
}

func (s *Store) Max(key string, start, end int) float64 {
	return s.aggregate(key, start, end, (*Series).Max)
}

func (s *Store) Median(key string, start, end int) float64 {
	return s.aggregate(key, start, end, (*Series).Median)
}
