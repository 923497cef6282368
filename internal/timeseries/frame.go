package timeseries

import (
	"sort"
	"sync"
	"time"
)

// FrameSubscriber receives one notification per accepted multi-key write.
type FrameSubscriber func(ts time.Time, values map[string]float64)

// Frame groups per-key series written together under one timestamp. Each key
// keeps its own monotonicity state.
type Frame struct {
	name string
	opts options

	mu     sync.RWMutex
	series map[string]*Series
	subs   []FrameSubscriber
}

// NewFrame creates an empty frame.
func NewFrame(name string, opts ...Option) *Frame {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Frame{name: name, opts: o, series: make(map[string]*Series)}
}

// Name returns the frame name.
func (f *Frame) Name() string {
	return f.name
}

// Append writes every key of values at ts. All keys are validated before any
// is written, so an out-of-order key rejects the whole call.
func (f *Frame) Append(ts time.Time, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	locked := make([]*Series, 0, len(keys))
	for _, k := range keys {
		ser := f.getOrCreate(k)
		ser.mu.Lock()
		locked = append(locked, ser)
	}
	unlock := func() {
		for _, ser := range locked {
			ser.mu.Unlock()
		}
	}

	for _, ser := range locked {
		if err := ser.checkLocked(ts); err != nil {
			unlock()
			return err
		}
	}
	for i, ser := range locked {
		ser.writeLocked(ts, values[keys[i]])
	}
	unlock()

	f.mu.RLock()
	subs := append([]FrameSubscriber(nil), f.subs...)
	f.mu.RUnlock()
	if len(subs) == 0 {
		return nil
	}
	snapshot := make(map[string]float64, len(values))
	for k, v := range values {
		snapshot[k] = v
	}
	for _, fn := range subs {
		fn(ts, snapshot)
	}
	return nil
}

func (f *Frame) getOrCreate(key string) *Series {
	f.mu.Lock()
	defer f.mu.Unlock()
	ser, ok := f.series[key]
	if !ok {
		ser = newSeries(key, f.opts.missing)
		f.series[key] = ser
	}
	return ser
}

// Subscribe registers fn for every accepted write.
func (f *Frame) Subscribe(fn FrameSubscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

// Series returns the series for key.
func (f *Frame) Series(key string) (*Series, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ser, ok := f.series[key]
	return ser, ok
}

// Keys returns the frame's keys in sorted order.
func (f *Frame) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of points for key.
func (f *Frame) Size(key string) int {
	if ser, ok := f.Series(key); ok {
		return ser.Size()
	}
	return 0
}

// Now returns the latest value for key, or the missing value.
func (f *Frame) Now(key string) float64 {
	if ser, ok := f.Series(key); ok {
		return ser.Now()
	}
	return f.opts.missing
}

// Ago returns the value of key n steps before the latest.
func (f *Frame) Ago(key string, n int) float64 {
	if ser, ok := f.Series(key); ok {
		return ser.Ago(n)
	}
	return f.opts.missing
}
