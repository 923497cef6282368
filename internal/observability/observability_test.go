package observability

import (
	"bytes"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingLogger) record(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, level+":"+msg)
}

func (r *recordingLogger) Debug(msg string, _ ...Field) { r.record("debug", msg) }
func (r *recordingLogger) Info(msg string, _ ...Field)  { r.record("info", msg) }
func (r *recordingLogger) Warn(msg string, _ ...Field)  { r.record("warn", msg) }
func (r *recordingLogger) Error(msg string, _ ...Field) { r.record("error", msg) }

func TestSetLoggerAndDefault(t *testing.T) {
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	OrDefault(nil).Warn("dropped")
	require.Equal(t, []string{"warn:dropped"}, rec.entries)

	SetLogger(nil)
	require.NotPanics(t, func() { Log().Error("ignored") })
}

func TestLogrusLoggerWritesComponentAndFields(t *testing.T) {
	base := logrus.New()
	var buf bytes.Buffer
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)

	log := NewLogrusLoggerFrom(base).Component("dispatcher")
	log.Warn("callback dropped", F("correlation_id", 7), F("reason", "unresolved"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "dispatcher", entry["component"])
	require.Equal(t, "unresolved", entry["reason"])
	require.Equal(t, float64(7), entry["correlation_id"])
	require.Equal(t, "warning", entry["level"])
}

func TestNewLogrusLoggerValidatesConfig(t *testing.T) {
	_, err := NewLogrusLogger(LogConfig{Level: "loud"})
	require.Error(t, err)
	_, err = NewLogrusLogger(LogConfig{Format: "xml"})
	require.Error(t, err)

	l, err := NewLogrusLogger(LogConfig{Level: "debug", Format: "text", File: filepath.Join(t.TempDir(), "tickwire.log")})
	require.NoError(t, err)
	l.Info("started")
	require.NoError(t, l.Close())
}

func TestDeadLetterQueueEvictsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Offer(DroppedCallback{Callback: "tick_price", Ref: 1})
	q.Offer(DroppedCallback{Callback: "tick_price", Ref: 2})
	q.Offer(DroppedCallback{Callback: "exec_details", Ref: 3})

	require.Equal(t, 2, q.Len())
	require.Equal(t, 3, q.Total())
	drained := q.Drain()
	require.Equal(t, int64(2), drained[0].Ref)
	require.Equal(t, int64(3), drained[1].Ref)
	require.Zero(t, q.Len())
}

func TestJoinErrors(t *testing.T) {
	rec := &recordingLogger{}
	require.NoError(t, JoinErrors(rec, "shutdown", nil, nil))
	require.Empty(t, rec.entries)

	first := errors.New("disconnect")
	err := JoinErrors(rec, "shutdown", nil, first, errors.New("flush"))
	require.ErrorIs(t, err, first)
	require.Contains(t, err.Error(), "shutdown failed")
	require.Equal(t, []string{"error:operation errors"}, rec.entries)
}
