// Package journal keeps an append-only Postgres audit trail of execution events.
package journal

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/config"
	"github.com/coachpo/tickwire/internal/schema"
	"github.com/coachpo/tickwire/internal/telemetry"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

const (
	insertEntrySQL = `
INSERT INTO execution_events (
    event_id,
    event_type,
    instrument,
    order_id,
    client_id,
    client_order_id,
    occurred_at,
    payload
)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, COALESCE($8::jsonb, '{}'::jsonb))
ON CONFLICT (event_id) DO NOTHING;
`

	recentEntriesSQL = `
SELECT
    event_id::text,
    event_type,
    instrument,
    order_id,
    client_id,
    client_order_id,
    occurred_at,
    payload,
    recorded_at
FROM execution_events
ORDER BY occurred_at DESC, id DESC
LIMIT $1;
`
)

// Entry is one journaled execution event.
type Entry struct {
	EventID       string
	Type          schema.EventType
	Instrument    schema.InstrumentID
	OrderID       schema.OrderID
	ClientID      string
	ClientOrderID string
	OccurredAt    time.Time
	Payload       []byte
	RecordedAt    time.Time
}

// EntryFromEvent flattens an execution event into its journal row.
func EntryFromEvent(evt *schema.Event) (Entry, error) {
	if evt == nil {
		return Entry{}, errs.New("journal/entry", errs.CodeInvalid, errs.WithMessage("nil event"))
	}
	entry := Entry{
		EventID:    evt.EventID,
		Type:       evt.Type,
		Instrument: evt.Instrument,
		OccurredAt: evt.Timestamp.UTC(),
	}
	switch p := evt.Payload.(type) {
	case schema.OrderStatusUpdatePayload:
		entry.OrderID, entry.ClientID, entry.ClientOrderID = p.OrderID, p.ClientID, p.ClientOrderID
	case *schema.OrderStatusUpdatePayload:
		entry.OrderID, entry.ClientID, entry.ClientOrderID = p.OrderID, p.ClientID, p.ClientOrderID
	case schema.ExecutionReportPayload:
		entry.OrderID, entry.ClientID, entry.ClientOrderID = p.OrderID, p.ClientID, p.ClientOrderID
	case *schema.ExecutionReportPayload:
		entry.OrderID, entry.ClientID, entry.ClientOrderID = p.OrderID, p.ClientID, p.ClientOrderID
	default:
		return Entry{}, errs.New("journal/entry", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("not an execution event: %s", evt.Type)))
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return Entry{}, fmt.Errorf("encode payload: %w", err)
	}
	entry.Payload = payload
	return entry, nil
}

// Store persists journal entries in Postgres.
type Store struct {
	pool *pgxpool.Pool

	rows     metric.Int64Counter
	duration metric.Float64Histogram
}

// Open creates a connection pool from cfg and wraps it in a Store.
func Open(ctx context.Context, cfg config.JournalConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New("journal/open", errs.CodeUnavailable, errs.WithMessage("ping journal database"), errs.WithCause(err))
	}
	return NewStore(pool), nil
}

// NewStore constructs a Store backed by the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	meter := otel.Meter("journal")
	s := &Store{pool: pool}
	s.rows, _ = meter.Int64Counter(telemetry.MetricJournalRows,
		metric.WithDescription("Execution events written to the journal"),
		metric.WithUnit("{row}"))
	s.duration, _ = meter.Float64Histogram(telemetry.MetricJournalWriteDuration,
		metric.WithDescription("Journal insert latency"),
		metric.WithUnit("ms"))
	return s
}

// Insert writes one execution event. Replayed event ids are ignored.
func (s *Store) Insert(ctx context.Context, evt *schema.Event) error {
	entry, err := EntryFromEvent(evt)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = s.pool.Exec(ctx, insertEntrySQL,
		entry.EventID,
		string(entry.Type),
		string(entry.Instrument),
		int64(entry.OrderID),
		entry.ClientID,
		entry.ClientOrderID,
		entry.OccurredAt,
		entry.Payload,
	)
	result := telemetry.ResultSuccess
	if err != nil {
		result = telemetry.ResultError
	}
	attrs := metric.WithAttributes(telemetry.OperationResultAttributes("insert", result)...)
	if s.duration != nil {
		s.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	}
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", entry.EventID, err)
	}
	if s.rows != nil {
		s.rows.Add(ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()),
			telemetry.AttrEventType.String(string(entry.Type)),
		))
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := s.pool.Query(ctx, recentEntriesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry      Entry
			typ        string
			instrument string
			orderID    int64
		)
		if err := rows.Scan(
			&entry.EventID,
			&typ,
			&instrument,
			&orderID,
			&entry.ClientID,
			&entry.ClientOrderID,
			&entry.OccurredAt,
			&entry.Payload,
			&entry.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Type = schema.EventType(typ)
		entry.Instrument = schema.InstrumentID(instrument)
		entry.OrderID = schema.OrderID(orderID)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return out, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
