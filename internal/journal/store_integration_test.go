//go:build integration

package journal

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/tickwire/internal/config"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/schema"
)

var (
	testDSN     string
	pgContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "tickwire"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	pgContainer = container

	host, err := container.Host(ctx)
	if err == nil {
		var port string
		if mapped, perr := container.MappedPort(ctx, "5432/tcp"); perr == nil {
			port = mapped.Port()
		} else {
			err = perr
		}
		testDSN = fmt.Sprintf("postgres://postgres:secret@%s:%s/tickwire?sslmode=disable", host, port)
	}

	code := 1
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container address: %v\n", err)
	} else {
		code = m.Run()
	}
	_ = pgContainer.Terminate(ctx)
	os.Exit(code)
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, testDSN, observability.NopLogger()))
	require.NoError(t, Migrate(ctx, testDSN, observability.NopLogger()))

	cfg := config.Default().Journal
	cfg.Enabled = true
	cfg.DSN = testDSN
	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	placed := schema.NewEvent(schema.EventTypeOrderStatusUpdate, "AAPL", base, schema.OrderStatusUpdatePayload{
		OrderID: 101, ClientID: "desk-1", ClientOrderID: "c-1", Status: schema.OrderStatusNew,
	})
	filled := schema.NewEvent(schema.EventTypeExecutionReport, "AAPL", base.Add(time.Second), schema.ExecutionReportPayload{
		OrderID: 101, ClientID: "desk-1", ClientOrderID: "c-1", ExecID: "e-1",
		LastQty: decimal.NewFromInt(100), LastPrice: decimal.RequireFromString("187.25"),
		FilledQty: decimal.NewFromInt(100), AvgPrice: decimal.RequireFromString("187.25"),
	})
	require.NoError(t, store.Insert(ctx, placed))
	require.NoError(t, store.Insert(ctx, filled))
	require.NoError(t, store.Insert(ctx, filled))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, filled.EventID, entries[0].EventID)
	require.Equal(t, schema.EventTypeExecutionReport, entries[0].Type)
	require.Equal(t, schema.OrderID(101), entries[0].OrderID)
	require.Equal(t, "c-1", entries[1].ClientOrderID)
	require.True(t, entries[1].OccurredAt.Equal(base))
	require.Contains(t, string(entries[0].Payload), `"exec_id": "e-1"`)

	require.NoError(t, Rollback(ctx, testDSN, 1, observability.NopLogger()))
	_, err = store.Recent(ctx, 1)
	require.Error(t, err)
	require.NoError(t, Migrate(ctx, testDSN, observability.NopLogger()))
	entries, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, entries)
}
