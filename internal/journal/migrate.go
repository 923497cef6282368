package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/tickwire/internal/journal/migrations"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/telemetry"
)

var (
	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// Migrate applies the embedded journal schema to the database reachable via dsn.
func Migrate(ctx context.Context, dsn string, logger observability.Logger) error {
	logger = observability.OrDefault(logger)
	m, closeFn, err := open(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, "noop")
			logger.Debug("journal migrations up-to-date")
			return nil
		}
		recordMigrationMetric(ctx, "failed")
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, verr := m.Version()
	if verr != nil {
		logger.Warn("journal migrations version", observability.Err(verr))
	}
	logger.Info("journal migrations applied", observability.F("version", version))
	recordMigrationMetric(ctx, "applied")
	return nil
}

// Rollback reverts up to steps migrations.
func Rollback(ctx context.Context, dsn string, steps int, logger observability.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be > 0")
	}
	logger = observability.OrDefault(logger)
	m, closeFn, err := open(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, "noop")
			return nil
		}
		recordMigrationMetric(ctx, "failed")
		return fmt.Errorf("rollback migrations: %w", err)
	}
	logger.Info("journal migrations rolled back", observability.F("steps", steps))
	recordMigrationMetric(ctx, "rolled_back")
	return nil
}

func open(ctx context.Context, dsn string, logger observability.Logger) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migrations connection: %w", err)
	}
	closeDB := func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("journal migrations close", observability.Err(cerr))
		}
	}

	if err := db.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("ping migrations database: %w", err)
	}
	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("initialise pgx v5 driver: %w", err)
	}
	src, err := iofs.New(migrations.Files, ".")
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("initialise migrate instance: %w", err)
	}
	return m, func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Warn("journal migrations source close", observability.Err(sourceErr))
		}
		if dbErr != nil {
			logger.Warn("journal migrations db close", observability.Err(dbErr))
		}
	}, nil
}

func recordMigrationMetric(ctx context.Context, result string) {
	migrationsCounterMu.Do(func() {
		counter, err := otel.Meter("journal").Int64Counter(telemetry.MetricMigrations,
			metric.WithDescription("Journal migrations executed via golang-migrate"),
			metric.WithUnit("{migration}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		telemetry.AttrEnvironment.String(telemetry.Environment()),
		telemetry.AttrResult.String(result),
	))
}
