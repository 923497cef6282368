// Command gateway runs a live tickwire session against a venue websocket bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/app"
	"github.com/coachpo/tickwire/internal/bus/eventbus"
	"github.com/coachpo/tickwire/internal/config"
	"github.com/coachpo/tickwire/internal/gateway/wsbridge"
	"github.com/coachpo/tickwire/internal/journal"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/refdata"
	"github.com/coachpo/tickwire/internal/schema"
	"github.com/coachpo/tickwire/internal/telemetry"
)

const (
	defaultConfigPath        = "config/app.yaml"
	sessionShutdownTimeout   = 10 * time.Second
	journalShutdownTimeout   = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", defaultConfigPath, "Path to application configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	root, err := observability.NewLogrusLogger(cfg.Logging.LogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise logger: %v\n", err)
		return 1
	}
	defer func() { _ = root.Close() }()
	observability.SetLogger(root)
	logger := root.Component("gateway")
	logger.Info("configuration initialised",
		observability.F("environment", string(cfg.Environment)),
		observability.F("instruments", len(cfg.Instruments)),
		observability.F("subscriptions", len(cfg.Subscriptions)))

	provider, err := initTelemetry(ctx, logger, cfg)
	if err != nil {
		logger.Error("initialise telemetry", observability.Err(err))
		return 1
	}

	contracts, err := refdata.NewStatic(cfg.Instruments)
	if err != nil {
		logger.Error("load instruments", observability.Err(err))
		return 1
	}
	loc, err := cfg.Gateway.Location()
	if err != nil {
		logger.Error("resolve gateway timezone", observability.Err(err))
		return 1
	}

	bus := eventbus.NewMemoryBus(eventbus.MemoryConfig{
		BufferSize:    cfg.Eventbus.BufferSize,
		FanoutWorkers: cfg.Eventbus.FanoutWorkers.Count(),
	}, root.Component("eventbus"))

	store, sink, err := startJournal(ctx, cfg.Journal, bus, root)
	if err != nil {
		logger.Error("start journal", observability.Err(err))
		bus.Close()
		return 1
	}

	client, err := wsbridge.New(wsbridge.Config{
		URL:                cfg.Gateway.URL,
		ClientID:           cfg.Gateway.ClientID,
		MaxConnectAttempts: cfg.Gateway.MaxConnectAttempts,
		InitialBackoff:     cfg.Gateway.InitialBackoff,
		MaxBackoff:         cfg.Gateway.MaxBackoff,
		RequestsPerSecond:  cfg.Gateway.RequestsPerSecond,
		RequestBurst:       cfg.Gateway.RequestBurst,
	}, root.Component("wsbridge"))
	if err != nil {
		logger.Error("initialise gateway client", observability.Err(err))
		return 1
	}

	session, err := app.New(client, contracts, bus, app.Config{
		RequestSeed:  cfg.IDs.RequestSeed,
		OrderSeed:    cfg.IDs.OrderSeed,
		Account:      cfg.Gateway.Account,
		Location:     loc,
		Risk:         cfg.Risk,
		RecordSeries: true,
	}, root.Component("session"))
	if err != nil {
		logger.Error("initialise session", observability.Err(err))
		return 1
	}

	if err := session.Start(ctx); err != nil {
		if errs.IsCode(err, errs.CodeConnectionFailure) {
			logger.Error("gateway unreachable; aborting startup", observability.Err(err))
		} else {
			logger.Error("start session", observability.Err(err))
		}
		shutdown(logger, nil, sink, store, bus, provider)
		return 1
	}

	for _, desc := range cfg.Subscriptions {
		if _, err := session.Feed.Subscribe(ctx, desc); err != nil {
			logger.Warn("subscribe failed",
				observability.F("instrument", string(desc.Instrument)),
				observability.F("kind", string(desc.Kind)),
				observability.Err(err))
		}
	}

	var taps conc.WaitGroup
	tapCtx, tapCancel := context.WithCancel(ctx)
	if err := tapExecutions(tapCtx, &taps, bus, logger); err != nil {
		logger.Warn("execution tap unavailable", observability.Err(err))
	}

	logger.Info("gateway started; awaiting shutdown signal")
	exit := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-session.Done():
		if err := session.Err(); err != nil {
			logger.Error("ingestion ended", observability.Err(err))
			exit = 1
		} else {
			logger.Info("gateway connection closed")
		}
	}

	tapCancel()
	shutdown(logger, session, sink, store, bus, provider)
	taps.Wait()
	logger.Info("shutdown complete",
		observability.F("callbacks", session.Received()),
		observability.F("dropped", session.DeadLetters.Total()))
	return exit
}

func initTelemetry(ctx context.Context, logger observability.Logger, cfg config.AppConfig) (*telemetry.Provider, error) {
	telemetryCfg := cfg.Telemetry.Apply(telemetry.DefaultConfig(), cfg.Environment)
	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		logger.Info("telemetry initialised",
			observability.F("endpoint", telemetryCfg.OTLPEndpoint),
			observability.F("service", telemetryCfg.ServiceName))
	} else {
		logger.Info("telemetry disabled")
	}
	return provider, nil
}

func startJournal(ctx context.Context, cfg config.JournalConfig, bus eventbus.Bus, root *observability.LogrusLogger) (*journal.Store, *journal.Sink, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	log := root.Component("journal")
	if cfg.RunMigrations {
		if err := journal.Migrate(ctx, cfg.DSN, log); err != nil {
			return nil, nil, err
		}
	}
	store, err := journal.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	sink := journal.NewSink(bus, store, log)
	if err := sink.Start(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	log.Info("execution journal enabled")
	return store, sink, nil
}

// tapExecutions logs every execution event at info level.
func tapExecutions(ctx context.Context, wg *conc.WaitGroup, bus eventbus.Bus, logger observability.Logger) error {
	_, events, err := bus.Subscribe(ctx, schema.TopicExecution)
	if err != nil {
		return err
	}
	wg.Go(func() {
		for evt := range events {
			logger.Info("execution event",
				observability.F("type", string(evt.Type)),
				observability.F("instrument", string(evt.Instrument)),
				observability.F("payload", evt.Payload))
		}
	})
	return nil
}

func shutdown(logger observability.Logger, session *app.Session, sink *journal.Sink, store *journal.Store, bus eventbus.Bus, provider *telemetry.Provider) {
	step := func(name string, timeout time.Duration, fn func(context.Context) error) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger.Debug("shutdown step", observability.F("step", name))
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	var stepErrs []error
	if session != nil {
		stepErrs = append(stepErrs, step("stop session", sessionShutdownTimeout, session.Stop))
	}
	if sink != nil {
		stepErrs = append(stepErrs, step("drain journal", journalShutdownTimeout, func(context.Context) error {
			sink.Stop()
			store.Close()
			return nil
		}))
	}
	bus.Close()
	stepErrs = append(stepErrs, step("flush telemetry", telemetryShutdownTimeout, provider.Shutdown))

	_ = observability.JoinErrors(logger, "shutdown", stepErrs...)
}
