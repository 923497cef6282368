// Command replay feeds a captured gateway session through the dispatch
// pipeline and prints every domain event as a JSON line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tickwire/internal/app"
	"github.com/coachpo/tickwire/internal/config"
	"github.com/coachpo/tickwire/internal/dispatcher"
	"github.com/coachpo/tickwire/internal/gateway/replay"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/refdata"
	"github.com/coachpo/tickwire/internal/schema"
)

const stopTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath = flag.String("config", "", "Path to application configuration file")
		capture = flag.String("capture", "", "JSON-lines capture; overrides replay.capture")
		pace    = flag.Duration("pace", -1, "Delay between callbacks; overrides replay.pace")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(ctx, *cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *capture != "" {
		cfg.Replay.Capture = *capture
	}
	if *pace >= 0 {
		cfg.Replay.Pace = *pace
	}
	if cfg.Replay.Capture == "" {
		return fmt.Errorf("-capture flag or replay.capture is required")
	}

	root, err := observability.NewLogrusLogger(cfg.Logging.LogConfig())
	if err != nil {
		return err
	}
	defer func() { _ = root.Close() }()
	observability.SetLogger(root)
	logger := root.Component("replay")

	contracts, err := refdata.NewStatic(cfg.Instruments)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	loc, err := cfg.Gateway.Location()
	if err != nil {
		return err
	}
	client, err := replay.Open(cfg.Replay.Capture, replay.WithPace(cfg.Replay.Pace))
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer func() { _ = out.Flush() }()

	session, err := app.New(client, contracts, jsonLines(out), app.Config{
		RequestSeed: cfg.IDs.RequestSeed,
		OrderSeed:   cfg.IDs.OrderSeed,
		Account:     cfg.Gateway.Account,
		Location:    loc,
	}, root.Component("session"))
	if err != nil {
		return err
	}

	// Bindings must exist before the first callback is read.
	for _, desc := range cfg.Subscriptions {
		id, err := session.Feed.Subscribe(ctx, desc)
		if err != nil {
			return fmt.Errorf("subscribe %s %s: %w", desc.Instrument, desc.Kind, err)
		}
		logger.Debug("replay subscription bound",
			observability.F("correlation_id", int64(id)),
			observability.F("instrument", string(desc.Instrument)))
	}

	if err := session.Start(ctx); err != nil {
		return err
	}
	select {
	case <-session.Done():
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := session.Stop(stopCtx)

	summarize(logger, session)
	if err := session.Err(); err != nil {
		return err
	}
	return stopErr
}

func jsonLines(w io.Writer) dispatcher.PublisherFunc {
	enc := json.NewEncoder(w)
	return func(_ context.Context, evt *schema.Event) error {
		return enc.Encode(evt)
	}
}

func summarize(logger observability.Logger, session *app.Session) {
	dropped := session.DeadLetters.Drain()
	reasons := make(map[string]int, len(dropped))
	for _, d := range dropped {
		reasons[d.Reason]++
	}
	logger.Info("replay complete",
		observability.F("callbacks", session.Received()),
		observability.F("dropped", session.DeadLetters.Total()),
		observability.F("drop_reasons", reasons))
}
