// Command migrate applies or reverts the execution journal schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/tickwire/internal/config"
	"github.com/coachpo/tickwire/internal/journal"
	"github.com/coachpo/tickwire/internal/observability"
)

const defaultTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath = flag.String("config", "", "Path to application configuration file")
		dsn     = flag.String("database", "", "PostgreSQL DSN; overrides journal.dsn from the config")
		timeout = flag.Duration("timeout", defaultTimeout, "Maximum time to wait for database connectivity")
		quiet   = flag.Bool("quiet", false, "Suppress informational logs")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		return errors.New("command required (up|down)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target := strings.TrimSpace(*dsn)
	if target == "" {
		cfg, err := config.LoadOrDefault(ctx, *cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		target = cfg.Journal.DSN
	}
	if target == "" {
		return errors.New("-database flag or journal.dsn is required")
	}

	level := "info"
	if *quiet {
		level = "warn"
	}
	logger, err := observability.NewLogrusLogger(observability.LogConfig{Level: level, Format: "text"})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("migrate")

	switch args[0] {
	case "up":
		return journal.Migrate(ctx, target, log)
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid down steps %q: %w", args[1], err)
			}
			steps = n
		}
		return journal.Rollback(ctx, target, steps, log)
	default:
		return fmt.Errorf("unknown command %q (expected up or down)", args[0])
	}
}
