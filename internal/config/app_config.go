// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/observability"
	"github.com/coachpo/tickwire/internal/risk"
	"github.com/coachpo/tickwire/internal/schema"
	"github.com/coachpo/tickwire/internal/telemetry"
)

// GatewayConfig locates the venue bridge and tunes the client.
type GatewayConfig struct {
	URL                string        `yaml:"url"`
	ClientID           int           `yaml:"clientId"`
	Account            string        `yaml:"account"`
	Timezone           string        `yaml:"timezone"`
	MaxConnectAttempts int           `yaml:"maxConnectAttempts"`
	InitialBackoff     time.Duration `yaml:"initialBackoff"`
	MaxBackoff         time.Duration `yaml:"maxBackoff"`
	RequestsPerSecond  float64       `yaml:"requestsPerSecond"`
	RequestBurst       int           `yaml:"requestBurst"`
}

// Location resolves the venue time zone used for bar timestamps.
func (c GatewayConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("gateway timezone: %w", err)
	}
	return loc, nil
}

// IDConfig seeds the request and order id sequences.
type IDConfig struct {
	RequestSeed int64 `yaml:"requestSeed"`
	OrderSeed   int64 `yaml:"orderSeed"`
}

// EventbusConfig sets in-memory event bus sizing characteristics.
type EventbusConfig struct {
	BufferSize    int                 `yaml:"bufferSize"`
	FanoutWorkers FanoutWorkerSetting `yaml:"fanoutWorkers"`
}

// LoggingConfig selects log level, format and optional rotated file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// LogConfig converts the section into logger options.
func (c LoggingConfig) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// Apply overlays the section on top of env-derived telemetry defaults.
func (c TelemetryConfig) Apply(base telemetry.Config, env Environment) telemetry.Config {
	if c.OTLPEndpoint != "" {
		base.OTLPEndpoint = c.OTLPEndpoint
	}
	if c.ServiceName != "" {
		base.ServiceName = c.ServiceName
	}
	base.OTLPInsecure = base.OTLPInsecure || c.OTLPInsecure
	base.Enabled = base.Enabled || c.EnableMetrics
	if env != "" {
		base.Environment = string(env)
	}
	return base
}

// JournalConfig controls the Postgres execution journal.
type JournalConfig struct {
	Enabled           bool          `yaml:"enabled"`
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *JournalConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/tickwire"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c JournalConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// ReplayConfig drives cmd/replay.
type ReplayConfig struct {
	Capture string        `yaml:"capture"`
	Pace    time.Duration `yaml:"pace"`
}

// AppConfig is the unified tickwire application configuration sourced from YAML.
type AppConfig struct {
	Environment   Environment                              `yaml:"environment"`
	Gateway       GatewayConfig                            `yaml:"gateway"`
	IDs           IDConfig                                 `yaml:"ids"`
	Eventbus      EventbusConfig                           `yaml:"eventbus"`
	Logging       LoggingConfig                            `yaml:"logging"`
	Telemetry     TelemetryConfig                          `yaml:"telemetry"`
	Journal       JournalConfig                            `yaml:"journal"`
	Instruments   map[schema.InstrumentID]gateway.Contract `yaml:"instruments"`
	Risk          risk.Limits                              `yaml:"risk"`
	Replay        ReplayConfig                             `yaml:"replay"`
	Subscriptions []schema.SubscriptionDescriptor          `yaml:"subscriptions"`
}

// Default returns a configuration usable without a file.
func Default() AppConfig {
	cfg := AppConfig{Environment: EnvDev}
	if err := cfg.normalise(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a .env file when present, then the YAML file at path, applies
// TICKWIRE_* overrides and validates the result. A cancelled ctx aborts
// the load.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	if err := ctx.Err(); err != nil {
		return AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if err := loadDotEnv(); err != nil {
		return AppConfig{}, err
	}

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to Default when path is
// empty or the file does not exist.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) != "" {
		cfg, err := Load(ctx, configPath)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}
	if err := ctx.Err(); err != nil {
		return AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if err := loadDotEnv(); err != nil {
		return AppConfig{}, err
	}
	return finish(AppConfig{})
}

func finish(cfg AppConfig) (AppConfig, error) {
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.Gateway.URL = strings.TrimSpace(c.Gateway.URL)
	c.Gateway.Account = strings.TrimSpace(c.Gateway.Account)
	c.Gateway.Timezone = strings.TrimSpace(c.Gateway.Timezone)
	if c.Gateway.MaxConnectAttempts <= 0 {
		c.Gateway.MaxConnectAttempts = 5
	}
	if c.Gateway.InitialBackoff <= 0 {
		c.Gateway.InitialBackoff = 500 * time.Millisecond
	}
	if c.Gateway.MaxBackoff <= 0 {
		c.Gateway.MaxBackoff = 10 * time.Second
	}
	if c.Gateway.RequestsPerSecond <= 0 {
		c.Gateway.RequestsPerSecond = 45
	}
	if c.Gateway.RequestBurst <= 0 {
		c.Gateway.RequestBurst = 1
	}

	if c.IDs.RequestSeed <= 0 {
		c.IDs.RequestSeed = 1
	}
	if c.IDs.OrderSeed <= 0 {
		c.IDs.OrderSeed = 1
	}
	if c.Eventbus.BufferSize <= 0 {
		c.Eventbus.BufferSize = 256
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "tickwire"
	}

	c.Journal.applyDefaults()

	if len(c.Instruments) > 0 {
		normalised := make(map[schema.InstrumentID]gateway.Contract, len(c.Instruments))
		for id, contract := range c.Instruments {
			key := schema.InstrumentID(strings.TrimSpace(string(id)))
			if _, exists := normalised[key]; exists {
				return fmt.Errorf("duplicate instrument %q", key)
			}
			normalised[key] = contract
		}
		c.Instruments = normalised
	}

	if c.Replay.Capture != "" {
		c.Replay.Capture = filepath.Clean(strings.TrimSpace(c.Replay.Capture))
	}
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if c.Gateway.ClientID < 0 {
		return fmt.Errorf("gateway clientId must be >= 0")
	}
	if c.Gateway.MaxBackoff < c.Gateway.InitialBackoff {
		return fmt.Errorf("gateway maxBackoff must be >= initialBackoff")
	}
	if _, err := c.Gateway.Location(); err != nil {
		return err
	}
	if c.Eventbus.BufferSize <= 0 {
		return fmt.Errorf("eventbus bufferSize must be >0")
	}
	if c.Eventbus.FanoutWorkers.Count() <= 0 {
		return fmt.Errorf("eventbus fanoutWorkers must be >0")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging format must be json or text")
	}
	for id := range c.Instruments {
		if id == "" {
			return fmt.Errorf("instrument id required")
		}
	}
	if c.Risk.MaxOrderQuantity.IsNegative() || c.Risk.MaxOrderNotional.IsNegative() || c.Risk.OrderThrottle < 0 {
		return fmt.Errorf("risk limits must be >= 0")
	}
	for i, desc := range c.Subscriptions {
		if err := desc.Validate(); err != nil {
			return fmt.Errorf("subscription %d: %w", i, err)
		}
	}
	if err := c.Journal.validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
