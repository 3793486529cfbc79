package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/executor"
	"github.com/cloudevy/downtime-scheduler/pkg/health"
	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/scheduler"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/tracing"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvEncryptionKey = "ENCRYPTION_KEY"
	EnvPort          = "PORT"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvPollInterval  = "SCHEDULER_POLL_INTERVAL"
	EnvLogLevel      = "LOG_LEVEL"
)

// Config is the complete runtime configuration
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Health    HealthConfig    `yaml:"health"`
	Traffic   TrafficConfig   `yaml:"traffic"`
	Tracing   tracing.Config  `yaml:"tracing"`

	// EncryptionKey decrypts cloud account credentials
	EncryptionKey string `yaml:"encryptionKey"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StoreConfig selects the persistence backend. Path is the bolt data
// directory; DSN is the sqlite file or URI.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Location returns the path or DSN for the configured driver
func (s StoreConfig) Location() string {
	if s.Driver == storage.DriverSQLite {
		return s.DSN
	}
	return s.Path
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	Lookahead    time.Duration `yaml:"lookahead"`
	Tolerance    time.Duration `yaml:"tolerance"`
	GracePeriod  time.Duration `yaml:"gracePeriod"`
	StateTimeout time.Duration `yaml:"stateTimeout"`
}

// Loop converts the section into the scheduler loop configuration
func (s SchedulerConfig) Loop() scheduler.Config {
	return scheduler.Config{
		PollInterval: s.PollInterval,
		Lookahead:    s.Lookahead,
		Tolerance:    s.Tolerance,
		GracePeriod:  s.GracePeriod,
	}
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// Checks converts the section into a health monitor configuration
func (h HealthConfig) Checks() health.Config {
	return health.Config{Interval: h.Interval, Timeout: h.Timeout, Retries: h.Retries}
}

// TrafficConfig sets the timezone traffic hours and weekdays are bucketed in
type TrafficConfig struct {
	Timezone string `yaml:"timezone"`
}

// Default returns the built-in configuration
func Default() *Config {
	hc := health.DefaultConfig()
	return &Config{
		Log:   LogConfig{Level: string(log.InfoLevel)},
		Store: StoreConfig{Driver: storage.DriverBolt, Path: "./data", DSN: "downtime.db"},
		Scheduler: SchedulerConfig{
			PollInterval: scheduler.DefaultPollInterval,
			Lookahead:    scheduler.DefaultLookahead,
			Tolerance:    scheduler.DefaultTolerance,
			GracePeriod:  scheduler.DefaultGracePeriod,
			StateTimeout: executor.DefaultStateTimeout,
		},
		HTTP:    HTTPConfig{Addr: ":8003"},
		GRPC:    GRPCConfig{Enabled: true, Addr: ":9003"},
		Health:  HealthConfig{Interval: hc.Interval, Timeout: hc.Timeout, Retries: hc.Retries},
		Traffic: TrafficConfig{Timezone: "UTC"},
		Tracing: tracing.Config{Exporter: tracing.ExporterNone, SampleRatio: 1},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if not
// empty), the given .env files and finally the process environment. Missing
// .env files are ignored; variables already set in the environment win over
// .env values.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEncryptionKey); ok && v != "" {
		c.EncryptionKey = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		c.HTTP.Addr = ":" + v
	}
	if v, ok := lookup(EnvPollInterval); ok && v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
		}
		c.Scheduler.PollInterval = d
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		if err := c.Store.applyURL(v); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDatabaseURL, err)
		}
	}
	return nil
}

// parseInterval accepts a Go duration ("15s") or a number of seconds
func parseInterval(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// applyURL understands bolt://<dir>, sqlite://<file> and file:<path> URLs
func (s *StoreConfig) applyURL(raw string) error {
	switch {
	case strings.HasPrefix(raw, "bolt://"):
		s.Driver, s.Path = storage.DriverBolt, strings.TrimPrefix(raw, "bolt://")
	case strings.HasPrefix(raw, "sqlite://"):
		s.Driver, s.DSN = storage.DriverSQLite, strings.TrimPrefix(raw, "sqlite://")
	case strings.HasPrefix(raw, "file:"):
		s.Driver, s.DSN = storage.DriverSQLite, raw
	default:
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case storage.DriverBolt:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the bolt driver")
		}
	case storage.DriverSQLite:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, storage.DriverBolt, storage.DriverSQLite)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"scheduler.pollInterval", c.Scheduler.PollInterval},
		{"scheduler.lookahead", c.Scheduler.Lookahead},
		{"scheduler.tolerance", c.Scheduler.Tolerance},
		{"scheduler.gracePeriod", c.Scheduler.GracePeriod},
		{"scheduler.stateTimeout", c.Scheduler.StateTimeout},
		{"health.interval", c.Health.Interval},
		{"health.timeout", c.Health.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if c.Health.Retries < 1 {
		return errors.New("health.retries must be at least 1")
	}

	if !log.Level(c.Log.Level).Valid() {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	if _, err := rules.LoadLocation(c.Traffic.Timezone); err != nil {
		return fmt.Errorf("traffic.timezone: %w", err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sampleRatio must be between 0 and 1")
	}
	return nil
}
