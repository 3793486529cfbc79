package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// clearEnv blanks every variable Load reads so the host environment does not leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvEncryptionKey, EnvPort, EnvDatabaseURL, EnvPollInterval, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, storage.DriverBolt, cfg.Store.Driver)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Lookahead)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.Tolerance)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.GracePeriod)
	assert.Equal(t, 3*time.Minute, cfg.Scheduler.StateTimeout)
	assert.Equal(t, ":8003", cfg.HTTP.Addr)

	loop := cfg.Scheduler.Loop()
	assert.Equal(t, cfg.Scheduler.Tolerance, loop.Tolerance)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log:
  level: debug
  json: true
store:
  driver: sqlite
  dsn: /var/lib/downtime/downtime.db
scheduler:
  pollInterval: 5s
  gracePeriod: 1m
http:
  addr: 127.0.0.1:8080
tracing:
  exporter: stdout
  sampleRatio: 0.5
traffic:
  timezone: Europe/Berlin
`)

	clearEnv(t)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, storage.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/downtime/downtime.db", cfg.Store.Location())
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.GracePeriod)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Lookahead, "unset fields keep defaults")
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRatio)
	assert.Equal(t, "Europe/Berlin", cfg.Traffic.Timezone)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeFile(t, "bad.yaml", "scheduler: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeFile(t, "driver.yaml", "store:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, `unknown store driver "postgres"`)
}

func TestLoadDotEnv(t *testing.T) {
	env := writeFile(t, ".env", "ENCRYPTION_KEY=from-dotenv\nSCHEDULER_POLL_INTERVAL=30\n")

	// godotenv never overrides variables that are already set
	clearEnv(t)
	t.Setenv(EnvEncryptionKey, "from-process")
	require.NoError(t, os.Unsetenv(EnvPollInterval))

	cfg, err := Load("", env, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-process", cfg.EncryptionKey)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvEncryptionKey: "secret",
		EnvPort:          "8100",
		EnvPollInterval:  "1m30s",
		EnvLogLevel:      "WARN",
		EnvDatabaseURL:   "sqlite://./downtime.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.EncryptionKey)
	assert.Equal(t, ":8100", cfg.HTTP.Addr)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, storage.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "./downtime.db", cfg.Store.DSN)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvDatabaseURL(t *testing.T) {
	tests := []struct {
		url      string
		driver   string
		location string
		wantErr  bool
	}{
		{url: "bolt:///var/lib/downtime", driver: storage.DriverBolt, location: "/var/lib/downtime"},
		{url: "sqlite:///tmp/d.db", driver: storage.DriverSQLite, location: "/tmp/d.db"},
		{url: "file:d.db?_pragma=busy_timeout(5000)", driver: storage.DriverSQLite, location: "file:d.db?_pragma=busy_timeout(5000)"},
		{url: "postgres://localhost/db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envMap(map[string]string{EnvDatabaseURL: tt.url}))
			if tt.wantErr {
				assert.ErrorContains(t, err, EnvDatabaseURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, cfg.Store.Driver)
			assert.Equal(t, tt.location, cfg.Store.Location())
		})
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	assert.Error(t, Default().ApplyEnv(envMap(map[string]string{EnvPort: "http"})))
	assert.Error(t, Default().ApplyEnv(envMap(map[string]string{EnvPort: "70000"})))
	assert.Error(t, Default().ApplyEnv(envMap(map[string]string{EnvPollInterval: "soon"})))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"zero poll interval", func(c *Config) { c.Scheduler.PollInterval = 0 }, "scheduler.pollInterval must be positive"},
		{"negative grace", func(c *Config) { c.Scheduler.GracePeriod = -time.Second }, "scheduler.gracePeriod must be positive"},
		{"no bolt path", func(c *Config) { c.Store.Path = "" }, "store.path is required for the bolt driver"},
		{"no sqlite dsn", func(c *Config) { c.Store.Driver, c.Store.DSN = storage.DriverSQLite, "" }, "store.dsn is required for the sqlite driver"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, `unknown log level "verbose"`},
		{"timezone", func(c *Config) { c.Traffic.Timezone = "Nowhere/City" }, "traffic.timezone"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sampleRatio must be between 0 and 1"},
		{"retries", func(c *Config) { c.Health.Retries = 0 }, "health.retries must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.message)
		})
	}
}
