package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudevy/downtime-scheduler/pkg/config"
	"github.com/cloudevy/downtime-scheduler/pkg/credentials"
	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once in the root PersistentPreRunE
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "downtime-scheduler",
	Short: "Run recurring stop, start, reboot and scaling actions on cloud servers",
	Long: `downtime-scheduler executes recurrence-rule schedules against cloud
instances: stopping them at night, starting them in the morning, rebooting
them weekly or resizing them ahead of known traffic peaks.

The serve command runs the scheduler loop together with the HTTP API. The
other commands work directly on the configured store.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")

		loaded, err := config.Load(configPath, envFiles...)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, loaded); err != nil {
			return err
		}
		cfg = loaded

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
			Output:     os.Stderr,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"downtime-scheduler version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.StringSlice("env-file", []string{".env"}, "Env files to load before reading the environment")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("json-logs", false, "Write logs as JSON")
	flags.String("store-driver", "", "Store driver (bolt or sqlite)")
	flags.String("data-dir", "", "Data directory for the bolt store")
	flags.String("dsn", "", "SQLite database file or URI")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runOnceCmd)
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(trafficCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(applyCmd)
}

// applyFlags layers explicitly set global flags over the loaded config
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("json-logs") {
		c.Log.JSON, _ = flags.GetBool("json-logs")
	}
	if flags.Changed("store-driver") {
		c.Store.Driver, _ = flags.GetString("store-driver")
	}
	if flags.Changed("data-dir") {
		c.Store.Path, _ = flags.GetString("data-dir")
	}
	if flags.Changed("dsn") {
		c.Store.DSN, _ = flags.GetString("dsn")
	}
	return c.Validate()
}

// openStore opens the configured store, creating the bolt directory if needed
func openStore() (storage.Store, error) {
	if cfg.Store.Driver == storage.DriverBolt {
		if err := os.MkdirAll(cfg.Store.Path, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := storage.Open(cfg.Store.Driver, cfg.Store.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	return store, nil
}

// credentialManager builds the credentials manager from the encryption key
func credentialManager() (*credentials.Manager, error) {
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvEncryptionKey)
	}
	return credentials.NewManagerFromPassword(cfg.EncryptionKey)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
