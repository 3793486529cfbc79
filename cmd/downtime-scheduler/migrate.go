package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy all records from the configured store into another store",
	Long: `Copy every cloud account, server, traffic point, schedule and execution
from the configured store into a target store. The source is never modified.

Examples:
  # Move from the embedded bolt store to SQLite
  downtime-scheduler migrate --to-driver sqlite --to /var/lib/downtime/downtime.db

  # Count what would be copied
  downtime-scheduler migrate --to-driver sqlite --to ./downtime.db --dry-run`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("to-driver", storage.DriverSQLite, "Target store driver (bolt or sqlite)")
	migrateCmd.Flags().String("to", "", "Target data directory (bolt) or database file (sqlite)")
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	migrateCmd.Flags().String("backup", "", "Path to back up the bolt database before migration (default: <db>.backup)")
	_ = migrateCmd.MarkFlagRequired("to")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("migrate")

	toDriver, _ := cmd.Flags().GetString("to-driver")
	to, _ := cmd.Flags().GetString("to")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	if toDriver == cfg.Store.Driver && to == cfg.Store.Location() {
		return fmt.Errorf("source and target store are the same")
	}

	src, err := openStore()
	if err != nil {
		return err
	}
	defer src.Close()

	logger.Info().
		Str("from", cfg.Store.Driver+":"+cfg.Store.Location()).
		Str("to", toDriver+":"+to).
		Bool("dry_run", dryRun).
		Msg("Starting store migration")

	if dryRun {
		stats, err := storage.Copy(cmd.Context(), src, nil)
		if err != nil {
			return err
		}
		fmt.Println("[DRY RUN] Would copy:")
		printCopyStats(stats)
		fmt.Println("Run without --dry-run to perform the migration.")
		return nil
	}

	if toDriver == storage.DriverBolt {
		dbPath := filepath.Join(to, storage.BoltFileName)
		if _, err := os.Stat(dbPath); err == nil {
			if backupPath == "" {
				backupPath = dbPath + ".backup"
			}
			if err := copyFile(dbPath, backupPath); err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
			fmt.Printf("✓ Backup created: %s\n", backupPath)
		}
		if err := os.MkdirAll(to, 0700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dst, err := storage.Open(toDriver, to)
	if err != nil {
		return fmt.Errorf("failed to open target store: %w", err)
	}
	defer dst.Close()

	stats, err := storage.Copy(cmd.Context(), src, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✓ Migration completed successfully!")
	printCopyStats(stats)
	return nil
}

func printCopyStats(s storage.CopyStats) {
	fmt.Printf("  Cloud accounts: %d\n", s.CloudAccounts)
	fmt.Printf("  Servers:        %d\n", s.Servers)
	fmt.Printf("  Traffic points: %d\n", s.TrafficPoints)
	fmt.Printf("  Schedules:      %d\n", s.Schedules)
	fmt.Printf("  Executions:     %d\n", s.Executions)
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
