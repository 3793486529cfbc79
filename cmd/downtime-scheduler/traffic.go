package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/traffic"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/spf13/cobra"
)

var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "Import and analyze hourly traffic",
}

var trafficImportCmd = &cobra.Command{
	Use:   "import SERVER_ID",
	Short: "Import hourly traffic points from a JSON array",
	Long: `Import hourly traffic points for a server. The input is a JSON array of
objects with hour, avgInMbps, avgOutMbps, maxInMbps, maxOutMbps and samples.
Points replace existing points of the same hour.

Example:
  downtime-scheduler traffic import srv-1 -f traffic.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var in io.Reader = os.Stdin
		if file != "" && file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()
			in = f
		}

		var points []types.HourlyTraffic
		if err := json.NewDecoder(in).Decode(&points); err != nil {
			return fmt.Errorf("failed to parse traffic: %w", err)
		}
		for i := range points {
			if points[i].Hour.IsZero() {
				return fmt.Errorf("point %d has no hour", i)
			}
			points[i].ServerID = args[0]
			points[i].Hour = points[i].Hour.UTC().Truncate(time.Hour)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.GetServer(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("server %s: %w", args[0], err)
		}
		if err := store.PutTraffic(cmd.Context(), points); err != nil {
			return err
		}
		fmt.Printf("✓ Imported %d point(s) for %s\n", len(points), args[0])
		return nil
	},
}

var trafficAnalyzeCmd = &cobra.Command{
	Use:   "analyze SERVER_ID",
	Short: "Analyze a server's traffic and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		best, _ := cmd.Flags().GetBool("best-downtime")
		if days <= 0 {
			return fmt.Errorf("--days must be positive")
		}

		loc, err := rules.LoadLocation(cfg.Traffic.Timezone)
		if err != nil {
			return err
		}
		analyzer := traffic.New(traffic.WithLocation(loc))

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		server, err := store.GetServer(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("server %s: %w", args[0], err)
		}
		since := time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(days) * 24 * time.Hour)
		points, err := store.ListTraffic(cmd.Context(), server.ID, since)
		if err != nil {
			return err
		}

		if best {
			return printJSON(analyzer.BestDowntime(points, server))
		}
		return printJSON(analyzer.Analyze(points, server))
	},
}

func init() {
	trafficCmd.AddCommand(trafficImportCmd)
	trafficCmd.AddCommand(trafficAnalyzeCmd)

	trafficImportCmd.Flags().StringP("file", "f", "-", "JSON file to import, - for stdin")
	trafficAnalyzeCmd.Flags().Int("days", 30, "Days of history to analyze")
	trafficAnalyzeCmd.Flags().Bool("best-downtime", false, "Only print the best downtime window")
}
