package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/schedules"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage schedules",
}

// withService opens the store and runs fn with a schedule service on top of it
func withService(fn func(svc *schedules.Service, store storage.Store) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(schedules.NewService(store, rules.New()), store)
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a schedule",
	Long: `Create a schedule for a server.

Examples:
  # Stop every night at 21:00 India time
  downtime-scheduler schedule create nightly-stop --server srv-1 --action stop \
    --rrule "FREQ=DAILY;BYHOUR=21;BYMINUTE=0" --timezone Asia/Kolkata

  # Shrink the instance on weekends
  downtime-scheduler schedule create weekend-small --server srv-1 --action scale_down \
    --rrule WEEKENDS_10AM --instance-type t3.small`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		serverID, _ := cmd.Flags().GetString("server")
		action, _ := cmd.Flags().GetString("action")
		rrule, _ := cmd.Flags().GetString("rrule")
		tz, _ := cmd.Flags().GetString("timezone")

		scaling, err := scalingFlags(cmd)
		if err != nil {
			return err
		}

		return withService(func(svc *schedules.Service, _ storage.Store) error {
			s, err := svc.Create(cmd.Context(), workspace, schedules.CreateRequest{
				ServerID: serverID,
				Name:     args[0],
				Action:   types.Action(action),
				RRule:    resolveRule(rrule),
				Timezone: tz,
				Scaling:  scaling,
			})
			if err != nil {
				return err
			}
			fmt.Printf("✓ Schedule created: %s\n", s.ID)
			fmt.Printf("  Next run: %s\n", s.NextRunAt.Format(time.RFC3339))
			return nil
		})
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules ordered by next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		serverID, _ := cmd.Flags().GetString("server")

		return withService(func(svc *schedules.Service, _ storage.Store) error {
			list, err := svc.List(cmd.Context(), workspace, serverID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No schedules found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSERVER\tACTION\tENABLED\tNEXT RUN\tRUNS")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%d\n",
					s.ID, s.Name, s.ServerID, s.Action, s.Enabled,
					s.NextRunAt.Format(time.RFC3339), s.ExecutionCount)
			}
			return w.Flush()
		})
	},
}

var scheduleGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		return withService(func(svc *schedules.Service, _ storage.Store) error {
			s, err := svc.Get(cmd.Context(), workspace, args[0])
			if err != nil {
				return err
			}
			return printJSON(s)
		})
	},
}

var scheduleToggleCmd = &cobra.Command{
	Use:   "toggle ID",
	Short: "Enable or disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		return withService(func(svc *schedules.Service, _ storage.Store) error {
			s, err := svc.Toggle(cmd.Context(), workspace, args[0])
			if err != nil {
				return err
			}
			state := "disabled"
			if s.Enabled {
				state = "enabled"
			}
			fmt.Printf("✓ Schedule %s %s\n", s.ID, state)
			return nil
		})
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a schedule and its execution history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		return withService(func(svc *schedules.Service, _ storage.Store) error {
			if err := svc.Delete(cmd.Context(), workspace, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Schedule %s deleted\n", args[0])
			return nil
		})
	},
}

var scheduleHistoryCmd = &cobra.Command{
	Use:   "history ID",
	Short: "Show recent executions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		limit, _ := cmd.Flags().GetInt("limit")

		return withService(func(svc *schedules.Service, _ storage.Store) error {
			execs, err := svc.Executions(cmd.Context(), workspace, args[0], limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EXECUTED\tACTION\tSTATUS\tDURATION\tERROR")
			for _, e := range execs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
					e.ExecutedAt.Format(time.RFC3339), e.Action, e.Status, e.DurationMs, e.Error)
			}
			return w.Flush()
		})
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleGetCmd)
	scheduleCmd.AddCommand(scheduleToggleCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
	scheduleCmd.AddCommand(scheduleHistoryCmd)

	scheduleCmd.PersistentFlags().String("workspace", "default", "Workspace ID")

	scheduleCreateCmd.Flags().String("server", "", "Server ID (required)")
	scheduleCreateCmd.Flags().String("action", "", "stop, start, reboot, scale_down or scale_up (required)")
	scheduleCreateCmd.Flags().String("rrule", "", "Recurrence rule or pattern name (required)")
	scheduleCreateCmd.Flags().String("timezone", "UTC", "IANA timezone of the rule")
	scheduleCreateCmd.Flags().String("instance-type", "", "Target instance type for scaling")
	scheduleCreateCmd.Flags().Int32("volume-size", 0, "Target root volume size in GiB")
	scheduleCreateCmd.Flags().String("volume-type", "", "Target root volume type")
	scheduleCreateCmd.Flags().Int32("volume-iops", 0, "Target root volume IOPS")
	scheduleCreateCmd.Flags().Int32("volume-throughput", 0, "Target root volume throughput in MiB/s")
	_ = scheduleCreateCmd.MarkFlagRequired("server")
	_ = scheduleCreateCmd.MarkFlagRequired("action")
	_ = scheduleCreateCmd.MarkFlagRequired("rrule")

	scheduleListCmd.Flags().String("server", "", "Only list schedules of this server")
	scheduleHistoryCmd.Flags().Int("limit", schedules.DefaultExecutionLimit, "Number of executions")
}

// scalingFlags reads the scaling targets; volume flags count only when set
func scalingFlags(cmd *cobra.Command) (types.Scaling, error) {
	var s types.Scaling
	s.TargetInstanceType, _ = cmd.Flags().GetString("instance-type")
	s.TargetVolumeType, _ = cmd.Flags().GetString("volume-type")

	targets := []struct {
		flag string
		dst  **int32
	}{
		{"volume-size", &s.TargetVolumeSize},
		{"volume-iops", &s.TargetVolumeIops},
		{"volume-throughput", &s.TargetVolumeThroughput},
	}
	for _, t := range targets {
		if !cmd.Flags().Changed(t.flag) {
			continue
		}
		v, err := cmd.Flags().GetInt32(t.flag)
		if err != nil {
			return s, err
		}
		*t.dst = types.Int32(v)
	}
	return s, nil
}
