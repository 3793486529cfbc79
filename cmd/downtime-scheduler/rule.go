package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/spf13/cobra"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Inspect recurrence rules",
	Long: `Inspect recurrence rules without touching the store.

Rules use RFC 5545 RRULE syntax, optionally preceded by a DTSTART line.
BYHOUR and BYMINUTE are read as wall-clock time in --timezone.

Examples:
  downtime-scheduler rule next "FREQ=DAILY;BYHOUR=21;BYMINUTE=0" --timezone Asia/Kolkata
  downtime-scheduler rule preview WEEKDAYS_9PM --count 10`,
}

var ruleNextCmd = &cobra.Command{
	Use:   "next RULE",
	Short: "Print the next occurrence after --after (default now)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tz, after, err := ruleFlags(cmd)
		if err != nil {
			return err
		}

		next, ok, err := rules.New().Next(resolveRule(args[0]), tz, after)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No further occurrences")
			return nil
		}
		fmt.Println(next.Format(time.RFC3339))
		return nil
	},
}

var ruleValidateCmd = &cobra.Command{
	Use:   "validate RULE",
	Short: "Check that a rule parses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rule := resolveRule(args[0])
		if !rules.New().Valid(rule) {
			return fmt.Errorf("invalid rule: %s", rule)
		}
		fmt.Println("✓ Rule is valid")
		return nil
	},
}

var ruleDescribeCmd = &cobra.Command{
	Use:   "describe RULE",
	Short: "Print a human-readable summary of a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(rules.New().Describe(resolveRule(args[0])))
		return nil
	},
}

var rulePreviewCmd = &cobra.Command{
	Use:   "preview RULE",
	Short: "List upcoming occurrences",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tz, after, err := ruleFlags(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")

		loc, err := rules.LoadLocation(tz)
		if err != nil {
			return err
		}
		occurrences, err := rules.Preview(rules.New(), resolveRule(args[0]), tz, after, count)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tUTC\tLOCAL")
		for i, t := range occurrences {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, t.Format(time.RFC3339), t.In(loc).Format("Mon 2006-01-02 15:04 MST"))
		}
		return w.Flush()
	},
}

var rulePatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List named rule presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tRULE\tDESCRIPTION")
		for _, p := range rules.Patterns(rules.New()) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Rule, p.Description)
		}
		return w.Flush()
	},
}

func init() {
	ruleCmd.AddCommand(ruleNextCmd)
	ruleCmd.AddCommand(ruleValidateCmd)
	ruleCmd.AddCommand(ruleDescribeCmd)
	ruleCmd.AddCommand(rulePreviewCmd)
	ruleCmd.AddCommand(rulePatternsCmd)

	for _, c := range []*cobra.Command{ruleNextCmd, rulePreviewCmd} {
		c.Flags().String("timezone", "UTC", "IANA timezone for BYHOUR/BYMINUTE")
		c.Flags().String("after", "", "RFC 3339 instant to search from (default now)")
	}
	rulePreviewCmd.Flags().Int("count", 5, "Number of occurrences")
}

// resolveRule expands a named pattern such as DAILY_9PM
func resolveRule(arg string) string {
	if rule, ok := rules.PatternRule(arg); ok {
		return rule
	}
	return arg
}

func ruleFlags(cmd *cobra.Command) (string, time.Time, error) {
	tz, _ := cmd.Flags().GetString("timezone")
	raw, _ := cmd.Flags().GetString("after")
	if raw == "" {
		return tz, time.Now(), nil
	}
	after, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid --after: %w", err)
	}
	return tz, after, nil
}
