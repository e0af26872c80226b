package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/am"
	"github.com/teranos/gridpulse/cmd/gridpulse/commands"
	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "gridpulse",
	Short: "gridpulse - price-aware job scheduler",
	Long: `gridpulse - run deferrable jobs when grid power is cheap.

A daily planner downloads the next day's dynamic grid tariff and classifies
every 15-minute slot into a price tier. A frequent executor pass decides, for
each configured job, whether now is a good moment to start it or whether a
cheaper window is coming before the job's deadline.

Available commands:
  plan      - Download and classify price schedules
  run       - Evaluate all jobs once and launch the ones that are due
  status    - Show learned runtimes and deadlines per job
  schedule  - Inspect stored price schedules
  state     - Manage learned job state
  am        - Manage gridpulse configuration ("I am")

Examples:
  gridpulse plan                          # Fetch tomorrow (and today if missing)
  gridpulse run                           # One executor pass, e.g. every 15 minutes from cron
  gridpulse run --dry-run --now "2026-03-03 14:30"
  gridpulse schedule show 2026-03-03`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		// Theme comes from config when it loads; a broken config is reported
		// by the command itself.
		if cfg, err := am.Load(); err == nil {
			logger.SetTheme(cfg.Log.Theme)
			jsonLogs = jsonLogs || cfg.Log.JSON
		}

		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	cobra.OnInitialize(func() {
		if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
			am.SetConfigFile(path)
		}
	})

	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v for cost comparisons and skipped days)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit JSON log lines instead of the console format")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file with the highest precedence")

	rootCmd.AddCommand(commands.PlanCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.StateCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}
