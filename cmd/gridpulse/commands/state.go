package commands

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/state"
)

// StateCmd manages learned job state
var StateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage learned job state",
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <job-id>",
	Short: "Forget the runtime history and last run of a job",
	Long: `Forget everything learned about a job. Its next pass treats it as a
first run: the initial runtime is used and the cheapest window within the
first-run window is sought.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateReset,
}

var stateDryRunFlag bool

func init() {
	stateResetCmd.Flags().BoolVar(&stateDryRunFlag, "dry-run", false, "Reset the state learned by dry runs")
	StateCmd.AddCommand(stateResetCmd)
}

func runStateReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openStateDB(cfg, stateDryRunFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	existed, err := state.NewStore(database, logger.Logger.Named("state")).Reset(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !existed {
		pterm.Info.Printf("No state recorded for %s\n", args[0])
		return nil
	}
	pterm.Success.Printf("State for %s reset\n", args[0])
	return nil
}
