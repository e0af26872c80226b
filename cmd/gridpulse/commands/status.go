package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/coordinator"
	"github.com/teranos/gridpulse/pulse/job"
	"github.com/teranos/gridpulse/pulse/state"
	"github.com/teranos/gridpulse/pulse/timeline"
)

// StatusCmd shows learned state and deadlines per job
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show learned runtimes and deadlines per job",
	Long: `Show, for every configured job, how often it ran, its learned average
runtime, when it last finished and when its max interval runs out.

The current price slot and the day type are shown above the table.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusDryRunFlag bool

func init() {
	StatusCmd.Flags().BoolVar(&statusDryRunFlag, "dry-run", false, "Show the state learned by dry runs")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()
	now, err := currentTime(cfg, loc)
	if err != nil {
		return err
	}
	defs, err := cfg.JobDefinitions()
	if err != nil {
		return err
	}

	database, err := openStateDB(cfg, statusDryRunFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	states, err := state.NewStore(database, logger.Logger.Named("state")).Load(ctx)
	if err != nil {
		return err
	}

	dayType, reason := cfg.Resolver().Resolve(now)
	tl := timeline.Load(ctx, scheduleStore(cfg, loc), now, coordinator.MinHorizonDays, logger.Logger.Named("timeline"))

	pterm.DefaultSection.Println("gridpulse status")
	pterm.Printf("Now:       %s (%s, %s)\n", now.Format(time.DateTime), dayType, reason)
	if slot, ok := tl.Current(now); ok {
		pterm.Printf("Slot:      %s  %.4f Rp  tier %s\n", slot.Start.Format("15:04"), slot.Price, tierLabel(slot.Tier, slot.Blocked))
	} else {
		pterm.Warning.Println("No price slot for now; jobs start unconditionally until a schedule is planned")
	}
	pterm.Printf("Schedules: %d slots across %d days\n\n", tl.Len(), len(tl.Days()))

	data := pterm.TableData{{"Job", "Group", "Profile", "Max tier", "Runs", "Avg runtime", "Last run", "Deadline"}}
	for _, d := range job.SortByOrder(defs) {
		st := states[d.ID]
		runs, avg, last, deadline := "0", "-", "never", "first run"
		if st != nil {
			runs = strconv.Itoa(len(st.History))
			avg = st.AvgDuration.Round(time.Second).String()
			if st.LastRunAt != nil {
				last = humanize.RelTime(*st.LastRunAt, now, "ago", "from now")
				due := st.LastRunAt.Add(d.MaxInterval)
				deadline = humanize.RelTime(due, now, "overdue", "left")
			}
		}
		group := d.Group
		if group == "" {
			group = "-"
		}
		data = append(data, []string{d.ID, group, d.Profile, strconv.Itoa(d.MaxTier), runs, avg, last, deadline})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Println("\nNo jobs configured. Add [[jobs]] tables, see 'gridpulse am init'.")
	}
	return nil
}

func tierLabel(t int, blocked bool) string {
	if blocked {
		return "blocked"
	}
	return strconv.Itoa(t)
}
