package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/am"
	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/timeline"
)

// ScheduleCmd inspects stored price schedules
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect stored price schedules",
	Long: `Inspect the classified price schedules written by 'gridpulse plan'.

Examples:
  gridpulse schedule ls
  gridpulse schedule show tomorrow
  gridpulse schedule show 2026-03-03 --format json`,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show the slots of one day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScheduleShow,
}

var scheduleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the stored schedule dates",
	Args:  cobra.NoArgs,
	RunE:  runScheduleLs,
}

var scheduleFormat string

func init() {
	scheduleShowCmd.Flags().StringVar(&scheduleFormat, "format", "table", "Output format: table, json, yaml, toml")

	ScheduleCmd.AddCommand(scheduleShowCmd)
	ScheduleCmd.AddCommand(scheduleLsCmd)
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()
	now, err := currentTime(cfg, loc)
	if err != nil {
		return err
	}
	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	date, err := parseDate(arg, now)
	if err != nil {
		return err
	}

	store := scheduleStore(cfg, loc)
	if scheduleFormat != "table" {
		// The stored document is the canonical form; other formats are
		// re-encodings of it.
		data, err := os.ReadFile(store.Path(date))
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Wrapf(timeline.ErrNoSchedule, "%s", date.Format(timeline.DateLayout))
			}
			return errors.Wrap(err, "failed to read schedule")
		}
		if scheduleFormat == am.FormatJSON {
			fmt.Println(string(data))
			return nil
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return errors.Wrap(err, "failed to parse schedule")
		}
		out, err := am.Render(doc, scheduleFormat)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	s, err := store.Load(date)
	if err != nil {
		return err
	}
	sum := s.Summarize()

	pterm.DefaultSection.Printf("Schedule %s", s.Date.Format(timeline.DateLayout))
	pterm.Printf("Day type: %s (%s)  hard cap: %.2f Rp  generated: %s\n",
		s.DayType, s.CalendarReason, s.HardCap, s.GeneratedAt.In(loc).Format(time.DateTime))
	pterm.Printf("Slots: %d  blocked: %d  min: %.4f  max: %.4f  cheapest: %s\n\n",
		sum.Slots, sum.Blocked, sum.MinPrice, sum.MaxPrice, sum.Cheapest.In(loc).Format("15:04"))

	data := pterm.TableData{{"Start", "Price (Rp)", "Tier", ""}}
	for _, slot := range s.Timeline {
		data = append(data, []string{
			slot.Start.In(loc).Format("15:04"),
			strconv.FormatFloat(slot.Price, 'f', 4, 64),
			tierLabel(slot.Tier, slot.Blocked),
			tierBar(slot.Tier, slot.Blocked),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func tierBar(t int, blocked bool) string {
	if blocked {
		return pterm.Red("x")
	}
	bar := strings.Repeat("▇", t)
	if t <= 5 {
		return pterm.Green(bar)
	}
	return pterm.Yellow(bar)
}

func runScheduleLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()
	store := scheduleStore(cfg, loc)
	dates, err := store.Dates()
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		pterm.Info.Printf("No schedules in %s\n", store.Dir())
		return nil
	}
	for _, d := range dates {
		fmt.Println(d.Format(timeline.DateLayout))
	}
	return nil
}
