package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reportd/internal/task"
)

var listActiveOnly bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		tasks, err := st.List()
		if err != nil {
			return err
		}
		if listActiveOnly {
			tasks = filterActive(tasks)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found. Add one with: reportctl add")
			return nil
		}
		fmt.Println(titleStyle.Render(fmt.Sprintf("Scheduled tasks (%d)", len(tasks))))
		fmt.Println(renderTable(taskTable(tasks)))
		return nil
	},
}

func filterActive(tasks []task.Task) []task.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out
}

func taskTable(tasks []task.Task) ([]string, [][]string) {
	headers := []string{"ID", "Name", "Status", "Schedule", "Last run", "Next run", "Runs", "Errors"}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		errs := strconv.Itoa(t.ErrorCount)
		if t.ErrorCount > 0 {
			errs = errStyle.Render(errs)
		}
		rows = append(rows, []string{
			shortID(t.ID),
			t.Name,
			activeLabel(t.IsActive),
			describeSchedule(t),
			fmtTime(t.LastRun),
			fmtTime(t.NextRun),
			strconv.Itoa(t.RunCount),
			errs,
		})
	}
	return headers, rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// describeSchedule is a compact one-line form of the schedule config.
func describeSchedule(t task.Task) string {
	switch t.ScheduleType {
	case task.ScheduleOnce:
		if v, ok := t.ScheduleConfig["run_date"]; ok {
			return fmt.Sprintf("once at %v", v)
		}
	case task.ScheduleInterval:
		var parts []string
		for _, u := range []string{"weeks", "days", "hours", "minutes", "seconds"} {
			if v, ok := t.ScheduleConfig[u]; ok {
				parts = append(parts, fmt.Sprintf("%v %s", v, u))
			}
		}
		if len(parts) > 0 {
			return "every " + strings.Join(parts, " ")
		}
	case task.ScheduleCron:
		var parts []string
		for _, k := range []string{"second", "minute", "hour", "day", "month", "day_of_week", "week", "year"} {
			if v, ok := t.ScheduleConfig[k]; ok {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
		}
		if len(parts) > 0 {
			return "cron " + strings.Join(parts, " ")
		}
	}
	return string(t.ScheduleType)
}

func init() {
	listCmd.Flags().BoolVar(&listActiveOnly, "active", false, "only show active tasks")
	rootCmd.AddCommand(listCmd)
}
