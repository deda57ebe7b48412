package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reportd/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show recent runs, for one task or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if deps.History == nil {
			return errors.New("run history is disabled (history.driver=none)")
		}

		id := ""
		if len(args) == 1 {
			t, err := findTask(deps.Store, args[0])
			if err != nil {
				return err
			}
			id = t.ID
		}
		ctx, cancel := signalContext()
		defer cancel()
		runs, err := deps.History.RecentRuns(ctx, id, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		fmt.Println(renderTable(historyTable(runs)))
		return nil
	},
}

func historyTable(runs []storage.RunEntry) ([]string, [][]string) {
	headers := []string{"Started", "Task", "Trigger", "Status", "Rows", "Took", "Error"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := r.Status
		switch r.Status {
		case storage.StatusSuccess:
			status = okStyle.Render(status)
		case storage.StatusEmpty:
			status = warnStyle.Render(status)
		case storage.StatusFailed:
			status = errStyle.Render(status)
		}
		started := r.StartedAt
		rows = append(rows, []string{
			fmtTime(&started),
			r.TaskName,
			r.Trigger,
			status,
			strconv.Itoa(r.Rows),
			r.Took().Round(10*time.Millisecond).String(),
			truncate(r.Error, 60),
		})
	}
	return headers, rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
