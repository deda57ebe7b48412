package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reportd/internal/executor"
	"reportd/internal/task"
)

var runTaskID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run active tasks now, or one task with --task-id",
	Long: `Run executes tasks immediately, outside the daemon's schedule.

Without --task-id every active task runs once, in order. Run statistics and
next_run are updated exactly as for a scheduled run. This is also suitable for
driving reports from an external scheduler such as cron.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		var tasks []task.Task
		if runTaskID != "" {
			t, err := findTask(deps.Store, runTaskID)
			if err != nil {
				return err
			}
			if !t.IsActive {
				fmt.Println(warnStyle.Render("Task is inactive; skipping:"), t.Name)
				return nil
			}
			tasks = []task.Task{t}
		} else {
			tasks, err = deps.Store.ListActive()
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("No active tasks. Add one with: reportctl add")
				return nil
			}
			fmt.Println(titleStyle.Render(fmt.Sprintf("Running %d active task(s)", len(tasks))))
		}

		var ok, empty, failed int
		for _, t := range tasks {
			if ctx.Err() != nil {
				break
			}
			fmt.Println(field("Executing", t.Name+dimStyle.Render(" "+shortID(t.ID))))
			res := deps.Executor.Run(ctx, t, executor.SourceManual)
			switch {
			case res.Err != nil:
				failed++
				fmt.Println("  " + errStyle.Render("failed: ") + res.Err.Error())
			case !res.Success:
				empty++
				fmt.Println("  " + warnStyle.Render("no rows; nothing exported or sent"))
			default:
				ok++
				fmt.Println("  " + okStyle.Render("done: ") + describeResult(res))
			}
		}

		if len(tasks) > 1 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Summary"))
			fmt.Println(field("Succeeded", fmt.Sprint(ok)))
			fmt.Println(field("Empty", fmt.Sprint(empty)))
			fmt.Println(field("Failed", fmt.Sprint(failed)))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d task(s) failed", failed, len(tasks))
		}
		return nil
	},
}

func describeResult(res executor.Result) string {
	parts := []string{humanize.Comma(int64(res.Rows)) + " rows"}
	if len(res.Files) > 0 {
		names := make([]string, len(res.Files))
		for i, f := range res.Files {
			names[i] = filepath.Base(f)
		}
		parts = append(parts, strings.Join(names, ", "))
	}
	if res.NextRun != nil {
		parts = append(parts, "next "+fmtTime(res.NextRun))
	}
	return strings.Join(parts, "; ")
}

func init() {
	runCmd.Flags().StringVar(&runTaskID, "task-id", "", "run only this task (id or unique prefix)")
	rootCmd.AddCommand(runCmd)
}
