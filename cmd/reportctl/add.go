package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reportd/internal/report"
	"reportd/internal/task"
	"reportd/internal/trigger"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled report task (interactive)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTTY(); err != nil {
			return err
		}
		in := taskInput{
			DBType:       defaultDBType(),
			ScheduleType: "cron",
			SendEmail:    true,
			ExportExcel:  true,
		}
		if err := runAddForm(&in, strings.TrimSpace(cfg.Database.URL)); err != nil {
			return err
		}

		loc := cfg.Location()
		now := time.Now()
		t, err := in.build(loc, now)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		id, err := st.Add(t)
		if err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		t.ID = id

		fmt.Println(okStyle.Render("Task added"))
		fmt.Println(field("ID", id))
		fmt.Println(field("Name", t.Name))
		if tr, err := trigger.ForTask(t, loc); err == nil {
			if next, ok := tr.NextRun(nil, now); ok {
				fmt.Println(field("First run", fmtTime(&next)))
			} else {
				fmt.Println(field("First run", warnStyle.Render("never (schedule has no future run)")))
			}
		}
		fmt.Println(dimStyle.Render("A running reportd daemon picks the task up automatically."))
		return nil
	},
}

func defaultDBType() string {
	if typ, err := report.NormalizeType(cfg.Database.Type); err == nil {
		return string(typ)
	}
	return string(task.DatabasePostgres)
}

func init() {
	rootCmd.AddCommand(addCmd)
}
