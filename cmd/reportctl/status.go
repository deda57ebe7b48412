package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reportd/internal/daemon"
	"reportd/internal/task"
	logx "reportd/pkg/logx"
)

var statusUnit string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running and what is due next",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(titleStyle.Render("Daemon"))
		pid, alive, err := daemon.Holder(cfg.Daemon.LockFile)
		switch {
		case err != nil:
			fmt.Println(field("Lock", warnStyle.Render(err.Error())))
		case pid == 0:
			fmt.Println(field("Process", warnStyle.Render("not running")))
		case alive:
			fmt.Println(field("Process", okStyle.Render(fmt.Sprintf("running (pid %d)", pid))))
		default:
			fmt.Println(field("Process", warnStyle.Render(fmt.Sprintf("stale lock (pid %d is gone)", pid))))
		}

		if statusUnit != "" {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			u, err := daemon.QueryUnit(ctx, statusUnit)
			cancel()
			switch {
			case err != nil:
				log.Debug("systemd query failed", logx.Err(err))
				fmt.Println(field("systemd", dimStyle.Render("unavailable")))
			case !u.Found():
				fmt.Println(field("systemd", dimStyle.Render(u.Name+" not installed")))
			default:
				state := u.Active + "/" + u.SubState
				if u.Active == "active" {
					state = okStyle.Render(state)
				} else {
					state = warnStyle.Render(state)
				}
				if !u.Since.IsZero() {
					state += dimStyle.Render(" since " + u.Since.Local().Format("2006-01-02 15:04"))
				}
				fmt.Println(field("systemd", u.Name+" "+state))
			}
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		tasks, err := st.List()
		if err != nil {
			return err
		}
		active := 0
		var next *task.Task
		for i := range tasks {
			t := &tasks[i]
			if !t.IsActive {
				continue
			}
			active++
			if t.NextRun != nil && (next == nil || t.NextRun.Before(*next.NextRun)) {
				next = t
			}
		}
		fmt.Println()
		fmt.Println(titleStyle.Render("Tasks"))
		fmt.Println(field("Store", st.Path()))
		fmt.Println(field("Active", fmt.Sprintf("%d of %d", active, len(tasks))))
		if next != nil {
			fmt.Println(field("Next", next.Name+" "+fmtTime(next.NextRun)))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUnit, "unit", "reportd", "systemd unit to query (empty to skip)")
	rootCmd.AddCommand(statusCmd)
}
