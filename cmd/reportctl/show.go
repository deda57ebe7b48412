package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reportd/internal/report"
	"reportd/internal/task"
	"reportd/internal/taskstore"
)

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		t, err := findTask(st, args[0])
		if err != nil {
			return err
		}
		fmt.Print(renderTask(t))
		return nil
	},
}

// findTask resolves a full id or a unique id prefix (as printed by list).
func findTask(st *taskstore.Store, id string) (task.Task, error) {
	id = strings.TrimSpace(id)
	if t, ok, err := st.Get(id); err != nil {
		return task.Task{}, err
	} else if ok {
		return t, nil
	}
	tasks, err := st.List()
	if err != nil {
		return task.Task{}, err
	}
	var match []task.Task
	for _, t := range tasks {
		if id != "" && strings.HasPrefix(t.ID, id) {
			match = append(match, t)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return task.Task{}, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	default:
		return task.Task{}, fmt.Errorf("task id prefix %q is ambiguous (%d matches)", id, len(match))
	}
}

func renderTask(t task.Task) string {
	var b strings.Builder
	line := func(label, value string) { b.WriteString(field(label, value) + "\n") }
	yesNo := func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	}

	b.WriteString(titleStyle.Render("Task: "+t.Name) + "\n")
	line("ID", t.ID)
	if t.Description != "" {
		line("Description", t.Description)
	}
	line("Status", activeLabel(t.IsActive))

	b.WriteString("\n" + titleStyle.Render("Database") + "\n")
	line("Type", string(t.DatabaseType))
	line("URL", report.RedactURL(t.DatabaseURL))
	line("Query", indent(t.Query))

	b.WriteString("\n" + titleStyle.Render("Schedule") + "\n")
	line("Type", string(t.ScheduleType))
	line("Config", describeSchedule(t))

	b.WriteString("\n" + titleStyle.Render("Delivery") + "\n")
	line("Email", yesNo(t.EmailEnabled()))
	if t.EmailEnabled() {
		line("Recipients", strings.Join(t.EmailRecipients, ", "))
		if len(t.EmailCCRecipients) > 0 {
			line("CC", strings.Join(t.EmailCCRecipients, ", "))
		}
		line("Subject", t.Subject())
	}
	line("Excel", yesNo(t.ExportExcel)+pathSuffix(t.ExcelPath))
	line("PDF", yesNo(t.ExportPDF)+pathSuffix(t.PDFPath))

	b.WriteString("\n" + titleStyle.Render("Statistics") + "\n")
	line("Created", fmtTime(&t.CreatedAt))
	line("Last run", fmtTime(t.LastRun))
	line("Next run", fmtTime(t.NextRun))
	line("Runs", strconv.Itoa(t.RunCount))
	line("Errors", strconv.Itoa(t.ErrorCount))
	if t.LastError != "" {
		line("Last error", errStyle.Render(t.LastError))
	}
	return b.String()
}

func pathSuffix(p string) string {
	if p == "" {
		return ""
	}
	return dimStyle.Render(" (" + p + ")")
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+strings.Repeat(" ", 14))
}

func init() {
	rootCmd.AddCommand(showCmd)
}
