package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reportd/internal/app"
	"reportd/internal/report"
)

// queryInput holds the answers of the one-off query form.
type queryInput struct {
	DBType string
	DBURL  string
	Query  string

	Excel     bool
	PDF       bool
	ExcelPath string
	PDFPath   string

	Send    bool
	To      string
	CC      string
	Subject string
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a one-off query, export it and optionally email it (interactive)",
	Long: `query walks through a database query, export and email once, without
saving a task. Use "reportctl add" to schedule the same thing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTTY(); err != nil {
			return err
		}
		in := queryInput{DBType: defaultDBType(), Excel: true}
		envURL := strings.TrimSpace(cfg.Database.URL)
		useEnv := envURL != ""

		groups := databaseGroups(&in.DBType, &in.DBURL, &useEnv, envURL)
		groups = append(groups, huh.NewGroup(queryField(&in.Query)))
		groups = append(groups, exportGroups(&in.Excel, &in.PDF, &in.ExcelPath, &in.PDFPath)...)
		groups = append(groups, emailGroups(&in.Send, &in.To, &in.CC, &in.Subject, "Database Report")...)
		if err := huh.NewForm(groups...).Run(); err != nil {
			return err
		}
		if useEnv && envURL != "" {
			in.DBURL = envURL
		}

		target, exp, em, err := in.options()
		if err != nil {
			return err
		}
		runner, err := app.NewRunner(cfg, log)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		fmt.Println(dimStyle.Render("Running query against " + report.RedactURL(target.URL) + " ..."))
		out, err := runner.ExecuteAndExport(ctx, target, in.Query, exp, em)
		if err != nil {
			return err
		}
		if out.Rows == 0 {
			fmt.Println(warnStyle.Render("Query returned no rows; nothing exported or sent."))
			return nil
		}
		fmt.Println(okStyle.Render("Done:"), humanize.Comma(int64(out.Rows)), "rows")
		for _, f := range out.Files {
			fmt.Println(field("File", f))
		}
		if em.Send {
			fmt.Println(field("Emailed to", strings.Join(em.To, ", ")))
		}
		return nil
	},
}

func (in queryInput) options() (report.Target, report.ExportOptions, report.EmailOptions, error) {
	typ, err := report.NormalizeType(in.DBType)
	if err != nil {
		return report.Target{}, report.ExportOptions{}, report.EmailOptions{}, err
	}
	target := report.Target{Type: typ, URL: strings.TrimSpace(in.DBURL)}
	if err := report.ValidateURL(target.Type, target.URL); err != nil {
		return report.Target{}, report.ExportOptions{}, report.EmailOptions{}, err
	}
	exp := report.ExportOptions{Excel: in.Excel, PDF: in.PDF}
	if in.Excel {
		exp.ExcelPath = outputPath(in.ExcelPath, "query_result.xlsx")
	}
	if in.PDF {
		exp.PDFPath = outputPath(in.PDFPath, "query_result.pdf")
	}
	em := report.EmailOptions{
		Send:    in.Send,
		To:      splitList(in.To),
		CC:      splitList(in.CC),
		Subject: strings.TrimSpace(in.Subject),
	}
	if em.Send && len(em.To) == 0 {
		return report.Target{}, report.ExportOptions{}, report.EmailOptions{}, report.ErrNoRecipients
	}
	return target, exp, em, nil
}

func outputPath(p, def string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return filepath.Join(cfg.Export.OutputDir, def)
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
