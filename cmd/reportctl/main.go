// Command reportctl manages the task file used by reportd and runs reports
// on demand.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"reportd/internal/app"
	"reportd/internal/config"
	"reportd/internal/taskstore"
	logx "reportd/pkg/logx"
)

var (
	cfgPath string
	verbose bool

	cfg *config.Config
	log logx.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reportctl",
	Short: "Manage scheduled database report tasks",
	Long: `reportctl edits the task file read by the reportd daemon and can run
reports on demand.

The daemon picks up changes made here through its file watcher. For bulk
edits stop the daemon first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		log = logx.NewConsole(level)

		if err := config.LoadDotEnv(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		c, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config file (json, yaml or toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, warnStyle.Render("aborted"))
		} else {
			fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		}
		os.Exit(1)
	}
}

func openStore() (*taskstore.Store, error) {
	return taskstore.Open(cfg.Store.Path, log.With(logx.String("comp", "taskstore")))
}

func openDeps() (*app.Deps, error) {
	return app.OpenDeps(cfg, log, nil)
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func requireTTY() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("this command is interactive and needs a terminal")
	}
	return nil
}
