package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"reportd/internal/app"
	"reportd/internal/config"
	"reportd/internal/daemon"
	"reportd/internal/task"
	logx "reportd/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json, yaml or toml)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		if errors.Is(err, task.ErrLockConflict) {
			fmt.Fprintln(os.Stderr, "reportd is already running:", err)
		} else {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}

// run reads only the config before taking the lock; the app, with its log
// file, task file and history database, is built once the lock is held.
func run(cfgPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	d, err := cfg.Durations()
	if err != nil {
		return err
	}

	return daemon.Run(context.Background(), daemon.Options{
		LockFile:        cfg.Daemon.LockFile,
		ShutdownTimeout: d.Shutdown,
		Log:             logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "daemon")),
	}, func() (daemon.App, error) {
		a, err := app.NewApp(cfgPath)
		if err != nil {
			return nil, err
		}
		return a, nil
	})
}
