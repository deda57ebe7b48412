package app

import (
	"fmt"
	"strings"

	"reportd/internal/config"
	"reportd/internal/executor"
	"reportd/internal/notify"
	"reportd/internal/report"
	"reportd/internal/storage"
	"reportd/internal/task/engine"
	"reportd/internal/task/scheduler"
	logx "reportd/pkg/logx"
)

// LogConfig maps the logging section onto the logx service config.
func LogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	hc := cfg.History
	driver := strings.ToLower(strings.TrimSpace(hc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(hc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("history.path is required when history.driver=sqlite")
		}
		d, err := cfg.Durations()
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: d.HistoryBusy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown history.driver: %s", hc.Driver)
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	d, err := cfg.Durations()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        cfg.Engine.Workers,
		QueueSize:      cfg.Engine.QueueSize,
		DefaultTimeout: d.EngineTimeout,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Scheduler.Timezone}
}

func mapExecutorConfig(cfg *config.Config) executor.Config {
	return executor.Config{OutputDir: cfg.Export.OutputDir, Location: cfg.Location()}
}

func mapSMTPConfig(cfg *config.Config) (report.SMTPConfig, error) {
	d, err := cfg.Durations()
	if err != nil {
		return report.SMTPConfig{}, err
	}
	return report.SMTPConfig{
		Host:          cfg.Mail.Host,
		Port:          cfg.Mail.Port,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		TLS:           cfg.Mail.TLS,
		Timeout:       d.MailTimeout,
		RatePerMinute: cfg.Mail.RatePerMinute,
	}, nil
}

func mapReportOptions(cfg *config.Config) report.Options {
	return report.Options{
		SheetName:   cfg.Export.SheetName,
		PDFMaxRows:  cfg.Export.PDFMaxRows,
		MaxBodyRows: cfg.Mail.MaxBodyRows,
		From:        cfg.Mail.From,
	}
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	return notify.Config{
		Enabled:       cfg.Notify.Enabled,
		OnlyFailures:  cfg.Notify.OnlyFailures,
		RatePerMinute: cfg.Notify.Telegram.RatePerMinute,
	}
}
