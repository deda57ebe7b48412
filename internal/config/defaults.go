package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./logs/reportd.log", MaxSizeMB: 20, MaxBackups: 5, MaxAgeDays: 30},
		},
		Store:   StoreConfig{Path: "scheduled_tasks.json"},
		Daemon:  DaemonConfig{LockFile: "scheduler_daemon.lock", ShutdownTimeout: "30s"},
		Engine:  EngineConfig{Workers: 2, QueueSize: 64, HistorySize: 200},
		History: HistoryConfig{Driver: "file", Path: "./data/history.jsonl"},
		Database: DatabaseConfig{
			Type:         "postgresql",
			QueryTimeout: "5m",
		},
		Mail: MailConfig{
			Host:          "smtp.gmail.com",
			Port:          587,
			TLS:           "starttls",
			Timeout:       "30s",
			RatePerMinute: 30,
			MaxBodyRows:   50,
		},
		Export: ExportConfig{OutputDir: ".", SheetName: "Report", PDFMaxRows: 1000},
		Notify: NotifyConfig{Telegram: TelegramNotify{RatePerMinute: 20}},
		Debug:  DebugConfig{Addr: "127.0.0.1:6060"},
	}
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()
	setStr(&c.Logging.Level, d.Logging.Level)
	setStr(&c.Logging.File.Path, d.Logging.File.Path)
	setStr(&c.Store.Path, d.Store.Path)
	setStr(&c.Daemon.LockFile, d.Daemon.LockFile)
	setStr(&c.Daemon.ShutdownTimeout, d.Daemon.ShutdownTimeout)
	setInt(&c.Engine.Workers, d.Engine.Workers)
	setInt(&c.Engine.QueueSize, d.Engine.QueueSize)
	setInt(&c.Engine.HistorySize, d.Engine.HistorySize)
	setStr(&c.History.Driver, d.History.Driver)
	if c.History.Path == "" && strings.EqualFold(c.History.Driver, "sqlite") {
		c.History.Path = "./data/history.db"
	}
	setStr(&c.History.Path, d.History.Path)
	setStr(&c.Database.Type, d.Database.Type)
	setStr(&c.Database.QueryTimeout, d.Database.QueryTimeout)
	setStr(&c.Mail.Host, d.Mail.Host)
	setInt(&c.Mail.Port, d.Mail.Port)
	setStr(&c.Mail.TLS, d.Mail.TLS)
	setStr(&c.Mail.Timeout, d.Mail.Timeout)
	setInt(&c.Mail.RatePerMinute, d.Mail.RatePerMinute)
	setInt(&c.Mail.MaxBodyRows, d.Mail.MaxBodyRows)
	setStr(&c.Export.OutputDir, d.Export.OutputDir)
	setStr(&c.Export.SheetName, d.Export.SheetName)
	setInt(&c.Export.PDFMaxRows, d.Export.PDFMaxRows)
	setInt(&c.Notify.Telegram.RatePerMinute, d.Notify.Telegram.RatePerMinute)
	setStr(&c.Debug.Addr, d.Debug.Addr)
}

func setStr(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored and variables that
// are already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// applyEnv overlays secrets and connection settings from the environment.
// Environment values win over the file.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := firstEnv(getenv, "SMTP_USER", "EMAIL_USER"); v != "" {
		c.Mail.Username = v
	}
	if v := firstEnv(getenv, "SMTP_PASSWORD", "EMAIL_PASSWORD"); v != "" {
		c.Mail.Password = v
	}
	if v := firstEnv(getenv, "SMTP_HOST"); v != "" {
		c.Mail.Host = v
	}
	if v := firstEnv(getenv, "SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Mail.Port = p
		}
	}
	if v := firstEnv(getenv, "SMTP_FROM", "EMAIL_FROM"); v != "" {
		c.Mail.From = v
	}
	if v := firstEnv(getenv, "POSTGRESQL_DATABASE_URL", "POSTGRES_DATABASE_URL", "DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := firstEnv(getenv, "REPORTD_DEBUG_TOKEN"); v != "" {
		c.Debug.Token = v
	}
	if v := firstEnv(getenv, "TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.Token = v
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.Username
	}
}

func firstEnv(getenv func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
