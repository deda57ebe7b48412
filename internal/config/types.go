package config

// Config is the reportd configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Omitted fields take the values from Default().
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Daemon    DaemonConfig    `json:"daemon"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Engine    EngineConfig    `json:"engine"`
	History   HistoryConfig   `json:"history"`
	Database  DatabaseConfig  `json:"database"`
	Mail      MailConfig      `json:"mail"`
	Export    ExportConfig    `json:"export"`
	Notify    NotifyConfig    `json:"notify"`
	Debug     DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// StoreConfig locates the task file.
//
// Watch is a pointer so we can distinguish "omitted" (default true) from an
// explicit false.
type StoreConfig struct {
	Path  string `json:"path"`
	Watch *bool  `json:"watch,omitempty"`
}

func (s StoreConfig) WatchEnabled() bool { return s.Watch == nil || *s.Watch }

type DaemonConfig struct {
	LockFile        string `json:"lock_file"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

// SchedulerConfig controls trigger evaluation.
type SchedulerConfig struct {
	// Timezone is the IANA zone used for tasks whose schedule_config has no
	// timezone of its own. Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
}

// EngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
type EngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// HistoryConfig controls the run history store.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./data/history.db" }
//
// driver "none" disables run history.
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DatabaseConfig holds defaults for the interactive query flow.
type DatabaseConfig struct {
	Type         string `json:"type"`
	URL          string `json:"url,omitempty"`
	QueryTimeout string `json:"query_timeout,omitempty"`
}

type MailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
	// TLS is "starttls" (default), "ssl" or "none".
	TLS           string `json:"tls,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	RatePerMinute int    `json:"rate_per_minute,omitempty"`
	// MaxBodyRows caps the rows rendered into the HTML body.
	MaxBodyRows int `json:"max_body_rows,omitempty"`
}

type ExportConfig struct {
	OutputDir  string `json:"output_dir"`
	SheetName  string `json:"sheet_name,omitempty"`
	PDFMaxRows int    `json:"pdf_max_rows,omitempty"`
}

// NotifyConfig controls the post-run notification hook.
type NotifyConfig struct {
	Enabled      bool           `json:"enabled"`
	OnlyFailures bool           `json:"only_failures,omitempty"`
	Telegram     TelegramNotify `json:"telegram"`
}

type TelegramNotify struct {
	Enabled       bool   `json:"enabled"`
	Token         string `json:"token,omitempty"`
	ChatID        int64  `json:"chat_id,omitempty"`
	RatePerMinute int    `json:"rate_per_minute,omitempty"`
}

// DebugConfig controls the loopback HTTP endpoint with health, job status and
// pprof handlers. A non-loopback addr requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}
