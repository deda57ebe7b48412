package config

import (
	"reflect"
	"sort"
	"strings"

	logx "reportd/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like passwords or tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Store, newCfg.Store) {
		changed = append(changed, "store")
		attrs = append(attrs, logx.String("store.path", newCfg.Store.Path))
	}
	if oldCfg.Daemon != newCfg.Daemon {
		changed = append(changed, "daemon")
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.workers", newCfg.Engine.Workers),
			logx.Int("engine.queue_size", newCfg.Engine.QueueSize),
			logx.String("engine.default_timeout", newCfg.Engine.DefaultTimeout),
		)
	}
	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs, logx.String("history.driver", newCfg.History.Driver))
	}
	if oldCfg.Database.Type != newCfg.Database.Type ||
		oldCfg.Database.QueryTimeout != newCfg.Database.QueryTimeout ||
		(oldCfg.Database.URL != "") != (newCfg.Database.URL != "") {
		changed = append(changed, "database")
		attrs = append(attrs, logx.Bool("database.url_set", strings.TrimSpace(newCfg.Database.URL) != ""))
	}

	oMail, nMail := oldCfg.Mail, newCfg.Mail
	oMail.Password, nMail.Password = "", ""
	if oMail != nMail || (oldCfg.Mail.Password != "") != (newCfg.Mail.Password != "") {
		changed = append(changed, "mail")
		attrs = append(attrs,
			logx.String("mail.host", newCfg.Mail.Host),
			logx.Int("mail.port", newCfg.Mail.Port),
			logx.Bool("mail.password_set", newCfg.Mail.Password != ""),
		)
	}
	if oldCfg.Export != newCfg.Export {
		changed = append(changed, "export")
		attrs = append(attrs, logx.String("export.output_dir", newCfg.Export.OutputDir))
	}

	oN, nN := oldCfg.Notify, newCfg.Notify
	oN.Telegram.Token, nN.Telegram.Token = "", ""
	if oN != nN || (oldCfg.Notify.Telegram.Token != "") != (newCfg.Notify.Telegram.Token != "") {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.enabled", newCfg.Notify.Enabled),
			logx.Bool("notify.telegram", newCfg.Notify.Telegram.Enabled),
		)
	}

	if oldCfg.Debug.Enabled != newCfg.Debug.Enabled || oldCfg.Debug.Addr != newCfg.Debug.Addr ||
		oldCfg.Debug.Token != newCfg.Debug.Token {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
