package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations holds the parsed duration settings. A setting left empty is
// zero unless it has a fallback noted below.
type Durations struct {
	Shutdown      time.Duration // daemon.shutdown_timeout
	EngineTimeout time.Duration // engine.default_timeout; zero means no limit
	HistoryBusy   time.Duration // history.busy_timeout; 1s when empty
	QueryTimeout  time.Duration // database.query_timeout; zero means no limit
	MailTimeout   time.Duration // mail.timeout
}

// Durations parses every duration setting. Errors name the offending key.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	for _, f := range []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"daemon.shutdown_timeout", c.Daemon.ShutdownTimeout, 0, &d.Shutdown},
		{"engine.default_timeout", c.Engine.DefaultTimeout, 0, &d.EngineTimeout},
		{"history.busy_timeout", c.History.BusyTimeout, time.Second, &d.HistoryBusy},
		{"database.query_timeout", c.Database.QueryTimeout, 0, &d.QueryTimeout},
		{"mail.timeout", c.Mail.Timeout, 0, &d.MailTimeout},
	} {
		v, err := parseDuration(f.path, f.raw)
		if err != nil {
			return Durations{}, err
		}
		if v == 0 {
			v = f.def
		}
		*f.dst = v
	}
	return d, nil
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use e.g. 30s, 5m, 1h): %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration %q is negative", path, raw)
	}
	return d, nil
}
