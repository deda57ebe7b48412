package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate rejects settings that would only fail later at runtime.
func (c *Config) Validate() error {
	if _, err := c.Durations(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "", "file", "sqlite", "none":
	default:
		return fmt.Errorf("history.driver: unsupported driver %q (use file, sqlite or none)", c.History.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Mail.TLS)) {
	case "", "starttls", "ssl", "none":
	default:
		return fmt.Errorf("mail.tls: unsupported mode %q (use starttls, ssl or none)", c.Mail.TLS)
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.Notify.Enabled && c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.Token) == "" || c.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram: token and chat_id are required when enabled")
		}
	}
	if c.Debug.Enabled {
		host, _, err := net.SplitHostPort(strings.TrimSpace(c.Debug.Addr))
		if err != nil {
			return fmt.Errorf("debug.addr: %w", err)
		}
		if !isLoopback(host) && strings.TrimSpace(c.Debug.Token) == "" {
			return fmt.Errorf("debug.addr: %q is not a loopback address; set debug.token", c.Debug.Addr)
		}
	}
	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Location resolves scheduler.timezone, defaulting to the local zone.
func (c *Config) Location() *time.Location {
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
