package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseFormats(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"config.json": `{"engine": {"workers": 4}, "mail": {"host": "mail.local", "port": 2525}}`,
		"config.yaml": "engine:\n  workers: 4\nmail:\n  host: mail.local\n  port: 2525\n",
		"config.toml": "[engine]\nworkers = 4\n\n[mail]\nhost = \"mail.local\"\nport = 2525\n",
	}
	for name, body := range cases {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, name, body))
			m.getenv = noEnv
			cfg, err := m.Parse()
			require.NoError(t, err)
			assert.Equal(t, 4, cfg.Engine.Workers)
			assert.Equal(t, "mail.local", cfg.Mail.Host)
			assert.Equal(t, 2525, cfg.Mail.Port)
			// untouched sections keep defaults
			assert.Equal(t, 64, cfg.Engine.QueueSize)
			assert.Equal(t, "scheduled_tasks.json", cfg.Store.Path)
			assert.Equal(t, "file", cfg.History.Driver)
		})
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "c.json", `{"engine": {"wokers": 4}}`))
	m.getenv = noEnv
	_, err := m.Parse()
	require.Error(t, err)

	m = NewConfigManager(writeFile(t, "c.json", `{} {}`))
	m.getenv = noEnv
	_, err = m.Parse()
	require.Error(t, err)
}

func TestParseValidates(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"engine": {"default_timeout": "soon"}}`,
		`{"history": {"driver": "redis"}}`,
		`{"mail": {"tls": "maybe"}}`,
		`{"scheduler": {"timezone": "Nowhere/City"}}`,
		`{"notify": {"enabled": true, "telegram": {"enabled": true}}}`,
		`{"debug": {"enabled": true, "addr": "0.0.0.0:6060"}}`,
		`{"debug": {"enabled": true, "addr": "6060"}}`,
	} {
		m := NewConfigManager(writeFile(t, "c.json", body))
		m.getenv = noEnv
		_, err := m.Parse()
		assert.Error(t, err, body)
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()

	d, err := Default().Durations()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d.Shutdown)
	assert.Equal(t, 5*time.Minute, d.QueryTimeout)
	assert.Equal(t, 30*time.Second, d.MailTimeout)
	assert.Equal(t, time.Second, d.HistoryBusy)

	cfg := Default()
	cfg.History.BusyTimeout = "250ms"
	cfg.Engine.DefaultTimeout = " 2m "
	d, err = cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d.HistoryBusy)
	assert.Equal(t, 2*time.Minute, d.EngineTimeout)

	cfg = Default()
	cfg.Mail.Timeout = "30"
	_, err = cfg.Durations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail.timeout")

	cfg = Default()
	cfg.Daemon.ShutdownTimeout = "-1s"
	_, err = cfg.Durations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon.shutdown_timeout")
	assert.Contains(t, err.Error(), "negative")
}

func TestDebugAddrWithToken(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "c.json", `{"debug": {"enabled": true, "addr": "0.0.0.0:6060", "token": "s3cret"}}`))
	m.getenv = noEnv
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:6060", cfg.Debug.Addr)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.json"))
	m.getenv = noEnv
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
	assert.Same(t, cfg, m.Get())
}

func TestEnvOverlay(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"EMAIL_USER":            "bot@example.com",
		"SMTP_PASSWORD":         "secret",
		"SMTP_PORT":             "465",
		"POSTGRES_DATABASE_URL": "postgresql://u:p@db/reports",
	}
	m := NewConfigManager("")
	m.getenv = func(k string) string { return env[k] }
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", cfg.Mail.Username)
	assert.Equal(t, "bot@example.com", cfg.Mail.From)
	assert.Equal(t, "secret", cfg.Mail.Password)
	assert.Equal(t, 465, cfg.Mail.Port)
	assert.Equal(t, "postgresql://u:p@db/reports", cfg.Database.URL)
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	path := writeFile(t, ".env", "REPORTD_TEST_A=from-file\nREPORTD_TEST_B=from-file\n")
	t.Setenv("REPORTD_TEST_A", "from-env")
	t.Setenv("REPORTD_TEST_B", "")
	require.NoError(t, os.Unsetenv("REPORTD_TEST_B"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-env", os.Getenv("REPORTD_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("REPORTD_TEST_B"))
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	b.Mail.Password = "hunter2"
	b.Engine.Workers = 8

	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"engine", "mail"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(a, Default())
	assert.Empty(t, changed)
}

func TestWatchPublishesChanges(t *testing.T) {
	path := writeFile(t, "c.json", `{"engine": {"workers": 1}}`)
	m := NewConfigManager(path)
	m.getenv = noEnv
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"engine": {"workers": 3}}`), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, 3, cfg.Engine.Workers)
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
}
