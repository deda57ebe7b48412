package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportd.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path, MaxSizeMB: 1}})

	log.With(String("comp", "test")).Info("hello", Int("rows", 3))
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(b))
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	require.Equal(t, "hello", m["message"])
	require.Equal(t, "test", m["comp"])
	require.EqualValues(t, 3, m["rows"])
	require.Equal(t, "info", m["level"])
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var zero Logger
	require.True(t, zero.IsZero())
	zero.Info("dropped") // must not panic

	l := NewConsole("warn")
	require.False(t, l.Enabled(LevelInfo))
	require.True(t, l.Enabled(LevelError))

	require.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in, LevelInfo), in)
	}
}
