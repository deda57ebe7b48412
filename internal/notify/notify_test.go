package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportd/internal/eventbus"
	logx "reportd/pkg/logx"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (*captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return c.err
}

func (c *captureSender) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func startService(t *testing.T, cfg Config, senders ...Sender) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	s := New(cfg, logx.Nop(), bus, senders...)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func finished(name, errText string) eventbus.Event {
	return eventbus.Event{Type: eventbus.TypeRunFinished, Data: eventbus.RunFinished{
		TaskID: "id-1", TaskName: name, Success: errText == "", Rows: 1200, Err: errText, Took: 1500 * time.Millisecond,
	}}
}

func TestRunFinishedIsDelivered(t *testing.T) {
	t.Parallel()

	snd := &captureSender{}
	_, bus := startService(t, Config{Enabled: true}, snd)
	bus.Publish(finished("daily <sales>", ""))

	require.Eventually(t, func() bool { return len(snd.sent()) == 1 }, time.Second, 5*time.Millisecond)
	msg := snd.sent()[0]
	assert.Contains(t, msg, "Report sent")
	assert.Contains(t, msg, "daily &lt;sales&gt;")
	assert.Contains(t, msg, "1,200")
}

func TestOnlyFailures(t *testing.T) {
	t.Parallel()

	snd := &captureSender{}
	_, bus := startService(t, Config{Enabled: true, OnlyFailures: true}, snd)
	bus.Publish(finished("ok", ""))
	bus.Publish(finished("bad", "task id-1: task: execution failed: dial tcp: refused"))

	require.Eventually(t, func() bool { return len(snd.sent()) == 1 }, time.Second, 5*time.Millisecond)
	msg := snd.sent()[0]
	assert.Contains(t, msg, "Report failed")
	assert.Contains(t, msg, "<pre>")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, snd.sent(), 1)
}

func TestDisabledDoesNothing(t *testing.T) {
	t.Parallel()

	snd := &captureSender{}
	s, bus := startService(t, Config{Enabled: false}, snd)
	bus.Publish(finished("ok", ""))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, snd.sent())
	assert.True(t, errors.Is(s.Notify("x"), ErrStopped))
}

func TestSendErrorsAreRecorded(t *testing.T) {
	t.Parallel()

	snd := &captureSender{err: errors.New("chat not found")}
	s, _ := startService(t, Config{Enabled: true}, snd)
	require.NoError(t, s.Notify("hello"))

	require.Eventually(t, func() bool { return len(s.History()) == 1 }, time.Second, 5*time.Millisecond)
	h := s.History()[0]
	assert.Equal(t, "capture", h.Sender)
	assert.Equal(t, "chat not found", h.Err)
}

func TestFormatRunFinishedTruncatesError(t *testing.T) {
	t.Parallel()

	next := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := FormatRunFinished(eventbus.RunFinished{
		TaskID: "x", TaskName: "n", Err: strings.Repeat("e", 2000), NextRun: &next, Files: []string{"/tmp/out/report_x.xlsx"},
	})
	assert.Contains(t, msg, "report_x.xlsx")
	assert.NotContains(t, msg, "/tmp/out")
	assert.Contains(t, msg, "2025-01-02 03:04:05 UTC")
	assert.Less(t, len(msg), 700)
}

func TestNewTelegramValidates(t *testing.T) {
	t.Parallel()

	_, err := NewTelegram("", 1)
	assert.Error(t, err)
	_, err = NewTelegram("123:abc", 0)
	assert.Error(t, err)
}
