package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

// Config controls the notification pipeline.
type Config struct {
	Enabled bool
	// OnlyFailures suppresses notifications for successful runs.
	OnlyFailures  bool
	QueueSize     int
	RatePerMinute int
	SendTimeout   time.Duration
}

// Sender delivers one rendered notification. Text is Telegram-style HTML.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) error
}

type HistoryItem struct {
	At     time.Time
	Sender string
	Text   string
	Err    string
}
