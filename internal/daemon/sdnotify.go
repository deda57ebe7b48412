package daemon

import (
	"context"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	logx "reportd/pkg/logx"
)

// sdNotify sends a state line to systemd. Outside systemd (no NOTIFY_SOCKET)
// it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := sd.SdNotify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

func sdStatus(log logx.Logger, status string) {
	if status == "" {
		return
	}
	sdNotify(log, "STATUS="+status)
}

// watchdogLoop pings the systemd watchdog at half the configured interval
// until ctx is done. It returns immediately when WatchdogSec is not set.
func watchdogLoop(ctx context.Context, log logx.Logger) {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := interval / 2
	if tick < time.Second {
		tick = time.Second
	}
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sdNotify(log, sd.SdNotifyWatchdog)
		}
	}
}
