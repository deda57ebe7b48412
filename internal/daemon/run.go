package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	logx "reportd/pkg/logx"
)

// App is the long-running part of the daemon.
type App interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Done is closed when the app gives up on its own (fatal error).
	Done() <-chan struct{}
	Err() error
	// Logger receives the daemon's own messages once the app exists.
	Logger() logx.Logger
	// Status is a one-line summary reported to systemd after startup.
	Status() string
}

type Options struct {
	LockFile        string
	ShutdownTimeout time.Duration
	// Log is used until the app is built.
	Log logx.Logger
}

// Run takes the lock, then builds the app with newApp, so a refused second
// instance never opens the files the running one owns. It starts the app and
// blocks until SIGINT/SIGTERM, ctx cancellation or a fatal app error, then
// stops the app within ShutdownTimeout and releases the lock.
func Run(ctx context.Context, opt Options, newApp func() (App, error)) error {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := opt.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	lock, err := AcquireLock(opt.LockFile, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("release lock failed", logx.String("path", lock.Path()), logx.Err(err))
		}
	}()

	app, err := newApp()
	if err != nil {
		return err
	}
	if l := app.Logger(); !l.IsZero() {
		log = l.With(logx.String("comp", "daemon"))
	}
	log.Info("lock acquired", logx.String("path", lock.Path()), logx.Int("pid", os.Getpid()))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(sigCtx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		_ = app.Stop(stopCtx)
		cancel()
		return err
	}

	sdNotify(log, sd.SdNotifyReady)
	sdStatus(log, app.Status())
	wdCtx, wdCancel := context.WithCancel(sigCtx)
	go watchdogLoop(wdCtx, log)

	var runErr error
	select {
	case <-sigCtx.Done():
		log.Info("shutdown requested")
	case <-app.Done():
		if sigCtx.Err() != nil {
			log.Info("shutdown requested")
			break
		}
		runErr = app.Err()
		log.Error("app stopped unexpectedly", logx.Err(runErr))
	}
	wdCancel()
	stop()

	sdNotify(log, sd.SdNotifyStopping)
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
