// Package filewatch notifies about changes to a single file.
//
// The watcher observes the parent directory (editors and atomic writers
// replace files via rename), debounces bursts of events and recreates the
// underlying fsnotify watcher when it breaks.
package filewatch

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "reportd/pkg/logx"
)

const (
	DefaultDebounce = 250 * time.Millisecond

	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

type Options struct {
	// Debounce delays onChange until events stop arriving for this long.
	Debounce time.Duration
	Log      logx.Logger
}

// Watch blocks until ctx is done, calling onChange after the file at path is
// written, created, renamed or removed. onChange runs on a timer goroutine and
// never concurrently with itself.
func Watch(ctx context.Context, path string, opt Options, onChange func()) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("dir", dir), logx.String("file", file))
	delay := opt.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
		runMu   sync.Mutex
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				return
			}
			runMu.Lock()
			defer runMu.Unlock()
			onChange()
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			log.Warn("file watch init failed", logx.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		log.Debug("file watcher started")

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename (more robust across absolute/relative paths and OS quirks).
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means we may have missed events; fire once and keep going.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					log.Warn("file watch overflow; forcing change", logx.Err(err))
					debounce()
					continue
				}
				log.Warn("file watch error", logx.Err(err))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		wait := nextWait()
		log.Warn("file watcher stopped; restarting", logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
