// Package notify is the post-run notification hook.
//
// It subscribes to run events on the event bus and delivers a short summary
// of each finished run to the configured senders (the log, and optionally a
// Telegram chat). Delivery is asynchronous: a bounded queue feeds one worker
// that is rate limited, so a slow or failing sender never blocks a run.
package notify
