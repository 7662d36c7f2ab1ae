// Package notify wraps git.sr.ht/~jackmordaunt/go-toast/v2 for the desktop
// alerts the Monitor and Scheduler fire. Config-gated: a headless install
// simply never calls Push.
package notify

import (
	toast "git.sr.ht/~jackmordaunt/go-toast/v2"

	"reaper/internal/events"
	"reaper/internal/logger"
)

// AppID identifies reaper to the OS notification center.
const AppID = "reaper"

// Notifier fires best-effort desktop toasts, gated by enabled.
type Notifier struct {
	enabled func() bool
}

// New constructs a Notifier. enabled is re-evaluated on every call so a
// live config reload takes effect immediately.
func New(enabled func() bool) *Notifier {
	return &Notifier{enabled: enabled}
}

// push fires a toast with title/body, tagged with category for the log line
// (one of the events.Notify* constants). Errors are logged, never
// propagated; a missing toast backend on a headless server must not affect
// the daemon.
func (n *Notifier) push(category, title, body string) {
	if n == nil || n.enabled == nil || !n.enabled() {
		return
	}

	notification := toast.Notification{
		AppID: AppID,
		Title: title,
		Body:  body,
	}
	if err := notification.Push(); err != nil {
		logger.Log.Warn().Err(err).Str("category", category).Msg("notify: failed to push desktop notification")
	}
}

// Push fires an ad-hoc toast with no category, for callers outside the
// Monitor/Scheduler alert set.
func (n *Notifier) Push(title, body string) {
	n.push("", title, body)
}

// WorkerDied fires the Monitor's "worker goroutine died" alert.
func (n *Notifier) WorkerDied() {
	n.push(events.NotifyWorkerStuck, "reaper: worker stopped", "The download worker goroutine is no longer running.")
}

// SchedulerDied fires the Monitor's "scheduler goroutine died" alert.
func (n *Notifier) SchedulerDied() {
	n.push(events.NotifySchedulerGap, "reaper: scheduler stopped", "The Scythe scheduler goroutine is no longer running.")
}

// ScytheReaped fires alongside a Scheduler AddNotification "reaped" row.
func (n *Notifier) ScytheReaped(name string) {
	n.push(events.NotifyScytheReaped, "Scythe reaped", "'"+name+"' was automatically reaped.")
}
