// Package monitor implements a liveness watchdog that periodically checks
// that the Worker and Scheduler goroutines are alive and logs a critical
// message (and fires a desktop alert) if either died.
package monitor

import (
	"context"
	"time"

	"reaper/internal/logger"
)

// CheckInterval is how often the Monitor polls liveness.
const CheckInterval = 5 * time.Second

// Notifier is satisfied by *notify.Notifier.
type Notifier interface {
	WorkerDied()
	SchedulerDied()
}

// Monitor watches two goroutines via "is it done" channels and reports if
// either exits before ctx is cancelled.
type Monitor struct {
	workerDone    <-chan struct{}
	schedulerDone <-chan struct{}
	notifier      Notifier

	// checkIntervalOverride lets tests poll faster than CheckInterval.
	checkIntervalOverride time.Duration
}

// New constructs a Monitor. workerDone/schedulerDone must close exactly
// once, when the respective goroutine returns.
func New(workerDone, schedulerDone <-chan struct{}, notifier Notifier) *Monitor {
	return &Monitor{workerDone: workerDone, schedulerDone: schedulerDone, notifier: notifier}
}

// Run polls both liveness channels until ctx is cancelled, logging a
// critical message (and firing a desktop alert) the first time either
// goroutine is found dead.
func (m *Monitor) Run(ctx context.Context) {
	interval := CheckInterval
	if m.checkIntervalOverride > 0 {
		interval = m.checkIntervalOverride
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	workerAlive, schedulerAlive := true, true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if workerAlive {
				select {
				case <-m.workerDone:
					workerAlive = false
					logger.Log.Error().Msg("monitor: worker goroutine is no longer running")
					if m.notifier != nil {
						m.notifier.WorkerDied()
					}
				default:
				}
			}
			if schedulerAlive {
				select {
				case <-m.schedulerDone:
					schedulerAlive = false
					logger.Log.Error().Msg("monitor: scheduler goroutine is no longer running")
					if m.notifier != nil {
						m.notifier.SchedulerDied()
					}
				default:
				}
			}
		}
	}
}
