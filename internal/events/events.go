// Package events centralizes the change-event names the Broadcaster and
// transport adapters use, so they never become magic strings scattered
// through the codebase.
package events

// Section names sampled by the Change Broadcaster. Each corresponds to one
// of the four monotonic version counters the StateManager maintains.
const (
	SectionQueue   = "queue"
	SectionCurrent = "current"
	SectionHistory = "history"
	SectionScythe  = "scythe"
)

// Snapshot event delivered to transport adapters whenever any section's
// version counter advances.
const (
	StateChanged = "state:changed"
)

// Notification categories used to tag desktop alerts.
const (
	NotifyScytheReaped = "scythe:reaped"
	NotifyWorkerStuck  = "monitor:worker-stuck"
	NotifySchedulerGap = "monitor:scheduler-gap"
)
