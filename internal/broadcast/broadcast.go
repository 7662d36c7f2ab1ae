// Package broadcast implements the Change Broadcaster: it samples the four
// StateManager version counters on an interval and, when any changed,
// hands a full state snapshot to an adapter-agnostic Emit callback. It does
// not interpret deltas, only detects that something changed.
package broadcast

import (
	"context"
	"time"

	"reaper/internal/events"
	"reaper/internal/model"
	"reaper/internal/state"
)

// Snapshot is the full state handed to Emit whenever a counter changes.
type Snapshot struct {
	Queue   []model.Job
	Current model.CurrentDownload
	History []model.HistoryEntry
	Scythes []model.Scythe

	QueueVersion   uint64
	HistoryVersion uint64
	CurrentVersion uint64
	ScytheVersion  uint64

	// Event is always events.StateChanged; Sections names which of
	// queue/current/history/scythe actually moved this sample.
	Event    string
	Sections []string
}

// Emitter is implemented by the transport adapter.
type Emitter interface {
	Emit(Snapshot)
}

// ScytheLister is satisfied by *scythe.Manager.
type ScytheLister interface {
	List() ([]model.Scythe, error)
}

// Interval is the Broadcaster's sampling period.
const Interval = 500 * time.Millisecond

// Broadcaster runs the sampling loop.
type Broadcaster struct {
	state   *state.Manager
	scythes ScytheLister
	emit    Emitter

	lastQueue, lastHistory, lastCurrent, lastScythe uint64
}

// New constructs a Broadcaster. emit is called from the Broadcaster's own
// goroutine and must not block for long.
func New(sm *state.Manager, scythes ScytheLister, emit Emitter) *Broadcaster {
	return &Broadcaster{state: sm, scythes: scythes, emit: emit}
}

// Run samples version counters every Interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sample()
		}
	}
}

func (b *Broadcaster) sample() {
	queue, history, current, scythe := b.state.Versions()
	if queue == b.lastQueue && history == b.lastHistory && current == b.lastCurrent && scythe == b.lastScythe {
		return
	}

	var sections []string
	if queue != b.lastQueue {
		sections = append(sections, events.SectionQueue)
	}
	if current != b.lastCurrent {
		sections = append(sections, events.SectionCurrent)
	}
	if history != b.lastHistory {
		sections = append(sections, events.SectionHistory)
	}
	if scythe != b.lastScythe {
		sections = append(sections, events.SectionScythe)
	}
	b.lastQueue, b.lastHistory, b.lastCurrent, b.lastScythe = queue, history, current, scythe

	snap := Snapshot{
		Queue:          b.state.QueueSnapshot(),
		Current:        b.state.CurrentSnapshot(),
		QueueVersion:   queue,
		HistoryVersion: history,
		CurrentVersion: current,
		ScytheVersion:  scythe,
		Event:          events.StateChanged,
		Sections:       sections,
	}
	if entries, err := b.state.HistorySummary(); err == nil {
		snap.History = entries
	}
	if b.scythes != nil {
		if list, err := b.scythes.List(); err == nil {
			snap.Scythes = list
		}
	}

	b.emit.Emit(snap)
}
