// Package state implements the StateManager: the single authoritative,
// mutex-guarded in-memory copy of the queue and current-download snapshot,
// the four monotonic version counters, and the pause/cancel/stop-mode
// events the Worker observes.
package state

import (
	"sync"
	"time"

	apperr "reaper/internal/errors"
	"reaper/internal/model"
	"reaper/internal/store"
)

// Manager is the in-memory StateManager backing the whole daemon.
type Manager struct {
	mu sync.Mutex

	queue   []model.Job
	current model.CurrentDownload
	nextID  int

	queueVersion   uint64
	historyVersion uint64
	currentVersion uint64
	scytheVersion  uint64

	paused    bool
	pauseCond *sync.Cond

	cancelRequested bool
	stopMode        model.StopMode

	notify chan struct{}

	store *store.Store
}

// New constructs a Manager backed by st for durable queue/history writes.
func New(st *store.Store) *Manager {
	m := &Manager{
		store:    st,
		notify:   make(chan struct{}, 1),
		stopMode: model.StopCancel,
	}
	m.pauseCond = sync.NewCond(&m.mu)
	return m
}

func (m *Manager) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// --- Queue ---------------------------------------------------------------

// EnqueueJob assigns job.ID from the Manager's per-process counter (0 for
// the first job; ids are never reused within a process, even after earlier
// jobs have left the queue), appends it, and persists the queue. If an identical url+mode is already
// queued or currently running, the existing job (or current snapshot) is
// returned instead of enqueuing a duplicate — generalized from the
// teacher's ExistsActiveByURL guard; it does not change the ID-allocation
// invariant for genuinely new jobs.
func (m *Manager) EnqueueJob(job model.Job) (model.Job, error) {
	if existing, ok := m.findDuplicate(job.URL, job.Mode); ok {
		return existing, nil
	}

	m.mu.Lock()
	job.ID = m.nextID
	m.nextID++
	m.queue = append(m.queue, job)
	snapshot := m.queueSnapshotLocked()
	m.mu.Unlock()

	if err := m.persistQueue(snapshot); err != nil {
		m.mu.Lock()
		m.queue = m.queue[:len(m.queue)-1]
		m.mu.Unlock()
		return model.Job{}, err
	}

	m.mu.Lock()
	m.queueVersion++
	m.mu.Unlock()
	m.wake()
	return job, nil
}

// EnqueueMany appends jobs in order with a single persistence round-trip.
func (m *Manager) EnqueueMany(jobs []model.Job) ([]model.Job, error) {
	m.mu.Lock()
	assigned := make([]model.Job, len(jobs))
	for i, j := range jobs {
		j.ID = m.nextID
		m.nextID++
		assigned[i] = j
	}
	m.queue = append(m.queue, assigned...)
	snapshot := m.queueSnapshotLocked()
	m.mu.Unlock()

	if err := m.persistQueue(snapshot); err != nil {
		m.mu.Lock()
		m.queue = m.queue[:len(m.queue)-len(assigned)]
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.queueVersion++
	m.mu.Unlock()
	m.wake()
	return assigned, nil
}

// ClearQueue empties the queue. A no-op on an already-empty queue does not
// bump queue_version.
func (m *Manager) ClearQueue() error {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return nil
	}
	prev := m.queue
	m.queue = nil
	m.mu.Unlock()

	if err := m.persistQueue(nil); err != nil {
		m.mu.Lock()
		m.queue = append(prev, m.queue...)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.queueVersion++
	m.mu.Unlock()
	return nil
}

// DeleteFromQueue removes the first job matching id, bumping queue_version
// only if something was actually removed.
func (m *Manager) DeleteFromQueue(id int) (bool, error) {
	m.mu.Lock()
	idx := -1
	for i, j := range m.queue {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.mu.Unlock()
		return false, nil
	}
	removed := m.queue[idx]
	m.queue = append(m.queue[:idx:idx], m.queue[idx+1:]...)
	snapshot := m.queueSnapshotLocked()
	m.mu.Unlock()

	if err := m.persistQueue(snapshot); err != nil {
		m.mu.Lock()
		m.queue = insertAt(m.queue, idx, removed)
		m.mu.Unlock()
		return false, err
	}

	m.mu.Lock()
	m.queueVersion++
	m.mu.Unlock()
	return true, nil
}

func insertAt(s []model.Job, idx int, job model.Job) []model.Job {
	out := make([]model.Job, 0, len(s)+1)
	out = append(out, s[:idx]...)
	out = append(out, job)
	out = append(out, s[idx:]...)
	return out
}

// ReorderQueue rebuilds the queue as (known ids, in that order) followed by
// any queued items not mentioned, in their prior relative order. Absent or
// unknown ids are ignored.
func (m *Manager) ReorderQueue(orderedIDs []int) error {
	m.mu.Lock()
	byID := make(map[int]model.Job, len(m.queue))
	for _, j := range m.queue {
		byID[j.ID] = j
	}

	seen := make(map[int]bool, len(orderedIDs))
	reordered := make([]model.Job, 0, len(m.queue))
	for _, id := range orderedIDs {
		if j, ok := byID[id]; ok && !seen[id] {
			reordered = append(reordered, j)
			seen[id] = true
		}
	}
	for _, j := range m.queue {
		if !seen[j.ID] {
			reordered = append(reordered, j)
		}
	}
	prev := m.queue
	m.queue = reordered
	snapshot := m.queueSnapshotLocked()
	m.mu.Unlock()

	if err := m.persistQueue(snapshot); err != nil {
		m.mu.Lock()
		m.queue = prev
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.queueVersion++
	m.mu.Unlock()
	return nil
}

// findDuplicate reports a queued or currently-running job with the same
// url+mode, if any.
func (m *Manager) findDuplicate(url string, mode model.Mode) (model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.queue {
		if j.URL == url && j.Mode == mode {
			return j, true
		}
	}
	if m.current.JobData != nil && m.current.JobData.URL == url && m.current.JobData.Mode == mode {
		return *m.current.JobData, true
	}
	return model.Job{}, false
}

func (m *Manager) queueSnapshotLocked() []model.Job {
	return append([]model.Job(nil), m.queue...)
}

func (m *Manager) persistQueue(jobs []model.Job) error {
	if m.store == nil {
		return nil
	}
	return m.store.PersistQueue(jobs)
}

// setCurrentJob durably records job as active so Recovery can find it after
// a crash; best-effort, matching this package's "non-fatal filesystem/store
// side effect" treatment for bookkeeping that isn't the queue itself.
func (m *Manager) setCurrentJob(job model.Job) {
	if m.store == nil {
		return
	}
	m.store.SetCurrentJob(job)
}

// ClearCurrentJob removes the durable current-job record. Called by the
// Worker once a job's Finalize step has produced a history row.
func (m *Manager) ClearCurrentJob() {
	if m.store == nil {
		return
	}
	m.store.ClearCurrentJob()
}

// PopForWorker blocks up to timeout for a job, observing the pause event
// first: while paused it blocks until Resume, and the timeout does not
// apply to that wait. After popping, it persists the new queue before
// returning the job. Returns ok=false on timeout.
func (m *Manager) PopForWorker(timeout time.Duration) (job model.Job, ok bool) {
	deadline := time.Now().Add(timeout)
	for {
		m.waitWhileNotPaused()

		m.mu.Lock()
		if len(m.queue) > 0 {
			job = m.queue[0]
			m.queue = append([]model.Job(nil), m.queue[1:]...)
			snapshot := m.queueSnapshotLocked()
			m.mu.Unlock()

			m.persistQueue(snapshot)
			m.setCurrentJob(job)

			m.mu.Lock()
			m.queueVersion++
			m.mu.Unlock()
			return job, true
		}
		m.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return model.Job{}, false
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-m.notify:
		case <-time.After(wait):
		}
	}
}

// waitWhileNotPaused blocks the caller while paused is true.
func (m *Manager) waitWhileNotPaused() {
	m.mu.Lock()
	for m.paused {
		m.pauseCond.Wait()
	}
	m.mu.Unlock()
}

// --- Pause / cancel --------------------------------------------------------

// Pause sets the pause event and bumps current_version.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.currentVersion++
	m.mu.Unlock()
}

// Resume clears the pause event and bumps current_version.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.currentVersion++
	m.pauseCond.Broadcast()
	m.mu.Unlock()
}

// RequestStop sets the stop-mode and the cancel event.
func (m *Manager) RequestStop(mode model.StopMode) {
	m.mu.Lock()
	m.stopMode = mode
	m.cancelRequested = true
	m.mu.Unlock()
}

// ClearCancel clears the cancel event and resets stop-mode to CANCEL,
// called by the Worker at the top of each loop iteration.
func (m *Manager) ClearCancel() {
	m.mu.Lock()
	m.cancelRequested = false
	m.stopMode = model.StopCancel
	m.mu.Unlock()
}

// CancelRequested reports the cancel event and current stop-mode.
func (m *Manager) CancelRequested() (bool, model.StopMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelRequested, m.stopMode
}

// --- Current download ------------------------------------------------------

// UpdateCurrent merges non-zero fields from partial into the current
// snapshot and bumps current_version.
func (m *Manager) UpdateCurrent(partial model.CurrentDownload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mergeCurrent(&m.current, partial)
	m.currentVersion++
}

func mergeCurrent(dst *model.CurrentDownload, src model.CurrentDownload) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.JobData != nil {
		dst.JobData = src.JobData
	}
	if src.Progress != 0 {
		dst.Progress = src.Progress
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Thumbnail != "" {
		dst.Thumbnail = src.Thumbnail
	}
	if src.PlaylistTitle != "" {
		dst.PlaylistTitle = src.PlaylistTitle
	}
	if src.TrackTitle != "" {
		dst.TrackTitle = src.TrackTitle
	}
	if src.PlaylistIndex != 0 {
		dst.PlaylistIndex = src.PlaylistIndex
	}
	if src.PlaylistCount != 0 {
		dst.PlaylistCount = src.PlaylistCount
	}
	if src.Speed != "" {
		dst.Speed = src.Speed
	}
	if src.ETA != "" {
		dst.ETA = src.ETA
	}
	if src.FileSize != "" {
		dst.FileSize = src.FileSize
	}
	if src.LogPath != "" {
		dst.LogPath = src.LogPath
	}
	if src.PID != 0 {
		dst.PID = src.PID
	}
}

// ResetCurrent zeroes the current snapshot and bumps current_version.
func (m *Manager) ResetCurrent() {
	m.mu.Lock()
	m.current = model.CurrentDownload{}
	m.currentVersion++
	m.mu.Unlock()
}

// CurrentSnapshot returns a copy of the current-download snapshot.
func (m *Manager) CurrentSnapshot() model.CurrentDownload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// --- History ---------------------------------------------------------------

// AddToHistory persists entry and bumps history_version.
func (m *Manager) AddToHistory(entry model.HistoryEntry) (int, error) {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	id, err := m.store.InsertHistory(entry)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.historyVersion++
	m.mu.Unlock()
	return id, nil
}

// UpdateHistoryItem applies a partial field update and bumps history_version.
func (m *Manager) UpdateHistoryItem(logID int, fields map[string]any) error {
	if err := m.store.UpdateHistory(logID, fields); err != nil {
		return err
	}
	m.mu.Lock()
	m.historyVersion++
	m.mu.Unlock()
	return nil
}

// GetHistoryItem fetches one history row.
func (m *Manager) GetHistoryItem(logID int) (*model.HistoryEntry, error) {
	return m.store.GetHistory(logID)
}

// HistorySummary returns every history row with log_path cleared, the
// lighter view for callers that need an external read.
func (m *Manager) HistorySummary() ([]model.HistoryEntry, error) {
	entries, err := m.store.ListHistory()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].LogPath = ""
	}
	return entries, nil
}

// ClearHistory removes every history row and returns the log_paths that
// existed so the Worker can remove the corresponding files.
func (m *Manager) ClearHistory() ([]string, error) {
	paths, err := m.store.ClearHistory()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.historyVersion++
	m.mu.Unlock()
	return paths, nil
}

// DeleteFromHistory removes one history row and returns its log_path.
func (m *Manager) DeleteFromHistory(logID int) (string, error) {
	path, err := m.store.DeleteHistory(logID)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.historyVersion++
	m.mu.Unlock()
	return path, nil
}

// AddNotification inserts a history row with status=INFO, no job_data, no
// files; used by the Scheduler.
func (m *Manager) AddNotification(text string) error {
	_, err := m.AddToHistory(model.HistoryEntry{
		Title:  text,
		Status: model.StatusInfo,
	})
	return err
}

// --- Scythes -----------------------------------------------------------------

// BumpScytheVersion is called by Scythe CRUD operations.
func (m *Manager) BumpScytheVersion() {
	m.mu.Lock()
	m.scytheVersion++
	m.mu.Unlock()
}

// --- Startup -----------------------------------------------------------------

// LoadFromStore populates the in-memory queue from the Store at startup.
// Persisted rows may arrive without ids; the loader
// assigns fresh ones.
func (m *Manager) LoadFromStore() error {
	jobs, err := m.store.LoadQueue()
	if err != nil {
		return apperr.Wrap("state.LoadFromStore", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range jobs {
		jobs[i].ID = m.nextID
		m.nextID++
	}
	m.queue = jobs
	m.queueVersion++
	return nil
}

// PrependAbandoned inserts job (already marked status=ABANDONED by
// Recovery) at the head of the queue, preserving its original id, and
// persists the queue.
func (m *Manager) PrependAbandoned(job model.Job) error {
	m.mu.Lock()
	if job.ID >= m.nextID {
		m.nextID = job.ID + 1
	}
	m.queue = append([]model.Job{job}, m.queue...)
	snapshot := m.queueSnapshotLocked()
	m.mu.Unlock()

	if err := m.persistQueue(snapshot); err != nil {
		m.mu.Lock()
		if len(m.queue) > 0 {
			m.queue = m.queue[1:]
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.queueVersion++
	m.mu.Unlock()
	m.wake()
	return nil
}

// Versions returns the four monotonic counters under lock.
func (m *Manager) Versions() (queue, history, current, scythe uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueVersion, m.historyVersion, m.currentVersion, m.scytheVersion
}

// QueueSnapshot returns a copy of the in-memory queue.
func (m *Manager) QueueSnapshot() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueSnapshotLocked()
}
