// Package recovery implements the startup Recovery pass: it runs once,
// before the Worker loop begins, to clean up after a process that was
// killed mid-job.
package recovery

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"reaper/internal/logger"
	"reaper/internal/model"
	"reaper/internal/state"
	"reaper/internal/store"
)

// Config carries the directories Recovery inspects.
type Config struct {
	TempDir string
	LogsDir string
}

// Run performs the three Recovery steps in order. The StateManager's queue
// must already be populated via LoadFromStore before calling Run.
func Run(cfg Config, st *store.Store, sm *state.Manager) {
	removeOrphanedScratchDirs(cfg.TempDir, sm)
	abandonPriorCurrentJob(st, sm)
	removeActiveLogLeftovers(cfg.LogsDir)
}

// removeOrphanedScratchDirs deletes scratch directories under tempDir for
// job ids no longer present in the queue snapshot.
func removeOrphanedScratchDirs(tempDir string, sm *state.Manager) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Log.Warn().Err(err).Str("temp_dir", tempDir).Msg("recovery: could not scan temp_dir")
		}
		return
	}

	queued := make(map[int]bool)
	for _, job := range sm.QueueSnapshot() {
		queued[job.ID] = true
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job_") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "job_"))
		if err == nil && queued[id] {
			continue
		}
		path := filepath.Join(tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Log.Warn().Err(err).Str("path", path).Msg("recovery: could not remove orphaned scratch directory")
		} else {
			logger.Log.Info().Str("path", path).Msg("recovery: removed orphaned scratch directory")
		}
	}
}

// abandonPriorCurrentJob reclaims the job the Worker was processing when
// the prior run died, marking it ABANDONED and prepending it to the queue.
func abandonPriorCurrentJob(st *store.Store, sm *state.Manager) {
	job, err := st.LoadCurrentJob()
	if err != nil {
		logger.Log.Warn().Err(err).Msg("recovery: could not load prior current job")
		return
	}
	if job == nil {
		return
	}

	job.Status = model.StatusAbandoned
	if err := sm.PrependAbandoned(*job); err != nil {
		logger.Log.Error().Err(err).Int("job_id", job.ID).Msg("recovery: could not prepend abandoned job to queue")
		return
	}
	if err := st.ClearCurrentJob(); err != nil {
		logger.Log.Warn().Err(err).Msg("recovery: could not clear stale current-job record")
	}
	logger.Log.Warn().Int("job_id", job.ID).Str("url", job.URL).Msg("recovery: marked a pre-crash job abandoned")
}

// removeActiveLogLeftovers deletes per-job log files left in the
// "active" state by a process that died mid-job.
func removeActiveLogLeftovers(logsDir string) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Log.Warn().Err(err).Str("logs_dir", logsDir).Msg("recovery: could not scan logs directory")
		}
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "job_active_") {
			continue
		}
		path := filepath.Join(logsDir, name)
		if err := os.Remove(path); err != nil {
			logger.Log.Warn().Err(err).Str("path", path).Msg("recovery: could not remove leftover active log")
		}
	}
}
