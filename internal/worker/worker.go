// Package worker implements the Worker (Orchestrator): the single-consumer
// loop that dequeues a Job, prepares a scratch directory, spawns the
// extractor, forwards parsed progress into the StateManager, and finalizes
// the run into a history row.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	apperr "reaper/internal/errors"
	"reaper/internal/extractor"
	"reaper/internal/logger"
	"reaper/internal/model"
	"reaper/internal/sanitize"
	"reaper/internal/state"
)

// popTimeout is how long PopForWorker blocks before the loop re-checks
// shutdown.
const popTimeout = time.Second

// cancelPollInterval is how often the Worker checks the cancel event while
// the extractor runs (roughly 10 Hz).
const cancelPollInterval = 100 * time.Millisecond

// terminationGrace is how long the Worker waits after signaling the
// extractor before escalating to a hard kill.
const terminationGrace = 10 * time.Second

// jobTimeout is the hard ceiling on a single job's runtime.
const jobTimeout = time.Hour

// Config carries the paths and binaries the Worker needs per job.
type Config struct {
	DownloadDir string
	TempDir     string
	LogsDir     string
	CookieFile  string
	YtDlpPath   string
	FFmpegDir   string
}

// Worker runs reaper's single-consumer download orchestrator loop.
type Worker struct {
	cfg   Config
	state *state.Manager
	done  chan struct{}
}

// New constructs a Worker. Call Run in its own goroutine.
func New(cfg Config, sm *state.Manager) *Worker {
	return &Worker{cfg: cfg, state: sm, done: make(chan struct{})}
}

// Stop signals Run to exit after its current loop iteration.
func (w *Worker) Stop() { close(w.done) }

// Run is the Worker's single logical loop. It never returns
// until Stop is called.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		job, ok := w.state.PopForWorker(popTimeout)
		if !ok {
			continue
		}

		w.state.ClearCancel()

		if job.Status == model.StatusAbandoned {
			w.recordAbandoned(job)
			continue
		}

		w.runJob(ctx, job)
	}
}

func (w *Worker) recordAbandoned(job model.Job) {
	w.state.ClearCurrentJob()
	w.state.AddToHistory(model.HistoryEntry{
		URL:          job.URL,
		Folder:       job.Folder,
		JobData:      job,
		Status:       model.StatusAbandoned,
		ErrorSummary: "job was active when the process was previously interrupted",
		Timestamp:    time.Now().Unix(),
	})
}

func (w *Worker) runJob(ctx context.Context, job model.Job) {
	traceID := uuid.NewString()
	log := logger.Log.With().Str("trace_id", traceID).Int("job_id", job.ID).Logger()

	titleOrURL := job.Folder
	if titleOrURL == "" {
		titleOrURL = job.URL
	}
	w.state.UpdateCurrent(model.CurrentDownload{URL: job.URL, Status: "Preparing…", Title: titleOrURL, JobData: &job})

	scratch := filepath.Join(w.cfg.TempDir, fmt.Sprintf("job_%d", job.ID))
	if err := os.MkdirAll(scratch, 0755); err != nil {
		log.Error().Err(err).Msg("failed to create scratch directory")
		w.finishAsError(job, scratch, "", err)
		return
	}

	if job.Archive {
		w.seedArchive(job, scratch)
	}

	activeLogPath := filepath.Join(w.cfg.LogsDir, fmt.Sprintf("job_active_%d.log", job.ID))
	logFile, err := os.Create(activeLogPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to create job log file")
		w.finishAsError(job, scratch, "", err)
		return
	}
	defer logFile.Close()

	argv := buildArgv(job, scratch, w.cfg)

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	resolvedFolder := job.Folder
	var resolvedSet bool
	var lastFlush time.Time

	onLine := func(line string) {
		fmt.Fprintln(logFile, line)
	}

	onProgress := func(p extractor.Progress) {
		// Throttle "downloading" ticks to a 50ms flush window (teacher's UI
		// thrash guard); terminal-ish statuses bump current_version
		// immediately since the Broadcaster only samples every 500ms anyway.
		if p.Status == "downloading" {
			now := time.Now()
			if now.Sub(lastFlush) < 50*time.Millisecond {
				return
			}
			lastFlush = now
		}

		update := model.CurrentDownload{Status: p.Status, Thumbnail: p.Thumbnail, TrackTitle: p.TrackTitle, Speed: p.Speed, ETA: p.ETA, FileSize: p.FileSize}
		if p.PercentSet {
			update.Progress = p.Percent
		}
		if p.PlaylistIndex != 0 {
			update.PlaylistIndex = p.PlaylistIndex
		}
		if p.PlaylistCount != 0 {
			update.PlaylistCount = p.PlaylistCount
		}
		if p.PlaylistTitle != "" {
			update.PlaylistTitle = p.PlaylistTitle
		}
		if !resolvedSet && p.ResolvedFolder != "" {
			resolvedFolder = sanitize.Sanitize(p.ResolvedFolder)
			resolvedSet = true
		}
		w.state.UpdateCurrent(update)
	}

	proc, waitCh := extractor.Run(jobCtx, argv, onLine, onProgress)
	w.state.UpdateCurrent(model.CurrentDownload{PID: proc.PID()})

	cancelled, stopMode, runErr := w.superviseCancel(jobCtx, proc, waitCh)

	status := terminalStatus(runErr, cancelled, stopMode, jobCtx.Err() != nil)

	entry := w.finalize(job, status, scratch, resolvedFolder, activeLogPath, traceID)
	entry.Timestamp = time.Now().Unix()
	logID, err := w.state.AddToHistory(entry)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist history row")
	} else {
		finalLogPath := filepath.Join(w.cfg.LogsDir, fmt.Sprintf("job_%d.log", logID))
		logFile.Close()
		os.Rename(activeLogPath, finalLogPath)
		w.state.UpdateHistoryItem(logID, map[string]any{"log_path": filepath.Base(finalLogPath)})
	}

	w.state.ClearCurrentJob()
	w.state.ResetCurrent()
}

// superviseCancel watches the cancel event while the extractor runs,
// signaling it on request, and returns as soon as the extractor exits for
// any reason — a normal exit must not be held open until ctx's deadline.
func (w *Worker) superviseCancel(ctx context.Context, proc *extractor.Process, waitCh <-chan error) (cancelled bool, mode model.StopMode, runErr error) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case runErr = <-waitCh:
			return cancelled, mode, runErr
		case <-ctx.Done():
			// ctx's own cancellation already signals the process via
			// exec.CommandContext; wait for it to actually exit so the
			// resolved-folder handoff in onProgress is no longer in flight.
			select {
			case runErr = <-waitCh:
			case <-time.After(terminationGrace):
				runErr = ctx.Err()
			}
			return cancelled, mode, runErr
		case <-ticker.C:
			if requested, stopMode := w.state.CancelRequested(); requested {
				proc.Cancel(terminationGrace)
				cancelled, mode = true, stopMode
				select {
				case runErr = <-waitCh:
				case <-time.After(terminationGrace):
					runErr = ctx.Err()
				}
				return cancelled, mode, runErr
			}
		}
	}
}

func terminalStatus(runErr error, cancelled bool, stopMode model.StopMode, timedOut bool) model.HistoryStatus {
	switch {
	case cancelled && stopMode == model.StopSave:
		return model.StatusStopped
	case cancelled:
		return model.StatusCancelled
	case timedOut:
		return model.StatusFailed
	case runErr == nil:
		return model.StatusCompleted
	case isStartFailure(runErr):
		return model.StatusError
	default:
		return model.StatusFailed
	}
}

func isStartFailure(err error) bool {
	return errors.Is(err, apperr.ErrExtractorStartFailed)
}

func (w *Worker) finishAsError(job model.Job, scratch, logPath string, cause error) {
	os.RemoveAll(scratch)
	w.state.AddToHistory(model.HistoryEntry{
		URL: job.URL, Folder: job.Folder, JobData: job,
		Status:       model.StatusError,
		ErrorSummary: cause.Error(),
		Timestamp:    time.Now().Unix(),
	})
	w.state.ClearCurrentJob()
	w.state.ResetCurrent()
}

func (w *Worker) seedArchive(job model.Job, scratch string) {
	folder := sanitize.Sanitize(job.Folder)
	if folder == "" {
		return
	}
	src := filepath.Join(w.cfg.DownloadDir, folder, "archive.txt")
	data, err := os.ReadFile(src)
	if err != nil {
		return
	}
	os.WriteFile(filepath.Join(scratch, "archive.temp.txt"), data, 0644)
}
