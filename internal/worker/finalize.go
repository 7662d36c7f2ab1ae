package worker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/rs/zerolog"

	"reaper/internal/logger"
	"reaper/internal/model"
	"reaper/internal/sanitize"
	"reaper/internal/tags"
)

// scratchRemoveRetries is how many times Finalize retries removing the
// scratch directory when a file is still held open by another process
// (observed on Windows after ffmpeg post-processing).
const scratchRemoveRetries = 5

// finalize promotes the job's output files, preserves the archive,
// classifies the terminal status, and always removes the scratch directory.
func (w *Worker) finalize(job model.Job, status model.HistoryStatus, scratch, resolvedFolder, logPath, traceID string) model.HistoryEntry {
	log := logger.Log.With().Str("trace_id", traceID).Int("job_id", job.ID).Logger()

	finalFolder := "Misc Downloads"
	if resolvedFolder != "" {
		finalFolder = sanitize.Sanitize(resolvedFolder)
	}
	dest := filepath.Join(w.cfg.DownloadDir, finalFolder)

	var filenames []string
	if status == model.StatusCompleted || status == model.StatusPartial || status == model.StatusStopped {
		filenames = promoteFiles(job, scratch, dest, log)
	}

	preserveArchive(scratch, dest, log)

	if status == model.StatusFailed && len(filenames) > 0 {
		status = model.StatusPartial
	}

	var errorSummary string
	switch status {
	case model.StatusFailed, model.StatusError, model.StatusAbandoned, model.StatusPartial:
		errorSummary = summarizeLog(logPath)
	}

	removeScratch(scratch, log)

	title := job.Folder
	if title == "" {
		title = resolvedFolder
	}
	if job.Mode == model.ModeMusic && len(filenames) > 0 {
		if promoted, err := securejoin.SecureJoin(dest, filenames[0]); err == nil {
			title = tags.Backfill(title, promoted)
		}
	}

	return model.HistoryEntry{
		URL:          job.URL,
		Title:        title,
		Folder:       finalFolder,
		Filenames:    filenames,
		JobData:      job,
		Status:       status,
		ErrorSummary: errorSummary,
	}
}

// expectedExtension returns the extension promoteFiles matches, or
// matchAll=true meaning "promote everything except archive.temp.txt"
// (custom mode matches every file except the archive).
func expectedExtension(job model.Job) (ext string, matchAll bool) {
	switch job.Mode {
	case model.ModeMusic:
		f := job.Music.Format
		if f == "" {
			f = "mp3"
		}
		return "." + f, false
	case model.ModeVideo:
		f := job.Video.Format
		if f == "" {
			f = "mp4"
		}
		return "." + f, false
	case model.ModeClip:
		if job.Clip.Format == "video" {
			return ".mp4", false
		}
		return ".mp3", false
	default:
		return "", true
	}
}

// promoteFiles moves matching regular files from scratch to dest (created
// lazily), sanitizing destination filenames and de-duplicating collisions
// with a " (n)" suffix, and returns the promoted basenames.
func promoteFiles(job model.Job, scratch, dest string, log zerolog.Logger) []string {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		log.Warn().Err(err).Msg("finalize: could not list scratch directory")
		return nil
	}

	ext, matchAll := expectedExtension(job)
	var destCreated bool
	var filenames []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "archive.temp.txt" {
			continue
		}
		if !matchAll && !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}

		if !destCreated {
			if err := os.MkdirAll(dest, 0755); err != nil {
				log.Error().Err(err).Str("dest", dest).Msg("finalize: could not create destination folder")
				return filenames
			}
			destCreated = true
		}

		final, err := movePromoted(scratch, dest, name)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("finalize: could not promote file")
			continue
		}
		filenames = append(filenames, final)
	}

	return filenames
}

func movePromoted(scratch, dest, name string) (string, error) {
	src, err := securejoin.SecureJoin(scratch, name)
	if err != nil {
		return "", err
	}

	target := sanitize.Sanitize(name)
	final := target
	for i := 1; ; i++ {
		candidate, err := securejoin.SecureJoin(dest, final)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			if err := os.Rename(src, candidate); err != nil {
				return "", err
			}
			return final, nil
		}
		ext := filepath.Ext(target)
		stem := strings.TrimSuffix(target, ext)
		final = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
}

// preserveArchive moves scratch/archive.temp.txt to dest/archive.txt
// regardless of job outcome, so progress is preserved across cancels.
func preserveArchive(scratch, dest string, log zerolog.Logger) {
	src := filepath.Join(scratch, "archive.temp.txt")
	if _, err := os.Stat(src); err != nil {
		return
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		log.Error().Err(err).Msg("finalize: could not create destination folder for archive")
		return
	}
	if err := os.Rename(src, filepath.Join(dest, "archive.txt")); err != nil {
		log.Error().Err(err).Msg("finalize: could not preserve archive file")
	}
}

// summarizeLog scans the job log for ERROR:/WARNING: lines, keeping the
// last 10.
func summarizeLog(logPath string) string {
	f, err := os.Open(logPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR:") || strings.Contains(line, "WARNING:") {
			matches = append(matches, line)
			if len(matches) > 10 {
				matches = matches[1:]
			}
		}
	}
	return strings.Join(matches, "\n")
}

// removeScratch deletes scratch, retrying on transient "file in use"
// failures.
func removeScratch(scratch string, log zerolog.Logger) {
	var err error
	for i := 0; i < scratchRemoveRetries; i++ {
		if err = os.RemoveAll(scratch); err == nil {
			return
		}
		time.Sleep(time.Duration(100*(i+1)) * time.Millisecond)
	}
	log.Warn().Err(err).Str("scratch", scratch).Msg("finalize: could not remove scratch directory after retries")
}
