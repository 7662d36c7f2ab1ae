// Package model defines the core records the rest of reaper operates on:
// Job, HistoryEntry, Scythe, and CurrentDownload.
package model

import (
	"github.com/go-playground/validator/v10"

	apperr "reaper/internal/errors"
)

// Mode is the extraction mode a Job runs under.
type Mode string

const (
	ModeMusic  Mode = "music"
	ModeVideo  Mode = "video"
	ModeClip   Mode = "clip"
	ModeCustom Mode = "custom"
)

// HistoryStatus is the terminal (or INFO) outcome recorded for a Job.
type HistoryStatus string

const (
	StatusCompleted HistoryStatus = "COMPLETED"
	StatusPartial   HistoryStatus = "PARTIAL"
	StatusFailed    HistoryStatus = "FAILED"
	StatusCancelled HistoryStatus = "CANCELLED"
	StatusStopped   HistoryStatus = "STOPPED"
	StatusAbandoned HistoryStatus = "ABANDONED"
	StatusError     HistoryStatus = "ERROR"
	StatusInfo      HistoryStatus = "INFO"
)

// StopMode distinguishes RequestStop(CANCEL) from RequestStop(SAVE).
type StopMode string

const (
	StopCancel StopMode = "CANCEL"
	StopSave   StopMode = "SAVE"
)

// MusicOptions holds music-mode specific fields.
type MusicOptions struct {
	Format  string `json:"format" validate:"omitempty,oneof=mp3 m4a opus flac wav"`
	Quality string `json:"quality"`
}

// VideoOptions holds video-mode specific fields.
type VideoOptions struct {
	Quality    string `json:"quality"`
	Format     string `json:"format" validate:"omitempty,oneof=mp4 mkv webm"`
	EmbedSubs  bool   `json:"embed_subs"`
	Codec      string `json:"codec" validate:"omitempty,oneof=compatibility quality"`
}

// ClipOptions holds clip-mode specific fields.
type ClipOptions struct {
	Format string `json:"format" validate:"omitempty,oneof=audio video"`
}

// CustomOptions holds custom-mode specific fields. The core treats
// CustomArgs as opaque; a future API layer is responsible for gating
// access to this mode.
type CustomOptions struct {
	CustomArgs string `json:"custom_args"`
}

// Job is one enqueued unit of work.
type Job struct {
	ID             int    `json:"id"`
	URL            string `json:"url" validate:"required,url"`
	Mode           Mode   `json:"mode" validate:"required,oneof=music video clip custom"`
	Folder         string `json:"folder"`
	ResolvedFolder string `json:"resolved_folder"`
	Archive        bool   `json:"archive"`
	PlaylistStart  *int   `json:"playlist_start,omitempty" validate:"omitempty,min=1"`
	PlaylistEnd    *int   `json:"playlist_end,omitempty" validate:"omitempty,min=1"`
	Proxy          string `json:"proxy,omitempty"`
	RateLimit      string `json:"rate_limit,omitempty"`

	Music  MusicOptions  `json:"music,omitempty"`
	Video  VideoOptions  `json:"video,omitempty"`
	Clip   ClipOptions   `json:"clip,omitempty"`
	Custom CustomOptions `json:"custom,omitempty"`

	// Status is normally empty; Recovery sets it to ABANDONED on a job it
	// places back at the head of the queue after a crash.
	Status HistoryStatus `json:"status,omitempty"`
}

var validate = validator.New()

// Validate checks a Job's required fields and value constraints,
// returning errors.ErrValidation on failure. The StateManager does not call
// it: EnqueueJob and EnqueueMany accept jobs as given.
func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return apperr.WrapWithMessage("Job.Validate", apperr.ErrValidation, err.Error())
	}
	if j.PlaylistStart != nil && j.PlaylistEnd != nil && *j.PlaylistStart > *j.PlaylistEnd {
		return apperr.NewWithMessage("Job.Validate", apperr.ErrValidation, "playlist_start must be <= playlist_end")
	}
	return nil
}

// HistoryEntry is the outcome record of one finished (or abandoned) Job.
type HistoryEntry struct {
	LogID        int           `json:"log_id"`
	URL          string        `json:"url"`
	Title        string        `json:"title"`
	Folder       string        `json:"folder"`
	Filenames    []string      `json:"filenames"`
	JobData      Job           `json:"job_data"`
	Status       HistoryStatus `json:"status"`
	LogPath      string        `json:"log_path"`
	ErrorSummary string        `json:"error_summary,omitempty"`
	Timestamp    int64         `json:"timestamp"`
}

// ScytheSchedule is a Scythe's optional recurrence rule.
type ScytheSchedule struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval" validate:"omitempty,oneof=daily weekly"`
	Time     string `json:"time" validate:"omitempty,datetime=15:04"`
	Weekdays []int  `json:"weekdays,omitempty" validate:"omitempty,dive,min=0,max=6"`
}

// Scythe is a saved job template, optionally scheduled.
type Scythe struct {
	ID       int             `json:"id"`
	Name     string          `json:"name" validate:"required"`
	JobData  Job             `json:"job_data"`
	Schedule *ScytheSchedule `json:"schedule,omitempty"`
}

// Validate checks a Scythe's schedule shape. The "at most one Scythe per
// distinct job_data.url" invariant is enforced by scythe.Manager, which
// checks every stored row before Add/Update; the Store does not check it.
func (s *Scythe) Validate() error {
	if err := validate.Struct(s); err != nil {
		return apperr.WrapWithMessage("Scythe.Validate", apperr.ErrValidation, err.Error())
	}
	if s.Schedule != nil && s.Schedule.Enabled {
		if s.Schedule.Interval == "" || s.Schedule.Time == "" {
			return apperr.NewWithMessage("Scythe.Validate", apperr.ErrValidation, "enabled schedule requires interval and time")
		}
		if s.Schedule.Interval == "weekly" && len(s.Schedule.Weekdays) == 0 {
			return apperr.NewWithMessage("Scythe.Validate", apperr.ErrValidation, "weekly schedule requires weekdays")
		}
	}
	return nil
}

// CurrentDownload is the transient snapshot of the running job.
// Zero-valued when idle.
type CurrentDownload struct {
	URL            string  `json:"url,omitempty"`
	JobData        *Job    `json:"job_data,omitempty"`
	Progress       float64 `json:"progress"`
	Status         string  `json:"status,omitempty"`
	Title          string  `json:"title,omitempty"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
	PlaylistTitle  string  `json:"playlist_title,omitempty"`
	TrackTitle     string  `json:"track_title,omitempty"`
	PlaylistIndex  int     `json:"playlist_index,omitempty"`
	PlaylistCount  int     `json:"playlist_count,omitempty"`
	Speed          string  `json:"speed,omitempty"`
	ETA            string  `json:"eta,omitempty"`
	FileSize       string  `json:"file_size,omitempty"`
	LogPath        string  `json:"log_path,omitempty"`
	PID            int     `json:"pid,omitempty"`
}

// IsZero reports whether the snapshot represents an idle Worker.
func (c CurrentDownload) IsZero() bool {
	return c == CurrentDownload{}
}
