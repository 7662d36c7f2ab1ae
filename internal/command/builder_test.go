package command_test

import (
	"strings"
	"testing"

	"reaper/internal/command"
	"reaper/internal/model"
)

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestBuild_IncludesAlwaysOnFlags(t *testing.T) {
	job := model.Job{URL: "https://example.com/v", Mode: model.ModeMusic}
	args := command.Build(job, "/tmp/scratch", "", "yt-dlp", "/usr/bin")

	if args[0] != "yt-dlp" {
		t.Errorf("argv[0] = %q, want yt-dlp", args[0])
	}
	if !contains(args, "--ffmpeg-location") {
		t.Error("missing --ffmpeg-location")
	}
	if args[len(args)-1] != job.URL {
		t.Errorf("last argv element = %q, want URL", args[len(args)-1])
	}
}

func TestBuild_MusicMode(t *testing.T) {
	job := model.Job{
		URL: "https://example.com/v", Mode: model.ModeMusic,
		Music: model.MusicOptions{Format: "flac", Quality: "0"},
	}
	args := command.Build(job, "/tmp/scratch", "", "yt-dlp", "/usr/bin")

	if !contains(args, "-x") {
		t.Error("music mode should pass -x")
	}
	if !contains(args, "flac") {
		t.Error("music mode should pass the requested audio format")
	}
}

func TestBuild_VideoQualityFilter(t *testing.T) {
	job := model.Job{
		URL: "https://example.com/v", Mode: model.ModeVideo,
		Video: model.VideoOptions{Quality: "720p", Format: "mp4"},
	}
	args := command.Build(job, "/tmp/scratch", "", "yt-dlp", "/usr/bin")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "height<=720") {
		t.Errorf("expected height<=720 filter in argv: %v", args)
	}
}

func TestBuild_ArchiveFlag(t *testing.T) {
	job := model.Job{URL: "https://example.com/v", Mode: model.ModeMusic, Archive: true}
	args := command.Build(job, "/tmp/scratch", "", "yt-dlp", "/usr/bin")

	if !contains(args, "--download-archive") {
		t.Error("archive=true should add --download-archive")
	}
}

func TestBuild_CustomModeShellSplits(t *testing.T) {
	job := model.Job{
		URL: "https://example.com/v", Mode: model.ModeCustom,
		Custom: model.CustomOptions{CustomArgs: `-f "bestvideo+bestaudio" --no-mtime`},
	}
	args := command.Build(job, "/tmp/scratch", "", "yt-dlp", "/usr/bin")

	if !contains(args, "bestvideo+bestaudio") {
		t.Errorf("custom args not split correctly: %v", args)
	}
	if !contains(args, "--no-mtime") {
		t.Errorf("custom args missing --no-mtime: %v", args)
	}
}

func TestBuild_PlaylistRange(t *testing.T) {
	start, end := 2, 5
	job := model.Job{
		URL: "https://example.com/playlist?list=abc", Mode: model.ModeMusic,
		PlaylistStart: &start, PlaylistEnd: &end,
	}
	args := command.Build(job, "/tmp/scratch", "", "yt-dlp", "/usr/bin")

	if !contains(args, "--playlist-items") {
		t.Error("missing --playlist-items for ranged playlist job")
	}
	if !contains(args, "--ignore-errors") {
		t.Error("playlist URL should add --ignore-errors")
	}
}

func TestBuild_CookieFileOmittedWhenAbsent(t *testing.T) {
	job := model.Job{URL: "https://example.com/v", Mode: model.ModeMusic}
	args := command.Build(job, "/tmp/scratch", "/nonexistent/cookies.txt", "yt-dlp", "/usr/bin")

	if contains(args, "--cookies") {
		t.Error("missing cookie file should not add --cookies")
	}
}
