// Package command builds the extractor argv from a Job: a pure
// translation from the four Job modes (music/video/clip/custom) to a
// concrete yt-dlp command line.
package command

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"reaper/internal/model"
)

var qualityHeightRe = regexp.MustCompile(`^(\d+)p$`)

// Build translates job into an argv vector for the extractor binary,
// rooted at scratchDir.
func Build(job model.Job, scratchDir, cookieFile, ytDlpPath, ffmpegDir string) []string {
	args := []string{ytDlpPath}

	args = append(args, "--sleep-interval", "3", "--max-sleep-interval", "10")
	args = append(args, "--ffmpeg-location", ffmpegDir)
	args = append(args, "--newline", "--progress-template", "%(progress)j", "--print", "%(.)#j")

	args = append(args, "-o", outputTemplate(scratchDir))

	if job.PlaylistStart != nil || job.PlaylistEnd != nil {
		args = append(args, "--playlist-items", playlistRange(job.PlaylistStart, job.PlaylistEnd))
	}

	if looksLikePlaylist(job.URL) {
		args = append(args, "--ignore-errors")
	}

	if cookieFile != "" {
		if info, err := os.Stat(cookieFile); err == nil && info.Size() > 0 {
			args = append(args, "--cookies", cookieFile)
		}
	}

	if job.Archive {
		args = append(args, "--download-archive", filepath.Join(scratchDir, "archive.temp.txt"))
	}

	if job.Proxy != "" {
		args = append(args, "--proxy", job.Proxy)
	}
	if job.RateLimit != "" {
		args = append(args, "-r", job.RateLimit)
	}

	args = append(args, modeArgs(job)...)

	args = append(args, job.URL)
	return args
}

// outputTemplate uses yt-dlp's conditional field syntax so playlist items
// get an "<index> - <title>.<ext>" name while single items get just
// "<title>.<ext>", from one template string.
func outputTemplate(scratchDir string) string {
	return filepath.Join(scratchDir, "%(playlist_index&{} - |)s%(title)s.%(ext)s")
}

func playlistRange(start, end *int) string {
	lo, hi := "1", ""
	if start != nil {
		lo = strconv.Itoa(*start)
	}
	if end != nil {
		hi = strconv.Itoa(*end)
	}
	if hi == "" {
		return lo + ":"
	}
	return lo + ":" + hi
}

func looksLikePlaylist(rawURL string) bool {
	return strings.Contains(rawURL, "list=") || strings.Contains(rawURL, "/playlist")
}

func modeArgs(job model.Job) []string {
	switch job.Mode {
	case model.ModeMusic:
		return musicArgs(job)
	case model.ModeVideo:
		return videoArgs(job)
	case model.ModeClip:
		return clipArgs(job)
	case model.ModeCustom:
		return customArgs(job)
	default:
		return nil
	}
}

func musicArgs(job model.Job) []string {
	format := job.Music.Format
	if format == "" {
		format = "mp3"
	}
	quality := job.Music.Quality
	if quality == "" {
		quality = "0"
	}

	args := []string{
		"-f", "bestaudio/best", "-x",
		"--audio-format", format,
		"--audio-quality", quality,
		"--embed-metadata", "--embed-thumbnail",
		"--parse-metadata", "track:%(title)s",
		"--parse-metadata", "artist:%(uploader)s",
	}
	if job.Folder != "" {
		args = append(args, "--parse-metadata", fmt.Sprintf("%s:%%(album)s", job.Folder))
	}
	return args
}

func videoArgs(job model.Job) []string {
	format := job.Video.Format
	if format == "" {
		format = "mp4"
	}

	var selector string
	if job.Video.Codec == "compatibility" {
		selector = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	} else {
		selector = "bestvideo*+bestaudio/best"
	}
	if m := qualityHeightRe.FindStringSubmatch(job.Video.Quality); m != nil {
		selector = fmt.Sprintf("%s[height<=%s]", trimSelectorBase(selector), m[1])
	}

	args := []string{"-f", selector, "--merge-output-format", format}
	if job.Video.EmbedSubs {
		args = append(args, "--write-subs", "--write-auto-subs", "--embed-subs")
	}
	return args
}

// trimSelectorBase strips a trailing "/best"-style fallback chain so the
// height filter only constrains the first alternative, matching yt-dlp's
// expectation that [filter] binds to the immediately preceding selector.
func trimSelectorBase(selector string) string {
	if i := strings.Index(selector, "/"); i >= 0 {
		return selector[:i]
	}
	return selector
}

func clipArgs(job model.Job) []string {
	if job.Clip.Format == "video" {
		return []string{"-f", "bestvideo+bestaudio/best", "--merge-output-format", "mp4"}
	}
	return []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3", "--audio-quality", "0"}
}

func customArgs(job model.Job) []string {
	fields, err := shellSplit(job.Custom.CustomArgs)
	if err != nil {
		return nil
	}
	return fields
}

// shellSplit performs POSIX-ish word splitting with single/double quote
// support for shell-splitting custom_args.
func shellSplit(s string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	var inSingle, inDouble bool
	has := false

	flush := func() {
		if has {
			fields = append(fields, cur.String())
			cur.Reset()
			has = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteByte(c)
				has = true
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else {
				cur.WriteByte(c)
				has = true
			}
		case c == '\'':
			inSingle = true
			has = true
		case c == '"':
			inDouble = true
			has = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			has = true
		}
	}
	flush()

	if inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quote in custom_args")
	}
	return fields, nil
}
