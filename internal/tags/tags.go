// Package tags backfills a HistoryEntry's title from embedded ID3/Vorbis/MP4
// tags ("Artist - Title" when an artist tag is present) after Finalize
// promotes a music-mode file, for jobs that had no folder name and for which
// yt-dlp's own JSON carried no playlist metadata.
package tags

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Info is the subset of embedded tag fields reaper cares about.
type Info struct {
	Title  string
	Artist string
	Album  string
	Track  int
}

// Read opens path and extracts embedded tags, returning ok=false if the
// file has none or isn't a format dhowden/tag recognizes (best-effort,
// never fatal to Finalize).
func Read(path string) (Info, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Info{}, false
	}

	track, _ := m.Track()
	return Info{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Track:  track,
	}, true
}

// Backfill fills title/artist into an otherwise-bare title string, falling
// back to the file's basename (without extension) when the tags carry
// nothing useful either.
func Backfill(existingTitle, path string) string {
	if existingTitle != "" {
		return existingTitle
	}

	info, ok := Read(path)
	if !ok || info.Title == "" {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}

	if info.Artist == "" {
		return info.Title
	}
	return info.Artist + " - " + info.Title
}
