package tags

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRead_ReturnsFalseForNonAudioFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-audio.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok := Read(path); ok {
		t.Error("Read() should report ok=false for a file with no embedded tags")
	}
}

func TestBackfill_PrefersExistingTitle(t *testing.T) {
	if got := Backfill("Already Set", "/nonexistent/path.mp3"); got != "Already Set" {
		t.Errorf("Backfill() = %q, want existing title preserved", got)
	}
}

func TestBackfill_FallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "My Track.mp3")
	if err := os.WriteFile(path, []byte("not a real mp3"), 0644); err != nil {
		t.Fatal(err)
	}

	got := Backfill("", path)
	if got != "My Track" {
		t.Errorf("Backfill() = %q, want %q", got, "My Track")
	}
}
