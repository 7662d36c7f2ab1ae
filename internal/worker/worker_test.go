package worker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"reaper/internal/extractor"
	"reaper/internal/model"
	"reaper/internal/state"
	"reaper/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *state.Manager) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor fixtures are POSIX shell scripts")
	}

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sm := state.New(st)

	root := t.TempDir()
	cfg := Config{
		DownloadDir: filepath.Join(root, "downloads"),
		TempDir:     filepath.Join(root, "scratch"),
		LogsDir:     filepath.Join(root, "logs"),
		YtDlpPath:   "",
		FFmpegDir:   root,
	}
	if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
		t.Fatalf("mkdir logs dir: %v", err)
	}
	return New(cfg, sm), sm
}

// writeFakeExtractor installs a stand-in yt-dlp: a shell script that reads
// its own "-o" output-template argument to find the scratch directory, so
// it can drop files where Finalize expects them without needing a real
// download. body is appended after that setup, with $dir and $out in scope.
func writeFakeExtractor(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-extractor.sh")
	script := "#!/bin/sh\n" +
		"out=\"\"\n" +
		"prev=\"\"\n" +
		"for arg in \"$@\"; do\n" +
		"  if [ \"$prev\" = \"-o\" ]; then out=\"$arg\"; fi\n" +
		"  prev=\"$arg\"\n" +
		"done\n" +
		"dir=$(dirname \"$out\")\n" +
		"mkdir -p \"$dir\"\n" +
		body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake extractor: %v", err)
	}
	return path
}

func withinGrace(t *testing.T, d time.Duration) {
	t.Helper()
	if d > 10*time.Second {
		t.Fatalf("runJob took %s on a normal exit, want well under the %s job timeout", d, jobTimeout)
	}
}

// TestRunJob_Complete is the regression test for the superviseCancel
// hang: a normally-exiting extractor must finalize promptly instead of
// blocking until jobTimeout, and must yield a COMPLETED history row.
func TestRunJob_Complete(t *testing.T) {
	w, sm := newTestWorker(t)
	w.cfg.YtDlpPath = writeFakeExtractor(t, `
printf 'data' > "$dir/Fake Song.mp3"
echo '{"status":"finished"}'
exit 0
`)

	job := model.Job{ID: 1, URL: "https://example.com/a", Mode: model.ModeMusic, Folder: "My Mix"}

	start := time.Now()
	w.runJob(context.Background(), job)
	withinGrace(t, time.Since(start))

	entries, err := sm.HistorySummary()
	if err != nil {
		t.Fatalf("HistorySummary() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d history entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", entry.Status, model.StatusCompleted)
	}
	if len(entry.Filenames) != 1 || entry.Filenames[0] != "Fake Song.mp3" {
		t.Errorf("Filenames = %v, want [Fake Song.mp3]", entry.Filenames)
	}
	dest := filepath.Join(w.cfg.DownloadDir, "My Mix", "Fake Song.mp3")
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("promoted file missing at %s: %v", dest, err)
	}
	if _, err := os.Stat(filepath.Join(w.cfg.TempDir, "job_1")); !os.IsNotExist(err) {
		t.Errorf("scratch directory should have been removed")
	}
}

// TestRunJob_CollisionSuffix exercises promoteFiles' de-duplication: a
// destination file with the same name already exists, so the promoted
// file must land alongside it with a " (1)" suffix rather than overwrite it.
func TestRunJob_CollisionSuffix(t *testing.T) {
	w, sm := newTestWorker(t)
	w.cfg.YtDlpPath = writeFakeExtractor(t, `
printf 'data' > "$dir/Fake Song.mp3"
echo '{"status":"finished"}'
exit 0
`)

	destDir := filepath.Join(w.cfg.DownloadDir, "My Mix")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		t.Fatalf("mkdir dest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "Fake Song.mp3"), []byte("existing"), 0644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}

	job := model.Job{ID: 1, URL: "https://example.com/a", Mode: model.ModeMusic, Folder: "My Mix"}
	w.runJob(context.Background(), job)

	entries, _ := sm.HistorySummary()
	if len(entries) != 1 || len(entries[0].Filenames) != 1 {
		t.Fatalf("unexpected history entries: %+v", entries)
	}
	if got := entries[0].Filenames[0]; got != "Fake Song (1).mp3" {
		t.Errorf("Filenames[0] = %q, want %q", got, "Fake Song (1).mp3")
	}
	if _, err := os.Stat(filepath.Join(destDir, "Fake Song (1).mp3")); err != nil {
		t.Errorf("suffixed file missing: %v", err)
	}
}

// TestRunJob_CancelSave drives a long-running fake extractor and requests
// StopSave mid-flight: the run should terminate in well under jobTimeout
// and record STOPPED, the save-mode terminal status.
func TestRunJob_CancelSave(t *testing.T) {
	w, sm := newTestWorker(t)
	w.cfg.YtDlpPath = writeFakeExtractor(t, `
printf 'data' > "$dir/Fake Song.mp3"
sleep 5
exit 0
`)

	job := model.Job{ID: 1, URL: "https://example.com/a", Mode: model.ModeMusic, Folder: "My Mix"}

	done := make(chan struct{})
	go func() {
		w.runJob(context.Background(), job)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	sm.RequestStop(model.StopSave)

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("runJob did not return after a save-cancel request")
	}

	entries, _ := sm.HistorySummary()
	if len(entries) != 1 {
		t.Fatalf("got %d history entries, want 1", len(entries))
	}
	if entries[0].Status != model.StatusStopped {
		t.Errorf("Status = %q, want %q", entries[0].Status, model.StatusStopped)
	}
	if len(entries[0].Filenames) != 1 {
		t.Errorf("Filenames = %v, want the partial file promoted on save", entries[0].Filenames)
	}
}

// TestRunJob_Cancel mirrors TestRunJob_CancelSave but with the default
// StopCancel mode, which must discard the partial file rather than promote it.
func TestRunJob_Cancel(t *testing.T) {
	w, sm := newTestWorker(t)
	w.cfg.YtDlpPath = writeFakeExtractor(t, `
printf 'data' > "$dir/Fake Song.mp3"
sleep 5
exit 0
`)

	job := model.Job{ID: 1, URL: "https://example.com/a", Mode: model.ModeMusic, Folder: "My Mix"}

	done := make(chan struct{})
	go func() {
		w.runJob(context.Background(), job)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	sm.RequestStop(model.StopCancel)

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("runJob did not return after a cancel request")
	}

	entries, _ := sm.HistorySummary()
	if len(entries) != 1 {
		t.Fatalf("got %d history entries, want 1", len(entries))
	}
	if entries[0].Status != model.StatusCancelled {
		t.Errorf("Status = %q, want %q", entries[0].Status, model.StatusCancelled)
	}
	if len(entries[0].Filenames) != 0 {
		t.Errorf("Filenames = %v, want none promoted on a plain cancel", entries[0].Filenames)
	}
}

func TestRecordAbandoned(t *testing.T) {
	w, sm := newTestWorker(t)

	job := model.Job{ID: 7, URL: "https://example.com/a", Folder: "My Mix", Status: model.StatusAbandoned}
	w.recordAbandoned(job)

	entries, err := sm.HistorySummary()
	if err != nil {
		t.Fatalf("HistorySummary() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d history entries, want 1", len(entries))
	}
	if entries[0].Status != model.StatusAbandoned {
		t.Errorf("Status = %q, want %q", entries[0].Status, model.StatusAbandoned)
	}
	if entries[0].ErrorSummary == "" {
		t.Error("ErrorSummary should explain the abandonment")
	}
}

func TestTerminalStatus(t *testing.T) {
	startErr := isStartFailureErr()

	tests := []struct {
		name      string
		runErr    error
		cancelled bool
		mode      model.StopMode
		timedOut  bool
		want      model.HistoryStatus
	}{
		{"completed", nil, false, model.StopCancel, false, model.StatusCompleted},
		{"cancelled", nil, true, model.StopCancel, false, model.StatusCancelled},
		{"stopped (save)", nil, true, model.StopSave, false, model.StatusStopped},
		{"timed out", nil, false, model.StopCancel, true, model.StatusFailed},
		{"start failure", startErr, false, model.StopCancel, false, model.StatusError},
		{"generic failure", context.DeadlineExceeded, false, model.StopCancel, false, model.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := terminalStatus(tt.runErr, tt.cancelled, tt.mode, tt.timedOut)
			if got != tt.want {
				t.Errorf("terminalStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSuperviseCancel_ReturnsPromptlyOnNormalExit is the direct regression
// test for the hang: before the fix, a normal exit with no cancel request
// was only ever observed through jobCtx.Done(), so superviseCancel blocked
// for the full jobTimeout on every successful run.
func TestSuperviseCancel_ReturnsPromptlyOnNormalExit(t *testing.T) {
	w, _ := newTestWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	proc, waitCh := extractor.Run(ctx, []string{"/bin/sh", "-c", "exit 0"}, nil, nil)

	start := time.Now()
	cancelled, _, runErr := w.superviseCancel(ctx, proc, waitCh)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("superviseCancel took %s to notice a normal exit, want well under jobTimeout", elapsed)
	}
	if cancelled {
		t.Error("cancelled should be false for a normal exit")
	}
	if runErr != nil {
		t.Errorf("runErr = %v, want nil", runErr)
	}
}

// TestSuperviseCancel_Cancel checks that a cancel request interrupts a
// long-running process and is reported back to the caller.
func TestSuperviseCancel_Cancel(t *testing.T) {
	w, sm := newTestWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	proc, waitCh := extractor.Run(ctx, []string{"/bin/sh", "-c", "sleep 5"}, nil, nil)

	go func() {
		time.Sleep(150 * time.Millisecond)
		sm.RequestStop(model.StopSave)
	}()

	start := time.Now()
	cancelled, mode, _ := w.superviseCancel(ctx, proc, waitCh)
	elapsed := time.Since(start)

	if !cancelled {
		t.Error("cancelled should be true once CancelRequested fires")
	}
	if mode != model.StopSave {
		t.Errorf("mode = %q, want %q", mode, model.StopSave)
	}
	if elapsed > 12*time.Second {
		t.Errorf("superviseCancel took %s to return after cancellation, want well under the termination grace", elapsed)
	}
}

// isStartFailureErr builds an error satisfying isStartFailure without
// importing the errors package's sentinel construction helpers here.
func isStartFailureErr() error {
	_, waitCh := extractor.Run(context.Background(), []string{"/nonexistent-binary-xyz"}, nil, nil)
	return <-waitCh
}
