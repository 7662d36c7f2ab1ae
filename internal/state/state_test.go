package state_test

import (
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"reaper/internal/model"
	"reaper/internal/state"
	"reaper/internal/store"
)

func newManager(t *testing.T) *state.Manager {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return state.New(st)
}

func TestEnqueueJob_AssignsMonotonicID(t *testing.T) {
	m := newManager(t)

	j1, err := m.EnqueueJob(model.Job{URL: "https://example.com/a", Mode: model.ModeMusic})
	if err != nil {
		t.Fatalf("EnqueueJob() error: %v", err)
	}
	j2, err := m.EnqueueJob(model.Job{URL: "https://example.com/b", Mode: model.ModeMusic})
	if err != nil {
		t.Fatalf("EnqueueJob() error: %v", err)
	}

	if j2.ID != j1.ID+1 {
		t.Errorf("ids not monotonic: %d then %d", j1.ID, j2.ID)
	}
}

func TestClearQueue_IdempotentVersionBump(t *testing.T) {
	m := newManager(t)
	m.EnqueueJob(model.Job{URL: "https://example.com/a", Mode: model.ModeMusic})

	before, _, _, _ := m.Versions()
	if err := m.ClearQueue(); err != nil {
		t.Fatalf("ClearQueue() error: %v", err)
	}
	mid, _, _, _ := m.Versions()
	if err := m.ClearQueue(); err != nil {
		t.Fatalf("ClearQueue() error: %v", err)
	}
	after, _, _, _ := m.Versions()

	if mid != before+1 {
		t.Errorf("first ClearQueue() should bump version by 1: before=%d mid=%d", before, mid)
	}
	if after != mid {
		t.Errorf("second ClearQueue() on empty queue should not bump version: mid=%d after=%d", mid, after)
	}
}

func TestReorderQueue_PreservesAllItems(t *testing.T) {
	m := newManager(t)
	j1, _ := m.EnqueueJob(model.Job{URL: "https://example.com/a", Mode: model.ModeMusic})
	j2, _ := m.EnqueueJob(model.Job{URL: "https://example.com/b", Mode: model.ModeMusic})
	j3, _ := m.EnqueueJob(model.Job{URL: "https://example.com/c", Mode: model.ModeMusic})

	if err := m.ReorderQueue([]int{j3.ID, j1.ID}); err != nil {
		t.Fatalf("ReorderQueue() error: %v", err)
	}

	snap := m.QueueSnapshot()
	if len(snap) != 3 {
		t.Fatalf("queue length = %d, want 3", len(snap))
	}
	if snap[0].ID != j3.ID || snap[1].ID != j1.ID || snap[2].ID != j2.ID {
		t.Errorf("unexpected order: %+v", snap)
	}
}

func TestPopForWorker_TimesOutWhenEmpty(t *testing.T) {
	m := newManager(t)
	_, ok := m.PopForWorker(50 * time.Millisecond)
	if ok {
		t.Error("PopForWorker() on empty queue should time out")
	}
}

func TestPopForWorker_ReturnsEnqueuedJob(t *testing.T) {
	m := newManager(t)
	want, _ := m.EnqueueJob(model.Job{URL: "https://example.com/a", Mode: model.ModeMusic})

	got, ok := m.PopForWorker(time.Second)
	if !ok {
		t.Fatal("PopForWorker() should return the enqueued job")
	}
	if got.ID != want.ID {
		t.Errorf("got job id %d, want %d", got.ID, want.ID)
	}

	snap := m.QueueSnapshot()
	if len(snap) != 0 {
		t.Errorf("queue should be empty after pop, got %d", len(snap))
	}
}

func TestPause_BlocksPopForWorker(t *testing.T) {
	m := newManager(t)
	m.EnqueueJob(model.Job{URL: "https://example.com/a", Mode: model.ModeMusic})
	m.Pause()

	done := make(chan struct{})
	go func() {
		m.PopForWorker(time.Second)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("PopForWorker() should block while paused")
	case <-time.After(100 * time.Millisecond):
	}

	m.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PopForWorker() should unblock after Resume()")
	}
}

func TestUpdateCurrent_MergesFields(t *testing.T) {
	m := newManager(t)
	m.UpdateCurrent(model.CurrentDownload{URL: "https://example.com/a", Status: "Preparing…"})
	m.UpdateCurrent(model.CurrentDownload{Progress: 42})

	cur := m.CurrentSnapshot()
	if cur.URL != "https://example.com/a" {
		t.Errorf("URL = %q, want preserved across merges", cur.URL)
	}
	if cur.Progress != 42 {
		t.Errorf("Progress = %v, want 42", cur.Progress)
	}
}

func TestAddNotification_WritesInfoHistoryRow(t *testing.T) {
	m := newManager(t)
	if err := m.AddNotification("Scythe 'nightly' was automatically reaped."); err != nil {
		t.Fatalf("AddNotification() error: %v", err)
	}

	entries, err := m.HistorySummary()
	if err != nil {
		t.Fatalf("HistorySummary() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != model.StatusInfo {
		t.Errorf("unexpected history: %+v", entries)
	}
}
