package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "unbanbot/pkg/logx"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "monitor_list.json"), logx.Nop())
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d items", r.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor_list.json")
	r := New(path, logx.Nop())

	start := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	unban := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	items := []Item{
		{Username: "alice", ChatID: 100, Status: StatusMonitoring, StartTime: start},
		{Username: "bob", ChatID: 200, Status: StatusUnbanned, StartTime: start, UnbanTime: &unban},
	}
	if err := r.UpsertBatch(items); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	// Fresh instance reconstructs the exact same state from disk.
	r2 := New(path, logx.Nop())
	if err := r2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r2.Len() != 2 {
		t.Fatalf("expected 2 items after reload, got %d", r2.Len())
	}

	got, ok := r2.Get("alice")
	if !ok {
		t.Fatal("alice missing after reload")
	}
	if got.Username != "alice" || got.ChatID != 100 || got.Status != StatusMonitoring {
		t.Fatalf("alice mismatch: %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Fatalf("start_time mismatch: got %v want %v", got.StartTime, start)
	}
	if got.UnbanTime != nil {
		t.Fatalf("monitoring item must not carry unban_time, got %v", got.UnbanTime)
	}

	got, _ = r2.Get("bob")
	if got.Status != StatusUnbanned || got.UnbanTime == nil || !got.UnbanTime.Equal(unban) {
		t.Fatalf("bob mismatch: %+v", got)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	for name, content := range map[string]string{
		"not json":       "{{{",
		"unknown status": `{"x":{"start_time":"2026-08-01T00:00:00Z","status":"banned","chat_id":1}}`,
		"no start_time":  `{"x":{"status":"monitoring","chat_id":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "monitor_list.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			r := New(path, logx.Nop())
			err := r.Load()
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestRemoveOwnership(t *testing.T) {
	r := newTestRegistry(t)
	it := Item{Username: "alice", ChatID: 100, Status: StatusMonitoring, StartTime: time.Now().UTC()}
	if err := r.Upsert(it); err != nil {
		t.Fatal(err)
	}

	// Another chat can't remove it and can't tell it exists.
	ok, err := r.Remove("alice", 999)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("non-owner removal must fail")
	}
	if _, exists := r.Get("alice"); !exists {
		t.Fatal("item vanished after denied removal")
	}

	ok, err = r.Remove("alice", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("owner removal failed")
	}
	if _, exists := r.Get("alice"); exists {
		t.Fatal("item still present after removal")
	}
}

func TestListForFiltersAndSorts(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now().UTC()
	unban := now
	err := r.UpsertBatch([]Item{
		{Username: "zeta", ChatID: 1, Status: StatusMonitoring, StartTime: now},
		{Username: "alpha", ChatID: 1, Status: StatusMonitoring, StartTime: now},
		{Username: "done", ChatID: 1, Status: StatusUnbanned, StartTime: now, UnbanTime: &unban},
		{Username: "other", ChatID: 2, Status: StatusMonitoring, StartTime: now},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := r.ListFor(1)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Username != "alpha" || got[1].Username != "zeta" {
		t.Fatalf("wrong order: %q, %q", got[0].Username, got[1].Username)
	}
}

func TestMarkUnbannedIsOneWay(t *testing.T) {
	r := newTestRegistry(t)
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := r.Upsert(Item{Username: "alice", ChatID: 1, Status: StatusMonitoring, StartTime: start}); err != nil {
		t.Fatal(err)
	}

	first := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	if err := r.MarkUnbanned([]string{"alice", "ghost"}, first); err != nil {
		t.Fatalf("MarkUnbanned: %v", err)
	}

	it, _ := r.Get("alice")
	if it.Status != StatusUnbanned || it.UnbanTime == nil || !it.UnbanTime.Equal(first) {
		t.Fatalf("transition not applied: %+v", it)
	}

	// A later flip attempt must not touch the recorded unban time.
	if err := r.MarkUnbanned([]string{"alice"}, first.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	it, _ = r.Get("alice")
	if !it.UnbanTime.Equal(first) {
		t.Fatalf("unban_time rewritten on repeat flip: %v", it.UnbanTime)
	}

	if got := r.Monitoring(); len(got) != 0 {
		t.Fatalf("unbanned item still in monitoring snapshot: %+v", got)
	}
}
