package statusstore

import (
	"path/filepath"
	"testing"

	"github.com/rasenhq/rasen/internal/types"
)

func TestLoadAbsentReturnsNil(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "status.json"))

	status, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if status != nil {
		t.Fatalf("Load() = %+v, want nil", status)
	}
}

func TestUpdateThenLoad(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "status.json"))
	want := &types.StatusInfo{PID: 123, Iteration: 2, Status: "running"}

	if err := store.Update(want); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.PID != want.PID || got.Iteration != want.Iteration || got.Status != want.Status {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestMarkCompletedNoopWithoutStatus(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "status.json"))

	if err := store.MarkCompleted(); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	status, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if status != nil {
		t.Fatalf("Load() = %+v, want nil after no-op MarkCompleted", status)
	}
}

func TestMarkCompletedSetsStatus(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "status.json"))
	if err := store.Update(&types.StatusInfo{PID: 1, Status: "running"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if err := store.MarkCompleted(); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	status, _ := store.Load()
	if status.Status != "completed" {
		t.Fatalf("Status = %q, want completed", status.Status)
	}
}

func TestMarkFailedIncludesReason(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "status.json"))
	if err := store.Update(&types.StatusInfo{PID: 1, Status: "running"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if err := store.MarkFailed("build timed out"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	status, _ := store.Load()
	if status.Status != "failed: build timed out" {
		t.Fatalf("Status = %q, want failed: build timed out", status.Status)
	}
}
