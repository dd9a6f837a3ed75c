package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitThenFindThenLoadTask(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "build the thing", false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldwd)

	found, err := Find()
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if found != root {
		t.Errorf("Find() = %q, want %q", found, root)
	}

	task, err := LoadTask(root)
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if task != "build the thing" {
		t.Errorf("LoadTask() = %q, want %q", task, "build the thing")
	}
}

func TestInitRejectsEmptyTask(t *testing.T) {
	if err := Init(t.TempDir(), "  ", false); err == nil {
		t.Error("Init() with blank task should fail")
	}
}

func TestInitRefusesExistingWorkspaceWithoutForce(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "first task", false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(root, "second task", false); err == nil {
		t.Error("Init() without --force should refuse an existing workspace")
	}
	if err := Init(root, "second task", true); err != nil {
		t.Fatalf("Init() with force error = %v", err)
	}
	task, err := LoadTask(root)
	if err != nil {
		t.Fatal(err)
	}
	if task != "second task" {
		t.Errorf("LoadTask() = %q, want %q", task, "second task")
	}
}

func TestInitMaterializesAllRolePrompts(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "build the thing", false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	layout := NewLayout(root)
	for _, name := range []string{"initializer.md", "coder.md", "reviewer.md", "qa.md"} {
		if _, err := os.Stat(filepath.Join(layout.PromptsDir(), name)); err != nil {
			t.Errorf("expected prompt override %s to exist: %v", name, err)
		}
	}
}

func TestFindReturnsErrorWithNoWorkspace(t *testing.T) {
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldwd)

	if _, err := Find(); err == nil {
		t.Error("Find() should fail with no .rasen ancestor")
	}
}

func TestReinitKeepProgressPreservesPlan(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "first task", false); err != nil {
		t.Fatal(err)
	}
	layout := NewLayout(root)
	if err := os.WriteFile(layout.PlanPath(), []byte(`{"task_name":"demo"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Reinit(root, "second task", true); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	if _, err := os.Stat(layout.PlanPath()); err != nil {
		t.Errorf("expected plan to survive keep-progress reinit: %v", err)
	}
	task, err := LoadTask(root)
	if err != nil {
		t.Fatal(err)
	}
	if task != "second task" {
		t.Errorf("LoadTask() = %q, want %q", task, "second task")
	}
}

func TestReinitWithoutKeepProgressClearsPlan(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "first task", false); err != nil {
		t.Fatal(err)
	}
	layout := NewLayout(root)
	if err := os.WriteFile(layout.PlanPath(), []byte(`{"task_name":"demo"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Reinit(root, "second task", false); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	if _, err := os.Stat(layout.PlanPath()); !os.IsNotExist(err) {
		t.Error("expected plan to be cleared without keep-progress")
	}
}
