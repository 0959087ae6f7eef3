package usecase

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTasksFileValidatesEmail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`[{"Email":"not-an-email"}]`), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := LoadTasksFile(path)
	if err == nil {
		t.Fatal("expected validation error for a malformed email")
	}
}

func TestLoadTasksFileParsesValidTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`[{"Email":"a@example.com"},{"Email":"b@example.com","ProfileID":"p1"}]`), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, err := LoadTasksFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 || tasks[1].ProfileID != "p1" {
		t.Fatalf("tasks = %+v", tasks)
	}
}
