package yamlio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.yaml")

	data := map[string]any{"schema_version": 1, "file_type": "job_report"}
	if err := AtomicWrite(path, data); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "schema_version: 1") {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestAtomicWriteKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.yaml")

	if err := AtomicWrite(path, map[string]any{"generation": 1}); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, map[string]any{"generation": 2}); err != nil {
		t.Fatal(err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if !strings.Contains(string(bak), "generation: 1") {
		t.Errorf("backup should hold the previous content, got: %s", bak)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(current), "generation: 2") {
		t.Errorf("current file should hold the new content, got: %s", current)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := AtomicWrite(filepath.Join(dir, "record.yaml"), map[string]any{"a": 1}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".convoy-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	dest, err := Quarantine(dir, path)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file should be gone")
	}
	if !strings.HasSuffix(dest, ".rejected") {
		t.Errorf("quarantined name: %s", dest)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("quarantined file missing: %v", err)
	}
}

func TestQuarantineKeepsSameNamedRejections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")

	// two rejections of the same file name in quick succession must both
	// survive in the quarantine directory
	for i := 0; i < 2; i++ {
		if err := os.WriteFile(path, []byte("::: not yaml"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Quarantine(dir, path); err != nil {
			t.Fatalf("Quarantine: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("quarantine entries: got %d, want 2", len(entries))
	}
}
