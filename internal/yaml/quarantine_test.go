package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuarantine(t *testing.T) {
	stateDir := t.TempDir()
	filePath := filepath.Join(stateDir, "storage", "qpt_cache_v1.yaml")
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filePath, []byte("corrupted: [\n"), 0644)

	moved, err := Quarantine(stateDir, filePath)
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}

	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("original file should be removed after quarantine")
	}
	if filepath.Dir(moved) != filepath.Join(stateDir, "quarantine") {
		t.Errorf("unexpected quarantine dir: %s", moved)
	}
	name := filepath.Base(moved)
	if !strings.HasPrefix(name, "qpt_cache_v1.yaml.") || !strings.HasSuffix(name, ".corrupt") {
		t.Errorf("unexpected quarantine filename: %s", name)
	}
}

func TestRecoverCorruptedFile_WithBackup(t *testing.T) {
	stateDir := t.TempDir()
	filePath := filepath.Join(stateDir, "doc.yaml")

	os.WriteFile(filePath+".bak", []byte("qty: 5\n"), 0644)
	os.WriteFile(filePath, []byte("qty: [\n"), 0644)

	restored, err := RecoverCorruptedFile(stateDir, filePath)
	if err != nil {
		t.Fatalf("RecoverCorruptedFile failed: %v", err)
	}
	if !restored {
		t.Fatal("expected restore from backup")
	}

	var v map[string]int
	if err := ReadFile(filePath, &v); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if v["qty"] != 5 {
		t.Errorf("qty: got %d, want 5", v["qty"])
	}
}

func TestRecoverCorruptedFile_WithoutBackup(t *testing.T) {
	stateDir := t.TempDir()
	filePath := filepath.Join(stateDir, "doc.yaml")
	os.WriteFile(filePath, []byte("qty: [\n"), 0644)

	restored, err := RecoverCorruptedFile(stateDir, filePath)
	if err != nil {
		t.Fatalf("RecoverCorruptedFile failed: %v", err)
	}
	if restored {
		t.Fatal("nothing to restore from")
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("corrupt document should be gone")
	}
}

func TestRestoreFromBackup_CorruptBackup(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "doc.yaml")
	os.WriteFile(filePath+".bak", []byte("qty: [\n"), 0644)

	if err := RestoreFromBackup(filePath); err == nil {
		t.Fatal("expected error for corrupt backup")
	}
}
