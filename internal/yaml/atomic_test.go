package yaml

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

func TestAtomicWrite_StructData(t *testing.T) {
	type entry struct {
		Trab string `yaml:"trab"`
		Qty  int    `yaml:"qty"`
	}

	path := filepath.Join(t.TempDir(), "qpt_cache_v1.yaml")
	data := map[string]map[string]entry{"100": {"7": {Trab: "Corte", Qty: 12}}}
	if err := AtomicWrite(path, data); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	var got map[string]map[string]entry
	if err := ReadFile(path, &got); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got["100"]["7"].Qty != 12 || got["100"]["7"].Trab != "Corte" {
		t.Errorf("got %+v", got)
	}
}

func TestAtomicWriteRaw_AcceptsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apontamento_broadcast.yaml")
	if err := AtomicWriteRaw(path, []byte(`{"type":"stop","osId":42}`)); err != nil {
		t.Fatalf("AtomicWriteRaw failed: %v", err)
	}

	var got map[string]any
	if err := ReadFile(path, &got); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got["type"] != "stop" || got["osId"] != 42 {
		t.Errorf("got %+v", got)
	}
}

func TestAtomicWrite_CreatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yaml")

	if err := AtomicWrite(path, map[string]string{"version": "1"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, map[string]string{"version": "2"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	var bak map[string]string
	if err := yamlv3.Unmarshal(content, &bak); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if bak["version"] != "1" {
		t.Errorf("backup version: got %q, want 1", bak["version"])
	}
}

func TestAtomicWriteRaw_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.yaml")

	if err := AtomicWriteRaw(path, []byte(":\n  invalid: [\n    broken")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after failed write")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), TempPrefix) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yaml")
	if err := os.WriteFile(path, []byte("key: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var v map[string]any
	err := ReadFile(path, &v)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestWriteFileAtomic_SkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.md")
	content := []byte("# Apontamentos\n\n| a | b |\n: not: yaml: [\n")
	if err := WriteFileAtomic(path, content); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: %q", got)
	}
}
