package setup

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/msageha/shopfloor/internal/model"
)

func TestRun_CreatesDirectoryStructure(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "linha1")
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("create project dir: %v", err)
	}

	base, err := Run(projectDir, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if base != filepath.Join(projectDir, DirName) {
		t.Errorf("base: got %q", base)
	}

	for _, d := range []string{"storage", "logs", "quarantine"} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil {
			t.Errorf("directory %s does not exist: %v", d, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}

	for _, f := range []string{"shopfloor.md", "config.yaml"} {
		info, err := os.Stat(filepath.Join(base, f))
		if err != nil {
			t.Errorf("file %s does not exist: %v", f, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("file %s is empty", f)
		}
	}
}

func TestRun_AppliesOptions(t *testing.T) {
	dir := t.TempDir()

	base, err := Run(dir, Options{ServerURL: "http://mes.local:8080", OperatorID: 12, OperatorName: "Ana"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "config.yaml"))
	if err != nil {
		t.Fatalf("read config.yaml: %v", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config.yaml: %v", err)
	}

	if cfg.Server.BaseURL != "http://mes.local:8080" {
		t.Errorf("server.base_url: got %q", cfg.Server.BaseURL)
	}
	if cfg.Operator.ID != 12 || cfg.Operator.Name != "Ana" {
		t.Errorf("operator: got %+v", cfg.Operator)
	}
	if cfg.Poller.IntervalSec != 10 {
		t.Errorf("poller.interval_sec: got %d, want 10", cfg.Poller.IntervalSec)
	}
	if cfg.Render.LockSec != 20 {
		t.Errorf("render.lock_sec: got %d, want 20", cfg.Render.LockSec)
	}
}

func TestRun_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	if _, err := Run(dir, Options{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := Run(dir, Options{}); err == nil {
		t.Error("second Run should fail")
	}
}

func TestFindStateDir(t *testing.T) {
	dir := t.TempDir()
	base, err := Run(dir, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	if got := FindStateDir(nested); got != base {
		t.Errorf("FindStateDir(nested): got %q, want %q", got, base)
	}
	if got := FindStateDir(t.TempDir()); got != "" {
		t.Errorf("FindStateDir(empty): got %q, want empty", got)
	}
}

func TestLoadConfig_FillsDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  base_url: http://x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.BaseURL != "http://x" {
		t.Errorf("base_url: got %q", cfg.Server.BaseURL)
	}
	if cfg.Poller.TouchCooldownMs != 1200 {
		t.Errorf("touch_cooldown_ms: got %d, want 1200", cfg.Poller.TouchCooldownMs)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level: got %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(dir); err == nil {
		t.Error("missing config.yaml should fail")
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Error("malformed config.yaml should fail")
	}
}
