// Package setup creates and locates the .shopfloor state directory.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/shopfloor/internal/model"
	atomicyaml "github.com/msageha/shopfloor/internal/yaml"
	"github.com/msageha/shopfloor/templates"
)

// DirName is the state directory created inside a project.
const DirName = ".shopfloor"

// Options override fields of the default config.yaml.
type Options struct {
	ServerURL    string
	OperatorID   int
	OperatorName string
}

// Run initializes the .shopfloor/ directory in projectDir and returns its
// absolute path.
func Run(projectDir string, opts Options) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"storage", "logs", "quarantine"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplateFile("shopfloor.md", filepath.Join(base, "shopfloor.md")); err != nil {
		return "", err
	}

	cfg, err := generateConfig(opts)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return "", fmt.Errorf("write config.yaml: %w", err)
	}
	return base, nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func generateConfig(opts Options) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if opts.ServerURL != "" {
		cfg.Server.BaseURL = opts.ServerURL
	}
	if opts.OperatorID > 0 {
		cfg.Operator.ID = opts.OperatorID
	}
	if opts.OperatorName != "" {
		cfg.Operator.Name = opts.OperatorName
	}
	return &cfg, nil
}

// FindStateDir walks up from start looking for a .shopfloor directory.
// It returns "" when none is found.
func FindStateDir(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadConfig reads config.yaml from stateDir and fills unset fields with
// defaults.
func LoadConfig(stateDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	return cfg.WithDefaults(), nil
}
