package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"launchpath/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Tasks.Catalog) != 6 {
		t.Fatalf("default catalog has %d tasks, want 6", len(cfg.Tasks.Catalog))
	}
	if !cfg.Pipeline.AutoValidate {
		t.Fatalf("default config should auto-validate")
	}
	if cfg.Pipeline.ValidationDelay.Std() != 2*time.Second {
		t.Fatalf("validation delay %s, want 2s", cfg.Pipeline.ValidationDelay.Std())
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Tasks.Catalog) == 0 {
		t.Fatalf("fallback config has empty catalog")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	yml := `pipeline:
  auto_validate: false
  validation_delay: 250ms
tasks:
  catalog:
    - title: Register business name
      category: legal
      priority: high
`
	if err := os.WriteFile(filepath.Join(dir, "launchpath.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.AutoValidate {
		t.Fatalf("auto_validate should be false")
	}
	if cfg.Pipeline.ValidationDelay.Std() != 250*time.Millisecond {
		t.Fatalf("validation delay %s, want 250ms", cfg.Pipeline.ValidationDelay.Std())
	}
	if len(cfg.Tasks.Catalog) != 1 {
		t.Fatalf("catalog length %d, want 1", len(cfg.Tasks.Catalog))
	}
}

func TestValidateRejectsBadCatalog(t *testing.T) {
	cases := []struct {
		name string
		yml  string
	}{
		{"empty catalog", "tasks:\n  catalog: []\n"},
		{"bad category", "tasks:\n  catalog:\n    - title: T\n      category: fiscal\n      priority: high\n"},
		{"bad priority", "tasks:\n  catalog:\n    - title: T\n      category: legal\n      priority: urgent\n"},
		{"missing title", "tasks:\n  catalog:\n    - title: \"\"\n      category: legal\n      priority: high\n"},
		{"negative delay", "pipeline:\n  grace_delay: -1s\ntasks:\n  catalog:\n    - title: T\n      category: legal\n      priority: high\n"},
	}
	for _, tc := range cases {
		if _, err := config.FromYAML([]byte(tc.yml)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
