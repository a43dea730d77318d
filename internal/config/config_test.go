package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 8787 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Specialists) != 2 || cfg.Specialists[0].ID != "engineering" {
		t.Errorf("specialists = %+v", cfg.Specialists)
	}
	if _, err := cfg.Profile("quality"); err != nil {
		t.Errorf("quality profile missing: %v", err)
	}
	if _, err := cfg.Profile("nope"); err == nil {
		t.Error("unknown profile must error")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg, err := Load(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("missing config must fall back to defaults: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskclaw.json")
	content := `{
		"server": {"port": 9999, "workspaceRoot": "` + dir + `/ws"},
		"models": {"profiles": {"quality": {"backend": "openai", "baseUrl": "http://example:1/v1", "model": "m1"}}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	mc, err := cfg.Profile("quality")
	if err != nil {
		t.Fatal(err)
	}
	if mc.Backend != "openai" || mc.Model != "m1" {
		t.Errorf("profile = %+v", mc)
	}
	if info, err := os.Stat(cfg.Server.WorkspaceRoot); err != nil || !info.IsDir() {
		t.Error("workspace root must be created on load")
	}
	// Untouched sections keep their defaults.
	if len(cfg.Specialists) != 2 {
		t.Errorf("specialists = %+v", cfg.Specialists)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "taskclaw.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 1234
	cfg.Server.WorkspaceRoot = filepath.Join(dir, "ws")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 1234 {
		t.Errorf("port = %d", loaded.Server.Port)
	}
}
