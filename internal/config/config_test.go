package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Export.Quality != "medium" {
		t.Errorf("expected default quality medium, got %q", cfg.Export.Quality)
	}
	if cfg.Performance.Threading.RetryTimes != 3 {
		t.Errorf("expected default retry_times 3, got %d", cfg.Performance.Threading.RetryTimes)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte("export:\n  quality: high\nsubtitle:\n  max_chars_per_line: 15\n")
	if err := os.WriteFile(path, yamlBody, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Export.Quality != "high" {
		t.Errorf("expected overlaid quality high, got %q", cfg.Export.Quality)
	}
	if cfg.Subtitle.MaxCharsPerLine != 15 {
		t.Errorf("expected overlaid max_chars_per_line 15, got %d", cfg.Subtitle.MaxCharsPerLine)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte("nonsense_key: true\n")
	if err := os.WriteFile(path, yamlBody, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown config key, got nil")
	}
}

func TestLoadRejectsBadQuality(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte("export:\n  quality: potato\n")
	if err := os.WriteFile(path, yamlBody, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid export.quality, got nil")
	}
}

func TestMaxWorkersConfigured(t *testing.T) {
	auto := Threading{MaxWorkers: "auto"}
	if n, isAuto := auto.MaxWorkersConfigured(); !isAuto || n != 0 {
		t.Errorf("expected auto sizing, got n=%d auto=%v", n, isAuto)
	}

	fixed := Threading{MaxWorkers: "6"}
	if n, isAuto := fixed.MaxWorkersConfigured(); isAuto || n != 6 {
		t.Errorf("expected fixed 6, got n=%d auto=%v", n, isAuto)
	}

	bad := Threading{MaxWorkers: "not-a-number"}
	if _, isAuto := bad.MaxWorkersConfigured(); !isAuto {
		t.Error("expected fallback to auto on unparseable value")
	}
}
