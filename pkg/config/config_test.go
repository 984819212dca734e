package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenNoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region.Name != "shmcache" {
		t.Errorf("Region.Name = %q, want default %q", cfg.Region.Name, "shmcache")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
region:
  name: my-cache
  size: 64Mi
logging:
  level: DEBUG
  format: json
metrics:
  enabled: true
  addr: ":9999"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region.Name != "my-cache" {
		t.Errorf("Region.Name = %q, want %q", cfg.Region.Name, "my-cache")
	}
	if cfg.Region.Size != 64*1024*1024 {
		t.Errorf("Region.Size = %d, want %d", cfg.Region.Size, 64*1024*1024)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q (normalized lowercase)", cfg.Logging.Level, "debug")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Metrics.Addr != ":9999" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9999")
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "logging:\n  level: loud\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with an invalid log level error = nil, want error")
	}
}

func TestLoadRejectsRegionSizeBelowMinimum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "region:\n  size: 1Mi\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with an undersized region.size error = nil, want error")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := defaultConfig()
	cfg.Region.Name = "roundtrip"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Region.Name != "roundtrip" {
		t.Errorf("Region.Name = %q, want %q", loaded.Region.Name, "roundtrip")
	}
}

func TestInitConfigToPathRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath() first call error = %v", err)
	}
	if err := InitConfigToPath(path, false); err == nil {
		t.Error("InitConfigToPath() second call without force error = nil, want error")
	}
	if err := InitConfigToPath(path, true); err != nil {
		t.Errorf("InitConfigToPath() with force error = %v", err)
	}
}

func TestConfigExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if ConfigExists(path) {
		t.Error("ConfigExists() = true before the file is created")
	}
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath() error = %v", err)
	}
	if !ConfigExists(path) {
		t.Error("ConfigExists() = false after the file is created")
	}
}

func TestValidateRejectsEmptyRegionName(t *testing.T) {
	cfg := defaultConfig()
	cfg.Region.Name = ""
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with empty region name error = nil, want error")
	}
}

func TestValidateRejectsMetricsEnabledWithoutAddr(t *testing.T) {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ""
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with metrics enabled and empty addr error = nil, want error")
	}
}
