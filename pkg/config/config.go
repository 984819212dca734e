// Package config loads shmcache's layered configuration: CLI flags override
// environment variables, which override the YAML config file, which
// overrides built-in defaults. Mirrors the teacher's pkg/config layering
// (viper + mapstructure decode hooks + yaml.v3), trimmed to this cache's
// much smaller surface.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/shmcache/internal/bytesize"
)

// Config is shmcache's full configuration.
//
// Sources, in order of precedence (highest first):
//  1. CLI flags
//  2. Environment variables (SHMCACHE_*)
//  3. Configuration file (YAML)
//  4. Defaults
type Config struct {
	// Region configures the shared-memory segment itself.
	Region RegionConfig `mapstructure:"region" yaml:"region"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the optional Prometheus exporter.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// RegionConfig names and sizes the shared-memory region. Only the name and
// the total size are configurable; the region's other tunables (key
// length, chunk sizes, item and slot counts) are fixed constants in
// pkg/region.
type RegionConfig struct {
	// Name is the SysV IPC key source; all processes pointed at the same
	// Name share the same cache.
	Name string `mapstructure:"name" yaml:"name"`

	// Size is the total region size. Supports human-readable sizes like
	// "128Mi". Must be 0 (use the built-in default) or at least 16Mi.
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size"`
}

// LoggingConfig controls logging behavior, matching the teacher's
// internal/logger configuration surface.
type LoggingConfig struct {
	// Level is the minimum log level to output: debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is the log line format: text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds the settings for a Prometheus metrics HTTP server.
// They are loaded and validated, but nothing in this repository starts a
// server or serves an endpoint from them.
type MetricsConfig struct {
	// Enabled records whether a metrics endpoint is wanted.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the listen address for a metrics HTTP server, e.g.
	// ":9090".
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Load reads configuration from configPath (or the default location if
// empty), layers in environment variables and defaults, and validates the
// result. CLI flag overrides are applied by the caller (cmd/shmcache) after
// Load returns, via direct field assignment from cobra flag values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(byteSizeDecodeHook())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	} else {
		applyEnvOverrides(cfg)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Region: RegionConfig{
			Name: "shmcache",
			Size: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// applyEnvOverrides fills cfg from SHMCACHE_* environment variables when no
// config file was found, since viper.AutomaticEnv only participates in
// Unmarshal when a config file (or at least one explicit Set/BindEnv key)
// has populated viper's internal key set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHMCACHE_REGION_NAME"); v != "" {
		cfg.Region.Name = v
	}
	if v := os.Getenv("SHMCACHE_REGION_SIZE"); v != "" {
		if sz, err := bytesize.ParseByteSize(v); err == nil {
			cfg.Region.Size = sz
		}
	}
	if v := os.Getenv("SHMCACHE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SHMCACHE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SHMCACHE_METRICS_ENABLED"); v == "true" || v == "1" {
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("SHMCACHE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SHMCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: reading config file: %w", err)
	}
	return true, nil
}

// byteSizeDecodeHook lets config files and env vars write human-readable
// sizes ("128Mi") into bytesize.ByteSize fields.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory for %q: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing %q: %w", path, err)
	}
	return nil
}

// ConfigDir returns the directory shmcache looks for config.yaml in:
// $XDG_CONFIG_HOME/shmcache, or ~/.config/shmcache, or "." as a last resort.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shmcache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "shmcache")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ConfigExists reports whether a file already exists at path.
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// InitConfigToPath writes a fresh default config file to path, refusing to
// overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force && ConfigExists(path) {
		return fmt.Errorf("config: %q already exists (use --force to overwrite)", path)
	}
	return Save(defaultConfig(), path)
}

// InitConfig writes a fresh default config file to the default location and
// returns the path it wrote to.
func InitConfig(force bool) (string, error) {
	path := DefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}
