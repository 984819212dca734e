package config

import (
	"fmt"
	"strings"

	"github.com/marmos91/shmcache/internal/bytesize"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// minRegionSize mirrors region.MinRegionSize without importing pkg/region,
// which this package must stay independent of to avoid config depending on
// the engine it configures.
const minRegionSize = 16 * 1024 * 1024

// Validate checks cfg for internally inconsistent or out-of-range values.
func Validate(cfg *Config) error {
	if cfg.Region.Name == "" {
		return fmt.Errorf("region.name must not be empty")
	}
	if cfg.Region.Size != 0 && cfg.Region.Size < bytesize.ByteSize(minRegionSize) {
		return fmt.Errorf("region.size %s is below the minimum %s", cfg.Region.Size, bytesize.ByteSize(minRegionSize))
	}

	level := strings.ToLower(cfg.Logging.Level)
	if !validLogLevels[level] {
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", cfg.Logging.Level)
	}
	cfg.Logging.Level = level

	format := strings.ToLower(cfg.Logging.Format)
	if !validLogFormats[format] {
		return fmt.Errorf("logging.format %q is not one of text/json", cfg.Logging.Format)
	}
	cfg.Logging.Format = format

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must not be empty when metrics.enabled is true")
	}

	return nil
}
