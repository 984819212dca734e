package commands

import (
	"fmt"

	"github.com/marmos91/shmcache/internal/bytesize"
	"github.com/marmos91/shmcache/internal/logger"
	"github.com/marmos91/shmcache/pkg/config"
	"github.com/marmos91/shmcache/pkg/shmcache"
)

// loadConfig loads the layered config and applies the --region/--size
// persistent flag overrides, which take precedence over everything else
// per the CLI-flags-first precedence documented on config.Config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if regionName != "" {
		cfg.Region.Name = regionName
	}
	if regionSize != "" {
		sz, err := bytesize.ParseByteSize(regionSize)
		if err != nil {
			return nil, fmt.Errorf("parsing --size: %w", err)
		}
		cfg.Region.Size = sz
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openCache loads configuration, initializes the logger, and attaches to
// the named region, returning a ready-to-use *shmcache.Cache. Callers are
// responsible for calling Close.
func openCache() (*shmcache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	c, err := shmcache.Open(cfg.Region.Name, int64(cfg.Region.Size))
	if err != nil {
		return nil, fmt.Errorf("opening region %q: %w", cfg.Region.Name, err)
	}
	return c, nil
}

// closeCache closes c and logs (but does not fail the command on) a close
// error, since the operation the command cares about has already
// succeeded or failed by the time Close runs.
func closeCache(c *shmcache.Cache) {
	if err := c.Close(); err != nil {
		logger.Warn("closing cache handle", "error", err)
	}
}
