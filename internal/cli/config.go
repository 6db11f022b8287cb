package cli

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/matzehuels/pyshim/pkg/fetch"
	"github.com/matzehuels/pyshim/pkg/install"
	"github.com/matzehuels/pyshim/pkg/paths"
)

// envPrefix namespaces configuration environment variables, so the key
// "make_jobs" reads PYSHIM_MAKE_JOBS and "home" reads PYSHIM_HOME.
const envPrefix = "PYSHIM"

// Config is the manager configuration read from <home>/config.toml,
// PYSHIM_* environment variables, and flags.
type Config struct {
	Home                string        `mapstructure:"home"`
	MakeJobs            int           `mapstructure:"make_jobs"`
	EnableOptimizations bool          `mapstructure:"enable_optimizations"`
	Mirror              string        `mapstructure:"mirror"`
	ExtraPackages       []string      `mapstructure:"extra_packages"`
	AliasMode           string        `mapstructure:"alias_mode"`
	IndexTTL            time.Duration `mapstructure:"index_ttl"`
	OpenSSLPrefix       string        `mapstructure:"openssl_prefix"`
}

// loadConfig resolves the home directory first, since the config file
// lives inside it, then layers file values under env and flags.
func (c *CLI) loadConfig() error {
	v := c.v
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("make_jobs", runtime.NumCPU())
	v.SetDefault("enable_optimizations", false)
	v.SetDefault("mirror", fetch.DefaultMirror)
	v.SetDefault("extra_packages", []string{})
	v.SetDefault("alias_mode", "hardlink")
	v.SetDefault("index_ttl", fetch.DefaultIndexTTL)
	v.SetDefault("openssl_prefix", install.DefaultOpenSSLPrefix)

	home := v.GetString("home")
	if home == "" {
		layout, err := paths.FromEnv()
		if err != nil {
			return err
		}
		home = layout.Home
	}
	c.layout = paths.New(home)

	if _, err := os.Stat(c.layout.Config()); err == nil {
		v.SetConfigFile(c.layout.Config())
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", c.layout.Config(), err)
		}
		c.Logger.Debug("loaded config", "path", c.layout.Config())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cfg.Home = home
	if _, err := install.AliasInstallerFor(cfg.AliasMode); err != nil {
		return fmt.Errorf("alias_mode: %w", err)
	}
	if cfg.MakeJobs < 0 {
		return fmt.Errorf("make_jobs must not be negative, got %d", cfg.MakeJobs)
	}
	c.cfg = cfg
	return nil
}
