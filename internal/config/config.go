// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = 7002
	defaultScanInterval  = time.Minute
	defaultRetryDelay    = 3 * time.Second
	defaultThrottleDelay = 150 * time.Millisecond
)

// Config is the top-level daemon configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Cache     Cache     `yaml:"cache"`
	Accounts  []Account `yaml:"accounts"`
	Discovery Discovery `yaml:"discovery"`
}

// Server configures the daemon's HTTP surface.
type Server struct {
	Port int `yaml:"port"`
}

// Cache configures the shared cache store and the scan schedule.
type Cache struct {
	// Backend is "memory" or "leveldb".
	Backend string `yaml:"backend"`
	// Path is the leveldb directory; ignored for memory.
	Path     string `yaml:"path"`
	Interval string `yaml:"interval"`

	interval time.Duration
}

// ScanInterval is the parsed interval between scheduled passes.
func (c Cache) ScanInterval() time.Duration {
	return c.interval
}

// Account holds the OpenStack credentials for one account and the
// regions cached under it.
type Account struct {
	Name          string   `yaml:"name"`
	AuthURL       string   `yaml:"auth-url"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	TenantName    string   `yaml:"tenant-name"`
	Domain        string   `yaml:"domain"`
	UserDomain    string   `yaml:"user-domain"`
	ProjectDomain string   `yaml:"project-domain"`
	AuthVersion   int      `yaml:"auth-version"`
	Regions       []string `yaml:"regions"`
}

// Discovery configures the discovery registry integration. An empty
// URL means the account has no discovery integration and status
// updates will be refused.
type Discovery struct {
	URL           string `yaml:"url"`
	RetryDelay    string `yaml:"retry-delay"`
	ThrottleDelay string `yaml:"throttle-delay"`

	retryDelay    time.Duration
	throttleDelay time.Duration
}

// ParsedRetryDelay is the parsed base delay between registry retries.
func (d Discovery) ParsedRetryDelay() time.Duration {
	return d.retryDelay
}

// ParsedThrottleDelay is the parsed pause between instances.
func (d Discovery) ParsedThrottleDelay() time.Duration {
	return d.throttleDelay
}

// Load reads, parses and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading config %q", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Annotatef(err, "parsing config %q", path)
	}
	if err := cfg.finish(); err != nil {
		return nil, errors.Trace(err)
	}
	return &cfg, nil
}

// finish applies defaults and validates the parsed configuration.
func (c *Config) finish() error {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	switch c.Cache.Backend {
	case "memory":
	case "leveldb":
		if c.Cache.Path == "" {
			return errors.NotValidf("leveldb backend without cache.path")
		}
	default:
		return errors.NotValidf("cache backend %q", c.Cache.Backend)
	}

	var err error
	if c.Cache.interval, err = parseDuration(c.Cache.Interval, defaultScanInterval); err != nil {
		return errors.Annotate(err, "cache.interval")
	}
	if c.Discovery.retryDelay, err = parseDuration(c.Discovery.RetryDelay, defaultRetryDelay); err != nil {
		return errors.Annotate(err, "discovery.retry-delay")
	}
	if c.Discovery.throttleDelay, err = parseDuration(c.Discovery.ThrottleDelay, defaultThrottleDelay); err != nil {
		return errors.Annotate(err, "discovery.throttle-delay")
	}

	if len(c.Accounts) == 0 {
		return errors.NotValidf("config without accounts")
	}
	seen := make(map[string]bool)
	for i, account := range c.Accounts {
		if err := account.validate(); err != nil {
			return errors.Annotatef(err, "accounts[%d]", i)
		}
		if seen[account.Name] {
			return errors.NotValidf("duplicate account %q", account.Name)
		}
		seen[account.Name] = true
	}
	return nil
}

func (a Account) validate() error {
	if a.Name == "" {
		return errors.NotValidf("account without name")
	}
	if a.AuthURL == "" {
		return errors.NotValidf("account %q without auth-url", a.Name)
	}
	if a.Username == "" || a.Password == "" {
		return errors.NotValidf("account %q without credentials", a.Name)
	}
	if len(a.Regions) == 0 {
		return errors.NotValidf("account %q without regions", a.Name)
	}
	if a.AuthVersion != 0 && a.AuthVersion != 2 && a.AuthVersion != 3 {
		return errors.NotValidf("account %q auth-version %d", a.Name, a.AuthVersion)
	}
	return nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if d <= 0 {
		return 0, errors.NotValidf("non-positive duration %q", value)
	}
	return d, nil
}
