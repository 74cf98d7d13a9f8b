package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm/hxlive"
)

// Config is the hxlive client configuration.
type Config struct {
	Cookie    CookieConfig  `yaml:"cookie"`
	Reconnect time.Duration `yaml:"reconnect"`
	ChunkSize int           `yaml:"chunk_size"`
	Timeout   time.Duration `yaml:"timeout"`
	Output    OutputConfig  `yaml:"output"`
	Log       LogConfig     `yaml:"log"`
}

// CookieConfig names the session cookie.
type CookieConfig struct {
	Name string        `yaml:"name"`
	TTL  time.Duration `yaml:"ttl"`
}

// OutputConfig controls how the page is printed.
type OutputConfig struct {
	Format string `yaml:"format"` // markdown | html
	Domain string `yaml:"domain"` // base for relative links in markdown
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("hxlive: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, cfg.validate()
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Cookie.Name == "" {
		c.Cookie.Name = hxlive.DefaultCookieName
	}
	if c.Cookie.TTL <= 0 {
		c.Cookie.TTL = hxlive.DefaultCookieTTL
	}
	if c.Reconnect <= 0 {
		c.Reconnect = hxlive.DefaultReconnectDelay
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = hxlive.DefaultChunkSize
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Output.Format == "" {
		c.Output.Format = "markdown"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Output.Format {
	case "markdown", "html":
	default:
		return fmt.Errorf("hxlive: unknown output format %q", c.Output.Format)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("hxlive: log level: %w", err)
	}
	return lvl, nil
}

// Options turns the configuration into runtime options.
func (c *Config) Options() []hxlive.Option {
	return []hxlive.Option{
		hxlive.WithCookie(c.Cookie.Name, c.Cookie.TTL),
		hxlive.WithReconnectDelay(c.Reconnect),
		hxlive.WithChunkSize(c.ChunkSize),
	}
}
