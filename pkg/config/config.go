package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given
const DefaultPath = "~/.config/cachecheck/config.yaml"

// Config represents the responder configuration
type Config struct {
	// Network type: "unix" or "tcp"
	Network string `yaml:"network"`

	// Address to listen on
	// For tcp: host:port (default: :8080)
	// For unix: socket path
	Address string `yaml:"address"`

	// LogLevel: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// LogFormat: text or json
	LogFormat string `yaml:"log_format"`

	// Hostname overrides the host identity reported on the page
	Hostname string `yaml:"hostname,omitempty"`

	// HTTP server timeouts, as Go duration strings
	ReadHeaderTimeout string `yaml:"read_header_timeout"`
	ReadTimeout       string `yaml:"read_timeout"`
	WriteTimeout      string `yaml:"write_timeout"`
	IdleTimeout       string `yaml:"idle_timeout"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`

	// PIDFile is written on startup and removed on shutdown when set
	PIDFile string `yaml:"pid_file,omitempty"`

	// Systemd enables sd_notify, watchdog and socket activation support
	Systemd bool `yaml:"systemd,omitempty"`
}

// Timeouts holds the parsed server timeouts
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Network:           "tcp",
		Address:           ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
		ReadHeaderTimeout: "5s",
		ReadTimeout:       "10s",
		WriteTimeout:      "10s",
		IdleTimeout:       "60s",
		ShutdownTimeout:   "10s",
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		expanded, err := homedir.Expand(DefaultPath)
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = expanded
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	} else {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		path = expanded
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Network {
	case "unix", "tcp":
		// Valid
	default:
		return fmt.Errorf("invalid network type: %s (must be 'unix' or 'tcp')", c.Network)
	}

	if c.Address == "" {
		return fmt.Errorf("address must not be empty")
	}

	if c.Network == "unix" {
		expanded, err := homedir.Expand(c.Address)
		if err != nil {
			return fmt.Errorf("failed to expand address: %w", err)
		}
		c.Address = expanded
	}

	if c.PIDFile != "" {
		expanded, err := homedir.Expand(c.PIDFile)
		if err != nil {
			return fmt.Errorf("failed to expand pid file: %w", err)
		}
		c.PIDFile = expanded
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
		// Valid
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	if _, err := c.Timeouts(); err != nil {
		return err
	}

	return nil
}

// Timeouts parses the configured server timeouts. Empty values mean no timeout.
func (c *Config) Timeouts() (Timeouts, error) {
	var t Timeouts
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"read_header_timeout", c.ReadHeaderTimeout, &t.ReadHeader},
		{"read_timeout", c.ReadTimeout, &t.Read},
		{"write_timeout", c.WriteTimeout, &t.Write},
		{"idle_timeout", c.IdleTimeout, &t.Idle},
		{"shutdown_timeout", c.ShutdownTimeout, &t.Shutdown},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return Timeouts{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		if d < 0 {
			return Timeouts{}, fmt.Errorf("invalid %s: must not be negative", f.name)
		}
		*f.dst = d
	}

	return t, nil
}
