package cli

import (
	"fmt"
	"net"

	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/config"
)

// targetURL returns the URL argument, or one derived from the daemon config
func targetURL(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}
	return configURL(cfg)
}

// configURL maps a tcp listen address to a URL on this machine
func configURL(cfg *config.Config) (string, error) {
	if cfg.Network != "tcp" {
		return "", fmt.Errorf("daemon listens on a %s socket; pass a URL explicitly", cfg.Network)
	}

	host, port, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", cfg.Address, err)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/", nil
}
