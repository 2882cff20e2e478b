package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateChannel(); err != nil {
		return err
	}
	if err := c.validateServe(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url must be set")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must start with http:// or https://, got %q", c.API.BaseURL)
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("api.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateChannel() error {
	if c.Channel.ReconnectDelayMs <= 0 {
		return errors.New("channel.reconnect_delay_ms must be positive")
	}
	if c.Channel.MaxReconnectAttempts <= 0 {
		return errors.New("channel.max_reconnect_attempts must be positive")
	}
	if c.Channel.PingIntervalMs <= 0 {
		return errors.New("channel.ping_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateServe() error {
	if strings.TrimSpace(c.Serve.Bind) == "" {
		return errors.New("serve.bind must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}
