package config

import (
	"os"
	"strings"
)

// normalize applies environment overrides for secrets and expands path fields.
func (c *Config) normalize() error {
	if strings.TrimSpace(c.API.APIKey) == "" {
		if value, ok := os.LookupEnv("CLIPFORGE_API_KEY"); ok {
			c.API.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Serve.Token) == "" {
		if value, ok := os.LookupEnv("CLIPFORGE_SERVE_TOKEN"); ok {
			c.Serve.Token = strings.TrimSpace(value)
		}
	}
	if value, ok := os.LookupEnv("CLIPFORGE_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = strings.TrimSpace(value)
	}

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")

	storePath, err := expandPath(c.Store.Path)
	if err != nil {
		return err
	}
	c.Store.Path = storePath

	return nil
}
