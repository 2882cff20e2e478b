package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clipforge/clipforge-go/internal/api"
	"github.com/clipforge/clipforge-go/internal/config"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logOnce sync.Once
	log     *zap.SugaredLogger
	logErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		// A .env file in the working directory is optional.
		_ = godotenv.Load()

		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*zap.SugaredLogger, error) {
	c.logOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logErr = err
			return
		}
		c.log, c.logErr = newLogger(cfg.Logging)
	})
	return c.log, c.logErr
}

// apiClient builds a backend client from the loaded configuration.
// The API key must be configured.
func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.API.APIKey) == "" {
		return nil, fmt.Errorf("api.api_key is not configured. Set CLIPFORGE_API_KEY or run 'clipforge config init'")
	}
	log, err := c.logger()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.RequestTimeout(), log), nil
}

func (c *commandContext) jsonMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}
