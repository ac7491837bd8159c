package config

import (
	"errors"
	"fmt"
	"strings"
)

var validAspectRatios = map[string]struct{}{
	"16:9": {},
	"9:16": {},
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateStoryboard(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateProvider() error {
	if c.Provider.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/reelboard/config.toml"
		}
		return fmt.Errorf("provider.api_key is required. Edit %s (create with 'reelboard config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Provider.BaseURL, "http://") && !strings.HasPrefix(c.Provider.BaseURL, "https://") {
		return fmt.Errorf("provider.base_url must be an http(s) URL, got %q", c.Provider.BaseURL)
	}
	return nil
}

func (c *Config) validateStoryboard() error {
	if _, ok := validAspectRatios[c.Storyboard.DefaultAspectRatio]; !ok {
		return fmt.Errorf("storyboard.default_aspect_ratio: unsupported value %q", c.Storyboard.DefaultAspectRatio)
	}
	if c.Storyboard.MaxSceneCharacters > c.Storyboard.MaxCharacters {
		return errors.New("storyboard.max_scene_characters cannot exceed storyboard.max_characters")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval > 300 {
		return errors.New("workflow.poll_interval must be 300 seconds or less")
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
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
