package main

import (
	"fmt"
	"strings"
	"sync"

	"reelboard/internal/config"
)

// commandContext lazily loads configuration and builds the daemon client
// shared by all subcommands.
type commandContext struct {
	configFlag *string
	addrFlag   *string

	mu     sync.Mutex
	cfg    *config.Config
	client *daemonClient
}

func newCommandContext(configFlag, addrFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, addrFlag: addrFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) daemonClient() (*daemonClient, error) {
	c.mu.Lock()
	if c.client != nil {
		client := c.client
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	addr := ""
	if c.addrFlag != nil {
		addr = strings.TrimSpace(*c.addrFlag)
	}
	if addr == "" {
		addr = cfg.Paths.APIBind
	}
	if addr == "" {
		return nil, fmt.Errorf("no daemon address configured (set paths.api_bind or pass --addr)")
	}

	c.mu.Lock()
	c.client = newDaemonClient(addr, cfg.Paths.APIToken)
	client := c.client
	c.mu.Unlock()
	return client, nil
}
