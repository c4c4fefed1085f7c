package main

import (
	"time"

	"github.com/BurntSushi/toml"
)

type storeConfig struct {
	Listen string `toml:"listen"`
	URL    string `toml:"url"`
	Path   string `toml:"path"`
}

type config struct {
	Listen   string        `toml:"listen"`
	SidePath string        `toml:"side_path"`
	CacheTTL time.Duration `toml:"cache_ttl"`
	Store    storeConfig   `toml:"store"`
}

func (c *config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8787"
	}
	if c.SidePath == "" {
		c.SidePath = "sidedata"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
	if c.Store.Listen == "" {
		c.Store.Listen = "127.0.0.1:8788"
	}
	if c.Store.URL == "" {
		c.Store.URL = "http://127.0.0.1:8788"
	}
	if c.Store.Path == "" {
		c.Store.Path = "queuedata"
	}
}

func loadConfig(path string) (cfg config, err error) {
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return
}
