// bothbubbles-gateway - A headless BlueBubbles iMessage/SMS gateway.
// Copyright (C) 2026 BothBubbles
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package gateway

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the gateway's yaml configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// Database is the path of the local SQLite chat/handle cache.
	Database string `yaml:"database"`

	// SMSOnly forces every phone number to resolve as SMS without any
	// network probe. E-mail addresses still resolve to iMessage.
	// Hot-reloaded when the config file changes.
	SMSOnly bool `yaml:"sms_only"`

	// LogLevel is a zerolog level name. Hot-reloaded.
	LogLevel string `yaml:"log_level"`

	logLevel zerolog.Level
}

// ServerConfig points at the BlueBubbles server.
type ServerConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

type umConfig Config

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	err := node.Decode((*umConfig)(c))
	if err != nil {
		return err
	}
	return c.PostProcess()
}

func (c *Config) PostProcess() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("server.url must be an http(s) URL")
	}
	if c.Database == "" {
		c.Database = "bothbubbles.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	c.logLevel = level
	return nil
}

// Level returns the parsed zerolog level.
func (c *Config) Level() zerolog.Level {
	return c.logLevel
}

// LoadConfig reads and validates a yaml config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
