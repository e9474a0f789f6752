package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration file. All fields have working
// defaults; a missing file runs with them.
type Config struct {
	ListenAddr         string `yaml:"listen_addr"`
	DBPath             string `yaml:"db_path"`
	LogLevel           string `yaml:"log_level"`
	Env                string `yaml:"env"`
	EventRetentionDays int    `yaml:"event_retention_days"`

	AIChat struct {
		ShortcutEnabled bool `yaml:"shortcut_enabled"`
		SettingVisible  bool `yaml:"setting_visible"`
	} `yaml:"ai_chat"`

	// FreemiumPIR gates the freemium Personal Information Removal banner
	// widget.
	FreemiumPIR bool `yaml:"freemium_pir"`
}

func defaultConfig() Config {
	cfg := Config{
		ListenAddr:         ":8090",
		DBPath:             "data/ntp.db",
		LogLevel:           "info",
		Env:                "production",
		EventRetentionDays: 30,
	}
	cfg.AIChat.ShortcutEnabled = true
	cfg.AIChat.SettingVisible = true
	return cfg
}

// loadConfig reads the YAML config at path. An empty path or missing file
// returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
