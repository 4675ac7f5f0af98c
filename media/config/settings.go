package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds the server configuration read from a YAML file.
type Settings struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	PresetsDir    string `yaml:"presets_dir"`
	DefaultPreset string `yaml:"default_preset"`
	// ApplyDefault seeds the shared state from the default preset at startup.
	ApplyDefault bool   `yaml:"apply_default"`
	LogLevel     string `yaml:"log_level"`
	StreamBuffer int    `yaml:"stream_buffer"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		Host:          "localhost",
		Port:          8080,
		PresetsDir:    "presets",
		DefaultPreset: "default",
		ApplyDefault:  true,
		LogLevel:      "info",
		StreamBuffer:  256,
	}
}

// LoadSettings reads path over the defaults. An empty path or a missing file
// yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return s, fmt.Errorf("invalid port %d", s.Port)
	}
	if s.StreamBuffer <= 0 {
		s.StreamBuffer = DefaultSettings().StreamBuffer
	}
	return s, nil
}
