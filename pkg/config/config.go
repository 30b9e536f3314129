// Package config provides configuration loading and management for diondoct.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reader parameters
	Reader struct {
		// ElementType is the on-disk sample encoding of the RAW frames
		// (uint8, uint16 or uint32)
		ElementType string `yaml:"elementType"`

		// TrailingFilePolicy controls the lexicographically last RAW file:
		// "dropLast" discards it as an acquisition artifact, "keepAll"
		// keeps it for scanner variants without the artifact
		TrailingFilePolicy string `yaml:"trailingFilePolicy"`

		// Verbose enables the per-frame progress indicator
		Verbose bool `yaml:"verbose"`
	} `yaml:"reader"`

	// Processing parameters
	Processing struct {
		// Parallel dispatches frame reads across a worker pool
		Parallel bool `yaml:"parallel"`

		// Workers is the pool size for parallel reads
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// DumpPath, when set, receives the loaded float32 array as a
		// little-endian RAW dump
		DumpPath string `yaml:"dumpPath"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default reader parameters
	cfg.Reader.ElementType = "uint16"
	cfg.Reader.TrailingFilePolicy = "dropLast"
	cfg.Reader.Verbose = true

	// Set default processing parameters: frame reads are I/O-bound, so the
	// pool defaults to half the available cores with a floor of one
	cfg.Processing.Parallel = false
	cfg.Processing.Workers = max(1, runtime.NumCPU()/2)

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
