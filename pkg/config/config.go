// Package config provides configuration loading and management for scanchannels.
// It handles loading configuration from YAML files and provides default values
// matching the lab's channel and rotation tables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ChannelConfig describes one fluorescence channel in the YAML file
type ChannelConfig struct {
	// Index is the 1-based channel number inside the scan
	Index int `yaml:"index"`

	// Label is the biological marker imaged by the channel
	Label string `yaml:"label"`

	// Tint is the hex color (#rrggbb) the channel is rendered with
	Tint string `yaml:"tint"`

	// Threshold is the normalized noise floor in [0,1)
	Threshold float64 `yaml:"threshold"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Channels []ChannelConfig `yaml:"channels"`

	// Rotations maps a dataset identifier to counter-clockwise quarter turns
	Rotations map[string]int `yaml:"rotations"`

	Paths struct {
		// FlatInput holds single-plane scans
		FlatInput string `yaml:"flatInput"`

		// FlatOutput receives <dataset>_channel<N>.png files
		FlatOutput string `yaml:"flatOutput"`

		// DetailedInput holds Z-stack scans, possibly in nested directories
		DetailedInput string `yaml:"detailedInput"`

		// DetailedOutput receives <dataset>/channel<N>/slice<Z>.png trees
		DetailedOutput string `yaml:"detailedOutput"`
	} `yaml:"paths"`

	Processing struct {
		// Workers is the number of datasets processed concurrently
		Workers int `yaml:"workers"`

		// Extensions lists the scan file extensions picked up by the batch driver
		Extensions []string `yaml:"extensions"`
	} `yaml:"processing"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`

		// File enables a rotating log file when set
		File    string `yaml:"file"`
		MaxSize int    `yaml:"maxSize"` // megabytes
		MaxAge  int    `yaml:"maxAge"`  // days
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Channels = []ChannelConfig{
		{Index: 1, Label: "ASE", Tint: "#ffffff", Threshold: 6.0 / 255},
		{Index: 2, Label: "GFP", Tint: "#00ff64", Threshold: 6.0 / 200},
		{Index: 3, Label: "aSMA", Tint: "#ff0000", Threshold: 40.0 / 230},
		{Index: 4, Label: "DAPI", Tint: "#6464ff", Threshold: 10.0 / 230},
	}

	cfg.Rotations = map[string]int{
		"week0": 3,
		"week1": 2,
		"week2": 1,
		"week3": 3,
	}

	cfg.Paths.FlatInput = filepath.Join("static", "czi_images")
	cfg.Paths.FlatOutput = filepath.Join("static", "processed")
	cfg.Paths.DetailedInput = filepath.Join("static", "czi_images_detailed")
	cfg.Paths.DetailedOutput = filepath.Join("static", "processed_detailed")

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.Extensions = []string{".scn", ".tif", ".tiff"}

	cfg.Log.Level = "info"
	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// A rotations table in the file replaces the defaults instead of
	// merging into them.
	var keys map[string]yaml.Node
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if _, ok := keys["rotations"]; ok {
		cfg.Rotations = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the channel and rotation tables and processing settings.
func (c *Config) Validate() error {
	if _, err := c.ChannelTable(); err != nil {
		return err
	}
	if _, err := c.RotationTable(); err != nil {
		return err
	}
	if c.Processing.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Processing.Workers)
	}
	return nil
}

// ChannelTable builds the typed channel lookup from the YAML entries.
func (c *Config) ChannelTable() (ChannelTable, error) {
	channels := make([]Channel, 0, len(c.Channels))
	for _, cc := range c.Channels {
		tint, err := ParseTint(cc.Tint)
		if err != nil {
			return ChannelTable{}, fmt.Errorf("channel %d: %w", cc.Index, err)
		}
		channels = append(channels, Channel{
			Index:     cc.Index,
			Label:     cc.Label,
			Tint:      tint,
			Threshold: cc.Threshold,
		})
	}
	return NewChannelTable(channels...)
}

// RotationTable builds the typed rotation lookup from the YAML map.
func (c *Config) RotationTable() (RotationTable, error) {
	return NewRotationTable(c.Rotations)
}
