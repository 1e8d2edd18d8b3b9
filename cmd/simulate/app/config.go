package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radiosense/internal/sim"
)

// Config represents the simulation run configuration
type Config struct {
	Settings   Settings      `yaml:"settings"`
	Simulation sim.Config    `yaml:"simulation"`
	Storage    StorageConfig `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// StorageConfig represents storage settings. Frames are not stored when no
// database is given.
type StorageConfig struct {
	Database     string `yaml:"database"`
	MaxBatchSize int    `yaml:"maxBatchSize"`
}

// DefaultConfig returns a ten second run of the default fleet
func DefaultConfig() *Config {
	return &Config{
		Settings:   Settings{LogLevel: "warn"},
		Simulation: sim.DefaultConfig(),
		Storage:    StorageConfig{MaxBatchSize: maxBatchSize},
	}
}

// LoadConfig reads a YAML configuration file over the defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if c.Storage.MaxBatchSize <= 0 {
		return fmt.Errorf("storage: maxBatchSize must be positive: %d given", c.Storage.MaxBatchSize)
	}
	return nil
}
