package app

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radiosense/internal/protocol"
)

const (
	defaultBufferCapacity = 64
	defaultFlushCount     = 32
)

// Config represents the main application configuration
type Config struct {
	Settings Settings        `yaml:"settings"`
	Protocol protocol.Config `yaml:"protocol"`
	Source   SourceConfig    `yaml:"source"`
	Storage  StorageConfig   `yaml:"storage"`
	API      APIConfig       `yaml:"api"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// SourceConfig selects where the host link stream comes from. Either a path
// (serial device, named pipe, capture file or "-" for stdin) or a command whose
// standard output carries the stream.
type SourceConfig struct {
	Path                 string   `yaml:"path"`
	Command              string   `yaml:"command"`
	Args                 []string `yaml:"args"`
	ParseErrorsThreshold uint8    `yaml:"parseErrorsThreshold"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory  string `yaml:"dataDirectory"`
	MaxBatchSize   int    `yaml:"maxBatchSize"`
	BufferCapacity int    `yaml:"bufferCapacity"`
	FlushCount     int    `yaml:"flushCount"`
}

// APIConfig represents the read-only HTTP API settings. The API is disabled
// when no listen address is given.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LoadConfig reads a YAML configuration file, fills in defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	config := Config{
		Settings: Settings{LogLevel: "info"},
		Protocol: protocol.DefaultConfig(),
		Storage: StorageConfig{
			MaxBatchSize:   maxBatchSize,
			BufferCapacity: defaultBufferCapacity,
			FlushCount:     defaultFlushCount,
		},
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration and returns all problems found
func (c *Config) Validate() error {
	var errs []error

	if err := c.Protocol.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch {
	case c.Source.Path == "" && c.Source.Command == "":
		errs = append(errs, errors.New("source: either path or command is required"))
	case c.Source.Path != "" && c.Source.Command != "":
		errs = append(errs, errors.New("source: path and command are mutually exclusive"))
	}

	if c.Storage.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("storage: maxBatchSize must be positive: %d given", c.Storage.MaxBatchSize))
	}
	if c.Storage.FlushCount <= 0 || c.Storage.FlushCount > c.Storage.BufferCapacity {
		errs = append(errs, fmt.Errorf("storage: flushCount must be within 1..bufferCapacity: %d given", c.Storage.FlushCount))
	}

	return errors.Join(errs...)
}
