package app

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/radio"
	"github.com/roman-kulish/radiosense/internal/rssi"
)

// Config represents the node configuration
type Config struct {
	Settings Settings        `yaml:"settings"`
	Protocol protocol.Config `yaml:"protocol"`
	Node     NodeConfig      `yaml:"node"`
	Radio    radio.Config    `yaml:"radio"`
	Sink     SinkConfig      `yaml:"sink"`
	Status   StatusConfig    `yaml:"status"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// NodeConfig identifies this node in the fleet
type NodeConfig struct {
	ID   rssi.NodeID   `yaml:"id"`
	Role protocol.Role `yaml:"role"`
}

// SinkConfig selects where a collecting node writes frames: a serial device,
// a named pipe, a file or "-" for stdout. Frames are logged when no device is set.
type SinkConfig struct {
	Device string `yaml:"device"`
}

// StatusConfig represents the status endpoint settings. The endpoint is
// disabled when no listen address is given.
type StatusConfig struct {
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
		Node:     NodeConfig{Role: protocol.RolePlain},
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
	} else if err = c.Protocol.ValidateRole(c.Node.ID, c.Node.Role); err != nil {
		errs = append(errs, err)
	}

	if err := c.Radio.Validate(); err != nil {
		errs = append(errs, err)
	}

	for _, l := range c.Radio.Links {
		if l.ID == uint8(c.Node.ID) {
			errs = append(errs, fmt.Errorf("radio: node %d cannot link to itself", l.ID))
		}
		if int(l.ID) >= c.Protocol.NodeCount {
			errs = append(errs, fmt.Errorf("radio: link to node %d is outside the fleet of %d nodes", l.ID, c.Protocol.NodeCount))
		}
	}

	if c.Sink.Device != "" && !c.Node.Role.Collects() {
		errs = append(errs, errors.New("sink: only the root collects frames"))
	}

	return errors.Join(errs...)
}
