package radio

import (
	"errors"
	"fmt"
	"net"
)

const (
	DefaultLinkRSSI int8 = -60
	MaxDatagramSize      = 512
)

// Link describes how this node hears a peer
type Link struct {
	ID      uint8   `yaml:"id" json:"id"`
	Address string  `yaml:"address" json:"address"` // host:port the peer listens on
	RSSI    int8    `yaml:"rssi" json:"rssi"`       // signal strength this node measures for the peer, dBm
	Jitter  uint8   `yaml:"jitter" json:"jitter"`   // +/- dBm added to every reading
	Loss    float64 `yaml:"loss" json:"loss"`       // probability a datagram from the peer is lost, 0-1
}

// Config configures the UDP emulated radio. Every node of the fleet runs one;
// a transmission reaches the peers listed in Links, a reception is accepted only
// from peers listed in Links.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`
	Links  []Link `yaml:"links" json:"links"`
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := net.ResolveUDPAddr("udp", c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("radio.Config: invalid listen address '%s': %w", c.Listen, err))
	}

	seen := make(map[uint8]struct{}, len(c.Links))
	for _, l := range c.Links {
		if _, ok := seen[l.ID]; ok {
			errs = append(errs, fmt.Errorf("radio.Config: duplicate link to node %d", l.ID))
		}
		seen[l.ID] = struct{}{}

		if _, err := net.ResolveUDPAddr("udp", l.Address); err != nil {
			errs = append(errs, fmt.Errorf("radio.Config: invalid address of node %d '%s': %w", l.ID, l.Address, err))
		}
		if l.RSSI > 0 {
			errs = append(errs, fmt.Errorf("radio.Config: RSSI of node %d must not be positive: %d given", l.ID, l.RSSI))
		}
		if l.Loss < 0 || l.Loss > 1 {
			errs = append(errs, fmt.Errorf("radio.Config: loss of node %d must be between 0 and 1: %f given", l.ID, l.Loss))
		}
	}

	if len(c.Links) == 0 {
		errs = append(errs, errors.New("radio.Config: at least one link is required"))
	}

	return errors.Join(errs...)
}
