package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/radio"
	"github.com/roman-kulish/radiosense/internal/rssi"
)

const (
	DefaultAirtime  = time.Millisecond
	DefaultDuration = 10 * time.Second
)

// Link is a directed edge of the simulated medium: To hears From at RSSI dBm
type Link struct {
	From rssi.NodeID `yaml:"from" json:"from"`
	To   rssi.NodeID `yaml:"to" json:"to"`
	RSSI int8        `yaml:"rssi" json:"rssi"`
	Loss float64     `yaml:"loss" json:"loss"` // probability a transmission is not heard, 0-1
}

// Node overrides the defaults of one simulated node
type Node struct {
	ID   rssi.NodeID       `yaml:"id" json:"id"`
	Boot protocol.Duration `yaml:"boot" json:"boot"` // power-on time after the simulation starts
	Dead bool              `yaml:"dead" json:"dead"` // never powers on
}

// Config describes a simulated fleet. Without links every node hears every
// other node at radio.DefaultLinkRSSI.
type Config struct {
	Protocol protocol.Config   `yaml:"protocol" json:"protocol"`
	Duration protocol.Duration `yaml:"duration" json:"duration"`
	Airtime  protocol.Duration `yaml:"airtime" json:"airtime"`
	Seed     uint64            `yaml:"seed" json:"seed"`
	Links    []Link            `yaml:"links" json:"links"`
	Nodes    []Node            `yaml:"nodes" json:"nodes"`
}

// DefaultConfig returns a fully meshed fleet with the default protocol configuration
func DefaultConfig() Config {
	return Config{
		Protocol: protocol.DefaultConfig(),
		Duration: protocol.Duration(DefaultDuration),
		Airtime:  protocol.Duration(DefaultAirtime),
	}
}

// Validate checks the fleet description against the protocol configuration
func (c *Config) Validate() error {
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("sim.Config: protocol: %w", err)
	}

	var errs []error
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("sim.Config: duration must be positive: %s given", c.Duration))
	} else if c.Duration <= c.Protocol.WatchdogInitTime {
		// no window opens before the startup watchdog fires
		errs = append(errs, fmt.Errorf("sim.Config: duration %s must exceed watchdogInitTime %s", c.Duration, c.Protocol.WatchdogInitTime))
	}
	if c.Airtime < 0 {
		errs = append(errs, fmt.Errorf("sim.Config: airtime must not be negative: %s given", c.Airtime))
	}

	n := c.Protocol.NodeCount
	for _, l := range c.Links {
		if int(l.From) >= n || int(l.To) >= n {
			errs = append(errs, fmt.Errorf("sim.Config: link %d->%d is outside the fleet of %d nodes", l.From, l.To, n))
		}
		if l.From == l.To {
			errs = append(errs, fmt.Errorf("sim.Config: link %d->%d loops back", l.From, l.To))
		}
		if l.RSSI > 0 {
			errs = append(errs, fmt.Errorf("sim.Config: RSSI of link %d->%d must not be positive: %d given", l.From, l.To, l.RSSI))
		}
		if l.Loss < 0 || l.Loss > 1 {
			errs = append(errs, fmt.Errorf("sim.Config: loss of link %d->%d must be between 0 and 1: %f given", l.From, l.To, l.Loss))
		}
	}

	seen := make(map[rssi.NodeID]struct{}, len(c.Nodes))
	for _, node := range c.Nodes {
		if int(node.ID) >= n {
			errs = append(errs, fmt.Errorf("sim.Config: node %d is outside the fleet of %d nodes", node.ID, n))
		}
		if _, ok := seen[node.ID]; ok {
			errs = append(errs, fmt.Errorf("sim.Config: node %d is listed twice", node.ID))
		}
		seen[node.ID] = struct{}{}

		if node.Boot < 0 {
			errs = append(errs, fmt.Errorf("sim.Config: boot time of node %d must not be negative: %s given", node.ID, node.Boot))
		}
		if node.Dead && node.ID == c.Protocol.RootID {
			errs = append(errs, fmt.Errorf("sim.Config: root node %d cannot be dead", node.ID))
		}
	}

	return errors.Join(errs...)
}

// links returns the outgoing links of every node, in configuration order
func (c *Config) links() map[rssi.NodeID][]Link {
	out := make(map[rssi.NodeID][]Link)
	if len(c.Links) > 0 {
		for _, l := range c.Links {
			out[l.From] = append(out[l.From], l)
		}
		return out
	}

	for from := range c.Protocol.NodeCount {
		for to := range c.Protocol.NodeCount {
			if from == to {
				continue
			}
			id := rssi.NodeID(from)
			out[id] = append(out[id], Link{From: id, To: rssi.NodeID(to), RSSI: radio.DefaultLinkRSSI})
		}
	}
	return out
}

func (c *Config) node(id rssi.NodeID) Node {
	for _, node := range c.Nodes {
		if node.ID == id {
			return node
		}
	}
	return Node{ID: id}
}
