package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/wire"
)

const (
	RolePlain Role = "plain"
	RoleRoot  Role = "root"
	RoleSink  Role = "sink"

	DefaultRootID             rssi.NodeID = 1
	DefaultSlotTime                       = 15 * time.Millisecond
	DefaultWatchdogInitTime               = 5 * time.Second
	DefaultRootTolerance                  = 100 * time.Millisecond
	DefaultRfFailureThreshold uint8       = 3
	DefaultDedupCapacity                  = 256
)

var validRoles = map[Role]struct{}{
	RolePlain: {},
	RoleRoot:  {},
	RoleSink:  {},
}

// Role selects node behaviour at startup
type Role string

func (r Role) String() string {
	return string(r)
}

// Collects reports whether the role assembles frames for the sink
func (r Role) Collects() bool {
	return r == RoleRoot || r == RoleSink
}

// Duration is a time.Duration that reads and writes human-readable strings ("15ms", "5s")
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("protocol.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("protocol.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config is the fleet-wide protocol configuration. Every node of a fleet must
// run with the same values.
type Config struct {
	NodeCount          int            `yaml:"nodeCount" json:"nodeCount"`
	RootID             rssi.NodeID    `yaml:"rootId" json:"rootId"`
	Channels           []uint8        `yaml:"channels" json:"channels"`
	SlotTime           Duration       `yaml:"slotTime" json:"slotTime"`
	WatchdogInitTime   Duration       `yaml:"watchdogInitTime" json:"watchdogInitTime"`
	RootTolerance      Duration       `yaml:"rootTolerance" json:"rootTolerance"`
	Grace              Duration       `yaml:"grace" json:"grace"`
	RfFailureThreshold uint8          `yaml:"rfFailureThreshold" json:"rfFailureThreshold"`
	EarlyComplete      bool           `yaml:"earlyComplete" json:"earlyComplete"`
	DedupCapacity      int            `yaml:"dedupCapacity" json:"dedupCapacity"`
	Sentinels          rssi.Sentinels `yaml:"sentinels" json:"sentinels"`
}

// DefaultConfig returns a configuration for a three node fleet on four channels
func DefaultConfig() Config {
	return Config{
		NodeCount:          3,
		RootID:             DefaultRootID,
		Channels:           []uint8{11, 15, 20, 26},
		SlotTime:           Duration(DefaultSlotTime),
		WatchdogInitTime:   Duration(DefaultWatchdogInitTime),
		RootTolerance:      Duration(DefaultRootTolerance),
		RfFailureThreshold: DefaultRfFailureThreshold,
		DedupCapacity:      DefaultDedupCapacity,
		Sentinels:          rssi.DefaultSentinels(),
	}
}

// Validate checks the configuration and returns all problems found
func (c *Config) Validate() error {
	var errs []error

	if c.NodeCount < 1 || c.NodeCount > wire.MaxNodeCount {
		errs = append(errs, fmt.Errorf("nodeCount must be within 1..%d: %d given", wire.MaxNodeCount, c.NodeCount))
	}
	if int(c.RootID) >= c.NodeCount {
		errs = append(errs, fmt.Errorf("rootId %d is outside the fleet of %d nodes", c.RootID, c.NodeCount))
	}
	if len(c.Channels) == 0 {
		errs = append(errs, errors.New("at least one channel is required"))
	}
	if c.SlotTime <= 0 {
		errs = append(errs, fmt.Errorf("slotTime must be positive: %s given", c.SlotTime))
	}
	if c.WatchdogInitTime < 0 {
		errs = append(errs, fmt.Errorf("watchdogInitTime must not be negative: %s given", c.WatchdogInitTime))
	}
	if c.RootTolerance < 0 {
		errs = append(errs, fmt.Errorf("rootTolerance must not be negative: %s given", c.RootTolerance))
	}
	if c.Grace < 0 {
		errs = append(errs, fmt.Errorf("grace must not be negative: %s given", c.Grace))
	}
	if c.RfFailureThreshold == 0 {
		errs = append(errs, errors.New("rfFailureThreshold must be at least 1"))
	}
	if c.DedupCapacity < 0 {
		errs = append(errs, fmt.Errorf("dedupCapacity must not be negative: %d given", c.DedupCapacity))
	}
	if err := c.Sentinels.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateRole checks that the role fits the node identifier
func (c *Config) ValidateRole(id rssi.NodeID, role Role) error {
	if _, ok := validRoles[role]; !ok {
		return fmt.Errorf("unknown role '%s'", role)
	}
	if int(id) >= c.NodeCount {
		return fmt.Errorf("node %d is outside the fleet of %d nodes", id, c.NodeCount)
	}
	if id == c.RootID && !role.Collects() {
		return fmt.Errorf("node %d is the root and must have role '%s' or '%s', not '%s'", id, RoleRoot, RoleSink, role)
	}
	if id != c.RootID && role.Collects() {
		return fmt.Errorf("role '%s' is reserved for the root node %d", role, c.RootID)
	}
	return nil
}

// Dwell returns the channel window length for a role:
// SlotTime*NodeCount, plus RootTolerance at the root.
func (c *Config) Dwell(role Role) time.Duration {
	d := c.SlotTime.Std() * time.Duration(c.NodeCount)
	if role.Collects() {
		d += c.RootTolerance.Std()
	}
	return d
}

// SlotOffset returns when a node transmits its beacon, relative to the window start
func (c *Config) SlotOffset(id rssi.NodeID) time.Duration {
	return c.SlotTime.Std() * time.Duration(id)
}

// GraceTime returns how long a received message keeps the window open
func (c *Config) GraceTime() time.Duration {
	if c.Grace > 0 {
		return c.Grace.Std()
	}
	return c.SlotTime.Std()
}
