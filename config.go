// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the sizing of a Manager.
type Config struct {
	// Capacity is the maximum number of concurrently accepted connections,
	// it is also the number of preallocated I/O contexts.
	Capacity int `yaml:"capacity"`
	// SegmentSize is the size of every receive and send segment.
	SegmentSize int `yaml:"segment_size"`
	// MaxFrameSize bounds the payload length of a frame in both directions.
	MaxFrameSize int `yaml:"max_frame_size"`
	// SendQueueSize bounds the queued outbound frames per connection.
	SendQueueSize int `yaml:"send_queue_size"`
	// Dispatchers is the number of event dispatch goroutines.
	Dispatchers int `yaml:"dispatchers"`
	// EventQueueSize is the channel size of every dispatcher.
	EventQueueSize int `yaml:"event_queue_size"`
	// AcceptRate limits accepted connections per second, 0 means unlimited.
	AcceptRate float64 `yaml:"accept_rate"`
	AcceptBurst int    `yaml:"accept_burst"`
	// ReuseAddr sets SO_REUSEADDR on the listener.
	ReuseAddr bool `yaml:"reuse_addr"`
	// NoDelay disables Nagle's algorithm on accepted connections.
	NoDelay bool `yaml:"no_delay"`
}

// DefaultConfig returns the recommended configuration. Zero numeric fields
// of a Config passed to New are taken from it, boolean fields are not.
func DefaultConfig() Config {
	return Config{
		Capacity:       1000,
		SegmentSize:    4096,
		MaxFrameSize:   DefaultMaxFrameSize,
		SendQueueSize:  1024,
		Dispatchers:    8,
		EventQueueSize: 1024,
		ReuseAddr:      true,
		NoDelay:        true,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.Capacity == 0 {
		c.Capacity = d.Capacity
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = d.SegmentSize
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.Dispatchers == 0 {
		c.Dispatchers = d.Dispatchers
	}
	if c.EventQueueSize == 0 {
		c.EventQueueSize = d.EventQueueSize
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = 1
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Capacity < 0:
		return fmt.Errorf("telepathy: capacity %d", c.Capacity)
	case c.SegmentSize < FrameHeaderSize:
		return fmt.Errorf("telepathy: segment size %d", c.SegmentSize)
	case c.MaxFrameSize < 0 || uint64(c.MaxFrameSize) > uint64(^uint32(0)):
		return fmt.Errorf("telepathy: max frame size %d", c.MaxFrameSize)
	case c.SendQueueSize < 0:
		return fmt.Errorf("telepathy: send queue size %d", c.SendQueueSize)
	case c.Dispatchers < 0:
		return fmt.Errorf("telepathy: dispatchers %d", c.Dispatchers)
	case c.EventQueueSize < 0:
		return fmt.Errorf("telepathy: event queue size %d", c.EventQueueSize)
	case c.AcceptRate < 0 || c.AcceptBurst < 0:
		return fmt.Errorf("telepathy: accept rate %v burst %d", c.AcceptRate, c.AcceptBurst)
	}
	return nil
}

// Duration wraps time.Duration for YAML unmarshalling from strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LoadConfig reads a YAML configuration file, missing fields keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("telepathy: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
