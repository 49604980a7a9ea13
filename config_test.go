// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfigDefaults(test *testing.T) {
	cfg := Config{Capacity: 5, AcceptRate: 10}
	cfg.setDefaults()

	d := DefaultConfig()
	if cfg.Capacity != 5 || cfg.SegmentSize != d.SegmentSize || cfg.MaxFrameSize != DefaultMaxFrameSize {
		test.Fatal("defaults", cfg)
	}
	if cfg.AcceptBurst != 1 {
		test.Fatal("accept burst", cfg.AcceptBurst)
	}
	if err := cfg.Validate(); err != nil {
		test.Fatal(err)
	}
}

func TestConfigValidate(test *testing.T) {
	bad := []Config{
		{Capacity: -1, SegmentSize: 8},
		{SegmentSize: 2},
		{SegmentSize: 8, MaxFrameSize: -1},
		{SegmentSize: 8, Dispatchers: -1},
		{SegmentSize: 8, AcceptRate: -1},
	}
	for i, cfg := range bad {
		if cfg.Validate() == nil {
			test.Fatal("invalid config accepted", i)
		}
	}
}

func TestLoadConfig(test *testing.T) {
	path := filepath.Join(test.TempDir(), "telepathy.yaml")
	data := []byte("capacity: 64\nsegment_size: 1024\nreuse_addr: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		test.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		test.Fatal(err)
	}
	if cfg.Capacity != 64 || cfg.SegmentSize != 1024 || cfg.ReuseAddr {
		test.Fatal("loaded", cfg)
	}
	if cfg.Dispatchers != DefaultConfig().Dispatchers || !cfg.NoDelay {
		test.Fatal("kept defaults", cfg)
	}

	if err := os.WriteFile(path, []byte("segment_size: 1\n"), 0o644); err != nil {
		test.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		test.Fatal("invalid file accepted")
	}
}

func TestDurationYAML(test *testing.T) {
	var v struct {
		Interval Duration `yaml:"interval"`
	}
	if err := yaml.Unmarshal([]byte("interval: 1500ms\n"), &v); err != nil {
		test.Fatal(err)
	}
	if v.Interval.Duration != 1500*time.Millisecond {
		test.Fatal("duration", v.Interval)
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		test.Fatal(err)
	}
	if string(out) != "interval: 1.5s\n" {
		test.Fatal("marshal", string(out))
	}

	if err := yaml.Unmarshal([]byte("interval: soon\n"), &v); err == nil {
		test.Fatal("bad duration accepted")
	}
}
