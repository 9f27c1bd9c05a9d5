package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.BufferSets != 3 || cfg.Pipeline.Backend != "soft" {
		t.Errorf("pipeline defaults %+v", cfg.Pipeline)
	}
	if cfg.Simulation.ForceScale != 150 || cfg.Simulation.Damping != 0.9 || cfg.Simulation.MinDistance != 0.0001 {
		t.Errorf("simulation defaults %+v", cfg.Simulation)
	}
	if cfg.World.Seed != 0xCAFEBABE {
		t.Errorf("seed = %#x", cfg.World.Seed)
	}
	if cfg.Derived.FenceTimeout != 2*time.Millisecond {
		t.Errorf("derived fence timeout %v", cfg.Derived.FenceTimeout)
	}
	if cfg.Derived.IndexTimeout != 50*time.Millisecond {
		t.Errorf("derived index timeout %v", cfg.Derived.IndexTimeout)
	}
	if cfg.Derived.WorldW32 != 20 || cfg.Derived.DT32 != float32(0.016) {
		t.Errorf("derived %+v", cfg.Derived)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	overlay := []byte("world:\n  particles: 1234\npipeline:\n  buffer_sets: 2\n  memory_limit_mb: 3\n")
	if err := os.WriteFile(path, overlay, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.World.Particles != 1234 || cfg.Pipeline.BufferSets != 2 {
		t.Errorf("overlay not applied: %+v %+v", cfg.World, cfg.Pipeline)
	}
	// Untouched keys keep their defaults.
	if cfg.World.Width != 20 || cfg.Pipeline.WorkgroupSize != 32 {
		t.Errorf("defaults lost: %+v %+v", cfg.World, cfg.Pipeline)
	}
	if cfg.Derived.MemoryLimit != 3<<20 {
		t.Errorf("memory limit %d", cfg.Derived.MemoryLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero particles", func(c *Config) { c.World.Particles = 0 }},
		{"over max", func(c *Config) { c.World.MaxParticles = 10; c.World.Particles = 11 }},
		{"flat world", func(c *Config) { c.World.Height = 0 }},
		{"one buffer set", func(c *Config) { c.Pipeline.BufferSets = 1 }},
		{"four buffer sets", func(c *Config) { c.Pipeline.BufferSets = 4 }},
		{"unknown backend", func(c *Config) { c.Pipeline.Backend = "vulkan" }},
		{"zero workgroup", func(c *Config) { c.Pipeline.WorkgroupSize = 0 }},
		{"negative timeout", func(c *Config) { c.Pipeline.FenceTimeoutMS = -1 }},
		{"negative index timeout", func(c *Config) { c.Pipeline.IndexTimeoutMS = -1 }},
		{"damping above one", func(c *Config) { c.Simulation.Damping = 1.1 }},
		{"negative damping", func(c *Config) { c.Simulation.Damping = -0.1 }},
		{"zero min distance", func(c *Config) { c.Simulation.MinDistance = 0 }},
		{"zero dt", func(c *Config) { c.Simulation.DT = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestWriteYAMLRoundtrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Simulation.TimeScale = 0.25
	cfg.Pipeline.BufferSets = 2

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Simulation.TimeScale != 0.25 || back.Pipeline.BufferSets != 2 {
		t.Errorf("roundtrip lost values: %+v %+v", back.Simulation, back.Pipeline)
	}
}

func TestCfgRequiresInit(t *testing.T) {
	old := global
	global = nil
	defer func() { global = old }()

	defer func() {
		if recover() == nil {
			t.Error("Cfg did not panic before Init")
		}
	}()
	Cfg()
}
