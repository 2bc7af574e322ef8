// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
)

// helper to build a minimal valid config quickly
func base() *Config {
	return &Config{
		Node: NodeConfig{ID: "node-1"},
		Bus:  BusConfig{Kind: "rtu", Address: "/dev/ttyUSB0"},
	}
}

// ---- tests ----

func TestValidate_Minimal(t *testing.T) {
	if err := Validate(base()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown bus kind", func(c *Config) { c.Bus.Kind = "can" }, "bus.kind"},
		{"missing address", func(c *Config) { c.Bus.Address = "" }, "bus.address"},
		{"bad parity", func(c *Config) { c.Bus.Parity = "M" }, "bus.parity"},
		{"device id zero", func(c *Config) { c.Discovery.Devices = []int{0} }, "out of range"},
		{"device id too high", func(c *Config) { c.Discovery.Devices = []int{248} }, "out of range"},
		{"duplicate device", func(c *Config) { c.Discovery.Devices = []int{1, 2, 1} }, "listed twice"},
		{"too many slots", func(c *Config) { c.Aggregator.Slots = []int{0, 1, 2, 3, 4, 5, 6, 7, 8} }, "at most 8"},
		{"duplicate slot sensor", func(c *Config) { c.Aggregator.Slots = []int{0, 4, 4} }, "mapped to slots 1 and 2"},
		{"payload too small", func(c *Config) { c.Aggregator.MaxPayload = 6 }, "max_payload"},
		{"payload too large", func(c *Config) { c.Aggregator.MaxPayload = 256 }, "max_payload"},
		{"negative threshold", func(c *Config) { c.Scheduler.EvictionThreshold = -1 }, "eviction_threshold"},
		{"status memory without unit", func(c *Config) { c.StatusMemory.Endpoint = "10.0.0.1:502" }, "unit_id"},
		{"nats without subject", func(c *Config) {
			c.Node.ID = ""
			c.Uplink.NATS.URL = "nats://localhost:4222"
		}, "subject"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := base()
	cfg.Bus.Kind = "RTU"

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Kind != "RTU" {
		t.Fatalf("validate mutated bus.kind to %q", cfg.Bus.Kind)
	}
	if cfg.Discovery.Devices != nil {
		t.Fatalf("validate filled discovery.devices")
	}
}
