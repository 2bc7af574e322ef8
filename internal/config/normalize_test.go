// internal/config/normalize_test.go
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNormalize_Defaults(t *testing.T) {
	cfg := base()
	cfg.Bus.Kind = ""
	Normalize(cfg)

	if cfg.Bus.Kind != "rtu" || cfg.Bus.Parity != "N" || cfg.Bus.QueueDepth != 5 {
		t.Fatalf("bus defaults not applied: %+v", cfg.Bus)
	}
	if !reflect.DeepEqual(cfg.Discovery.Devices, []int{1, 2, 3}) {
		t.Fatalf("default poll list: got %v", cfg.Discovery.Devices)
	}
	if cfg.Discovery.DelayMs != 50 {
		t.Fatalf("discovery delay: got %d", cfg.Discovery.DelayMs)
	}
	if cfg.Scheduler.EvictionThreshold != 3 {
		t.Fatalf("eviction threshold: got %d", cfg.Scheduler.EvictionThreshold)
	}
	if cfg.Aggregator.WindowMs != 6100 || cfg.Aggregator.MaxPayload != 220 {
		t.Fatalf("aggregator defaults: %+v", cfg.Aggregator)
	}
	if len(cfg.Aggregator.Slots) != 8 || cfg.Aggregator.Slots[7] != 7 {
		t.Fatalf("slot table: got %v", cfg.Aggregator.Slots)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("log defaults: %+v", cfg.Log)
	}

	// DefaultDevices must not be aliased
	cfg.Discovery.Devices[0] = 99
	if DefaultDevices[0] != 1 {
		t.Fatalf("normalize aliased DefaultDevices")
	}
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := base()
	cfg.Discovery.Devices = []int{10}
	cfg.Aggregator.Slots = []int{5}
	cfg.Uplink.NATS.URL = "nats://x:4222"
	Normalize(cfg)

	if !reflect.DeepEqual(cfg.Discovery.Devices, []int{10}) {
		t.Fatalf("poll list overwritten: %v", cfg.Discovery.Devices)
	}
	if !reflect.DeepEqual(cfg.Aggregator.Slots, []int{5}) {
		t.Fatalf("slots overwritten: %v", cfg.Aggregator.Slots)
	}
	if cfg.Uplink.NATS.Subject != "uplink.node-1" {
		t.Fatalf("nats subject: got %q", cfg.Uplink.NATS.Subject)
	}
}

const sampleYAML = `
node:
  id: field-01
bus:
  kind: rtu
  address: /dev/ttyS1
  baud_rate: 19200
  rs485:
    enabled: true
discovery:
  devices: [1, 4]
aggregator:
  slots: [0, 1, 2]
uplink:
  nats:
    url: nats://broker:4222
`

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uplink.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("UPLINK_NATS_URL", "nats://override:4222")
	t.Setenv("UPLINK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bus.BaudRate != 19200 || !cfg.Bus.RS485.Enabled {
		t.Fatalf("bus not parsed: %+v", cfg.Bus)
	}
	if !reflect.DeepEqual(cfg.Discovery.Devices, []int{1, 4}) {
		t.Fatalf("devices: %v", cfg.Discovery.Devices)
	}
	if cfg.Uplink.NATS.URL != "nats://override:4222" {
		t.Fatalf("env override not applied: %q", cfg.Uplink.NATS.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level override: %q", cfg.Log.Level)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	if _, err := Parse([]byte("replicator:\n  units: []\n")); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if _, err := Parse(nil); err != nil {
		t.Fatalf("empty document: %v", err)
	}
}
