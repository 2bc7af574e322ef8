// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

const (
	maxDeviceID  = 247
	maxSlots     = 8
	minPayload   = 7 // header plus one length byte
	maxPayload   = 255
	maxQueueSize = 64
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Bus.Kind) {
	case "", "rtu", "ascii", "tcp":
	default:
		return fmt.Errorf("bus.kind %q: must be rtu, ascii or tcp", cfg.Bus.Kind)
	}

	if cfg.Bus.Address == "" {
		return fmt.Errorf("bus.address is required")
	}

	switch strings.ToUpper(cfg.Bus.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("bus.parity %q: must be N, E or O", cfg.Bus.Parity)
	}

	if cfg.Bus.QueueDepth < 0 || cfg.Bus.QueueDepth > maxQueueSize {
		return fmt.Errorf("bus.queue_depth %d: must be 0..%d", cfg.Bus.QueueDepth, maxQueueSize)
	}

	if err := nonNegative(map[string]int{
		"bus.timeout_ms":                     cfg.Bus.TimeoutMs,
		"bus.idle_timeout_ms":                cfg.Bus.IdleTimeoutMs,
		"bus.rs485.delay_rts_before_send_ms": cfg.Bus.RS485.DelayRtsBeforeSendMs,
		"bus.rs485.delay_rts_after_send_ms":  cfg.Bus.RS485.DelayRtsAfterSendMs,
		"discovery.timeout_ms":               cfg.Discovery.TimeoutMs,
		"discovery.delay_ms":                 cfg.Discovery.DelayMs,
		"scheduler.request_timeout_ms":       cfg.Scheduler.RequestTimeoutMs,
		"scheduler.idle_sleep_ms":            cfg.Scheduler.IdleSleepMs,
		"scheduler.eviction_threshold":       cfg.Scheduler.EvictionThreshold,
		"aggregator.window_ms":               cfg.Aggregator.WindowMs,
		"uplink.nats.reconnect_wait_ms":      cfg.Uplink.NATS.ReconnectWaitMs,
		"uplink.ingest.timeout_ms":           cfg.Uplink.Ingest.TimeoutMs,
		"status_memory.timeout_ms":           cfg.StatusMemory.TimeoutMs,
		"status_memory.stale_after_ms":       cfg.StatusMemory.StaleAfterMs,
	}); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// DISCOVERY POLL LIST
	// ------------------------------------------------------------

	seen := make(map[int]struct{})
	for _, id := range cfg.Discovery.Devices {
		if id < 1 || id > maxDeviceID {
			return fmt.Errorf("discovery.devices: id %d out of range 1..%d", id, maxDeviceID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("discovery.devices: id %d listed twice", id)
		}
		seen[id] = struct{}{}
	}

	// ------------------------------------------------------------
	// AGGREGATOR SLOT TABLE
	// ------------------------------------------------------------

	if len(cfg.Aggregator.Slots) > maxSlots {
		return fmt.Errorf("aggregator.slots: %d entries, at most %d", len(cfg.Aggregator.Slots), maxSlots)
	}

	owner := make(map[int]int)
	for slot, sensorID := range cfg.Aggregator.Slots {
		if sensorID < 0 || sensorID > 255 {
			return fmt.Errorf("aggregator.slots[%d]: sensor id %d out of range 0..255", slot, sensorID)
		}
		if prev, dup := owner[sensorID]; dup {
			return fmt.Errorf("aggregator.slots: sensor id %d mapped to slots %d and %d", sensorID, prev, slot)
		}
		owner[sensorID] = slot
	}

	if cfg.Aggregator.MaxPayload != 0 &&
		(cfg.Aggregator.MaxPayload < minPayload || cfg.Aggregator.MaxPayload > maxPayload) {
		return fmt.Errorf("aggregator.max_payload %d: must be %d..%d", cfg.Aggregator.MaxPayload, minPayload, maxPayload)
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	if cfg.Uplink.NATS.URL != "" && cfg.Uplink.NATS.Subject == "" && cfg.Node.ID == "" {
		return fmt.Errorf("uplink.nats: subject or node.id is required")
	}

	if cfg.StatusMemory.Endpoint != "" && cfg.StatusMemory.UnitID == 0 {
		return fmt.Errorf("status_memory.unit_id is required when endpoint is set")
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format %q: must be console or json", cfg.Log.Format)
	}

	return nil
}

func nonNegative(fields map[string]int) error {
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("%s %d: must not be negative", name, v)
		}
	}
	return nil
}
