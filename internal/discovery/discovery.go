// internal/discovery/discovery.go
package discovery

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/bridge"
	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/transport"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultDelay   = 50 * time.Millisecond
)

// Reader is the blocking register read discovery needs.
type Reader interface {
	ReadRegisters(ctx context.Context, c bridge.Call) ([]byte, error)
}

type Discoverer struct {
	rd      Reader
	reg     *registry.Registry
	timeout time.Duration
}

func New(rd Reader, reg *registry.Registry, timeout time.Duration) *Discoverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Discoverer{rd: rd, reg: reg, timeout: timeout}
}

// Discover reads the descriptor block of deviceID and stores it.
// It returns true only when a valid descriptor was stored.
func (d *Discoverer) Discover(ctx context.Context, deviceID uint8) bool {
	raw, err := d.rd.ReadRegisters(ctx, bridge.Call{
		DeviceID: deviceID,
		Function: transport.FuncReadHoldingRegisters,
		Address:  DescriptorAddress,
		Count:    DescriptorRegisters,
		Timeout:  d.timeout,
		Kind:     bridge.KindDiscovery,
	})
	if err != nil {
		log.Warn().Err(err).Uint8("device", deviceID).Msg("discovery: no descriptor")
		return false
	}

	desc, err := ParseDescriptor(raw)
	if err != nil {
		log.Warn().
			Err(err).
			Uint8("device", deviceID).
			Str("raw", hex.EncodeToString(raw)).
			Msg("discovery: malformed descriptor")
		return false
	}

	if desc.Channels == 0 {
		log.Warn().Uint8("device", deviceID).Uint8("sensor", desc.SensorID).Msg("discovery: descriptor reports zero channels")
	}

	created := d.reg.UpsertSensor(deviceID, desc)

	log.Info().
		Uint8("device", deviceID).
		Bool("new_device", created).
		Uint8("sensor", desc.SensorID).
		Uint8("channels", desc.Channels).
		Uint16("start", desc.StartAddress).
		Uint16("max_registers", desc.MaxRegisters).
		Uint16("interval_ms", desc.BaseIntervalMs).
		Str("data_type", desc.DataType.String()).
		Uint8("compression", desc.CompressionWidth).
		Msg("discovery: sensor registered")
	return true
}

// Bootstrap runs Discover once for each id, pausing delay between devices.
// It returns the number of devices that answered.
func (d *Discoverer) Bootstrap(ctx context.Context, ids []uint8, delay time.Duration) int {
	found := 0
	for i, id := range ids {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return found
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return found
		}
		if d.Discover(ctx, id) {
			found++
		}
	}

	log.Info().Int("polled", len(ids)).Int("found", found).Msg("discovery: bootstrap complete")
	return found
}
