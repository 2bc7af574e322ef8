// internal/aggregator/payload.go
package aggregator

import (
	"encoding/binary"
	"time"

	"github.com/tamzrod/modbus-uplink/internal/sample"
)

// Payload layout:
//
//	[0]      message id
//	[1..4]   unix seconds, big-endian
//	[5]      activate byte, bit n set when slot n carries data
//	[6..]    one length byte per active slot, ascending slot order
//	[...]    one data block per active slot, same order
const (
	HeaderLen = 6
	MaxSlots  = 8

	LenMask     byte = 0x1F
	LenReserved byte = 0x40 // never set
	LenPacked   byte = 0x80
)

// Slots maps slot index to the sensor id carried in that slot.
type Slots []uint8

// DefaultSlots: battery, voltage, current, then five external sensors.
var DefaultSlots = Slots{0, 1, 2, 3, 4, 5, 6, 7}

func (s Slots) slotOf(sensorID uint8) (int, bool) {
	for i, id := range s {
		if i >= MaxSlots {
			break
		}
		if id == sensorID {
			return i, true
		}
	}
	return 0, false
}

// Layout supplies registers-per-channel for the length byte.
type Layout interface {
	RegistersPerChannel(deviceID, sensorID uint8) uint8
}

// Builder assembles payloads. No I/O.
type Builder struct {
	Slots  Slots
	Layout Layout
	Now    func() time.Time
}

func NewBuilder(slots Slots, layout Layout) *Builder {
	if len(slots) == 0 {
		slots = DefaultSlots
	}
	return &Builder{Slots: slots, Layout: layout, Now: time.Now}
}

// Build lays out samples into one payload. Samples whose sensor id has no slot
// are skipped; for a repeated sensor id the later sample wins.
func (b *Builder) Build(messageID uint8, samples []sample.Decoded) []byte {
	out, _ := b.build(messageID, b.Now(), samples, 0)
	return out
}

// build lays out samples. With limit > 0 the highest active slots are dropped
// whole, bit and length byte included, until the payload fits; the result
// stays parseable. It returns how many slots were dropped.
func (b *Builder) build(messageID uint8, at time.Time, samples []sample.Decoded, limit int) ([]byte, int) {
	var bySlot [MaxSlots]*sample.Decoded
	size := HeaderLen
	for i := range samples {
		slot, ok := b.Slots.slotOf(samples[i].SensorID)
		if !ok {
			continue
		}
		bySlot[slot] = &samples[i]
	}
	for _, s := range bySlot {
		if s != nil {
			size += 1 + len(s.Data)
		}
	}

	dropped := 0
	for slot := MaxSlots - 1; limit > 0 && size > limit && slot >= 0; slot-- {
		if bySlot[slot] == nil {
			continue
		}
		size -= 1 + len(bySlot[slot].Data)
		bySlot[slot] = nil
		dropped++
	}

	out := make([]byte, HeaderLen, size)
	out[0] = messageID
	binary.BigEndian.PutUint32(out[1:5], uint32(at.Unix()))

	for slot, s := range bySlot {
		if s == nil {
			continue
		}
		out[5] |= 1 << slot

		var l byte
		if b.Layout != nil {
			l = b.Layout.RegistersPerChannel(s.DeviceID, s.SensorID) & LenMask
		}
		if s.Packed {
			l |= LenPacked
		}
		out = append(out, l)
	}

	for _, s := range bySlot {
		if s != nil {
			out = append(out, s.Data...)
		}
	}
	return out, dropped
}
