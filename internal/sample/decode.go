// internal/sample/decode.go
package sample

import (
	"encoding/binary"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/bitpack"
	"github.com/tamzrod/modbus-uplink/internal/registry"
)

// MaxPackWidth bounds compression widths; wider descriptors are clamped.
const MaxPackWidth = 16

// Decoded is one sensor reading ready for aggregation.
type Decoded struct {
	DeviceID uint8
	SensorID uint8
	Data     []byte
	Packed   bool
}

func (d Decoded) Len() int { return len(d.Data) }

// Decode converts raw register bytes according to desc.
// Only whole registers below desc.MaxRegisters are used; a short raw yields a partial sample.
func Decode(deviceID uint8, raw []byte, desc registry.SensorDescriptor) Decoded {
	out := Decoded{DeviceID: deviceID, SensorID: desc.SensorID}

	n := len(raw) / 2
	if n > int(desc.MaxRegisters) {
		n = int(desc.MaxRegisters)
	}
	if n < int(desc.MaxRegisters) {
		log.Debug().
			Uint8("device", deviceID).
			Uint8("sensor", desc.SensorID).
			Int("registers", n).
			Uint16("expected", desc.MaxRegisters).
			Msg("sample: partial decode")
	}

	if desc.CompressionWidth > 0 {
		width := uint(desc.CompressionWidth)
		if width > MaxPackWidth {
			width = MaxPackWidth
		}

		regs := make([]uint16, n)
		for i := range regs {
			regs[i] = binary.BigEndian.Uint16(raw[2*i:])
		}
		out.Data = bitpack.Pack(regs, width)
		out.Packed = true
		return out
	}

	switch desc.DataType {
	case registry.DataTypeUint8:
		out.Data = make([]byte, n)
		for i := 0; i < n; i++ {
			out.Data[i] = raw[2*i+1]
		}
	default:
		// UInt16, Float16, BitPacked without a width and unknown types
		out.Data = make([]byte, 2*n)
		copy(out.Data, raw[:2*n])
	}
	return out
}
