// internal/discovery/descriptor.go
package discovery

import (
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/modbus-uplink/internal/bridge"
	"github.com/tamzrod/modbus-uplink/internal/registry"
)

// Descriptor geometry: eight holding registers from address 0.
const (
	DescriptorAddress   uint16 = 0
	DescriptorRegisters uint16 = 8
	DescriptorBytes            = int(DescriptorRegisters) * 2
)

// ParseDescriptor decodes the 16-byte descriptor block.
//
//	reg0 lo  sensor id
//	reg1 lo  channels
//	reg2     start address
//	reg3     max registers
//	reg4     base sampling interval (ms)
//	reg5 lo  data type
//	reg6 lo  scale (signed decimal exponent)
//	reg7 lo  compression width (0 = none)
//
// A descriptor whose register window cannot be read in one request is rejected.
func ParseDescriptor(b []byte) (registry.SensorDescriptor, error) {
	if len(b) < DescriptorBytes {
		return registry.SensorDescriptor{}, fmt.Errorf("discovery: descriptor is %d bytes, need %d", len(b), DescriptorBytes)
	}

	d := registry.SensorDescriptor{
		SensorID:         b[1],
		Channels:         b[3],
		StartAddress:     binary.BigEndian.Uint16(b[4:6]),
		MaxRegisters:     binary.BigEndian.Uint16(b[6:8]),
		BaseIntervalMs:   binary.BigEndian.Uint16(b[8:10]),
		DataType:         registry.DataType(b[11]),
		Scale:            int8(b[13]),
		CompressionWidth: b[15],
	}

	if d.MaxRegisters == 0 || d.MaxRegisters > bridge.MaxCount {
		return registry.SensorDescriptor{}, fmt.Errorf("discovery: sensor %d max registers %d outside 1..%d", d.SensorID, d.MaxRegisters, bridge.MaxCount)
	}
	if int(d.StartAddress)+int(d.MaxRegisters) > 0x10000 {
		return registry.SensorDescriptor{}, fmt.Errorf("discovery: sensor %d window 0x%04X+%d past end of register space", d.SensorID, d.StartAddress, d.MaxRegisters)
	}
	return d, nil
}

// EncodeDescriptor is the inverse of ParseDescriptor. High bytes of byte-wide fields are zero.
func EncodeDescriptor(d registry.SensorDescriptor) []byte {
	b := make([]byte, DescriptorBytes)
	b[1] = d.SensorID
	b[3] = d.Channels
	binary.BigEndian.PutUint16(b[4:6], d.StartAddress)
	binary.BigEndian.PutUint16(b[6:8], d.MaxRegisters)
	binary.BigEndian.PutUint16(b[8:10], d.BaseIntervalMs)
	b[11] = byte(d.DataType)
	b[13] = byte(d.Scale)
	b[15] = d.CompressionWidth
	return b
}
