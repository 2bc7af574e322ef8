// internal/registry/types.go
package registry

// DataType is the on-wire sample encoding a sensor advertises.
type DataType uint8

const (
	DataTypeRaw       DataType = 0
	DataTypeUint8     DataType = 1
	DataTypeUint16    DataType = 2
	DataTypeBitPacked DataType = 3
	DataTypeFloat16   DataType = 4 // decoded as UInt16
)

func (t DataType) String() string {
	switch t {
	case DataTypeUint8:
		return "uint8"
	case DataTypeUint16:
		return "uint16"
	case DataTypeBitPacked:
		return "bitpacked"
	case DataTypeFloat16:
		return "float16"
	default:
		return "raw"
	}
}

// SensorDescriptor is what a device reports about one of its sensors.
type SensorDescriptor struct {
	SensorID         uint8    `json:"sensor_id"`
	Channels         uint8    `json:"channels"`
	StartAddress     uint16   `json:"start_address"`
	MaxRegisters     uint16   `json:"max_registers"`
	BaseIntervalMs   uint16   `json:"base_interval_ms"`
	DataType         DataType `json:"data_type"`
	Scale            int8     `json:"scale"` // decimal exponent
	CompressionWidth uint8    `json:"compression_width"`
}

// Device is a discovered field device and its sensors.
type Device struct {
	ID                  uint8              `json:"id"`
	Sensors             []SensorDescriptor `json:"sensors"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
}

func (d Device) clone() Device {
	out := d
	out.Sensors = append([]SensorDescriptor(nil), d.Sensors...)
	return out
}
