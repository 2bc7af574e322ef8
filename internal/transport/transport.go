// internal/transport/transport.go
package transport

import "errors"

// Modbus function codes the core issues.
const (
	FuncReadHoldingRegisters uint8 = 0x03
	FuncReadInputRegisters   uint8 = 0x04
)

var (
	// ErrQueueFull is the only error Submit returns: the request was not accepted.
	ErrQueueFull = errors.New("transport: submission queue full")

	// ErrTimeout is wrapped by errors delivered through OnError when the device did not answer.
	ErrTimeout = errors.New("transport: response timeout")

	// ErrException is wrapped by errors delivered through OnError for any other failure
	// (modbus exception response, CRC, framing, unsupported function).
	ErrException = errors.New("transport: protocol exception")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("transport: closed")
)

// Request is one read submitted to the bus.
// Token is opaque to the transport and echoed back in exactly one callback.
type Request struct {
	DeviceID uint8
	Function uint8
	Address  uint16
	Count    uint16
	Token    uint32
}

// DataHandler receives the register bytes (big-endian, byte count stripped).
type DataHandler func(token uint32, data []byte)

// ErrorHandler receives a failure wrapping ErrTimeout or ErrException.
type ErrorHandler func(token uint32, err error)

// Transport is the asynchronous bus contract.
// Submit never blocks on I/O; each accepted request produces exactly one callback.
type Transport interface {
	Submit(req Request) error
	OnData(h DataHandler)
	OnError(h ErrorHandler)
}
