// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog/log"
)

// EndpointClient writes status blocks to the status memory server over TCP.
// One connection; writes are serialized since SlaveId is set per call.
type EndpointClient struct {
	endpoint string

	mu        sync.Mutex
	handler   *modbus.TCPClientHandler
	client    modbus.Client
	connected bool
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// NewEndpointClient dials the endpoint once. A later failed write drops the
// connection and the next write redials.
func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	c := &EndpointClient{
		endpoint: cfg.Endpoint,
		handler:  h,
		client:   modbus.NewClient(h),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *EndpointClient) connect() error {
	if c.connected {
		return nil
	}
	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("writer modbus: connect %s: %w", c.endpoint, err)
	}
	c.connected = true
	return nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return c.handler.Close()
}

// WriteRegisters issues FC16 for regs starting at addr on unitID.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return err
	}

	c.handler.SlaveId = unitID
	if _, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), registerBytes(regs)); err != nil {
		var mbErr *modbus.ModbusError
		if !errors.As(err, &mbErr) {
			// transport failure: force a redial on the next write
			_ = c.handler.Close()
			c.connected = false
			log.Warn().Err(err).Str("endpoint", c.endpoint).Msg("status memory connection dropped")
		}
		return fmt.Errorf("writer modbus: write %d regs at %d: %w", len(regs), addr, err)
	}
	return nil
}

// registerBytes lays registers out big-endian, the Modbus wire order.
func registerBytes(regs []uint16) []byte {
	out := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}
