// internal/transport/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/transport"
)

// reader is the subset of modbus.Client the worker needs.
type reader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Client is an asynchronous transport over one goburrow client handler.
// A single worker goroutine owns the bus; requests wait in a bounded queue.
type Client struct {
	rd       reader
	setSlave func(id uint8)
	closer   io.Closer

	queue chan transport.Request

	mu      sync.RWMutex
	onData  transport.DataHandler
	onError transport.ErrorHandler

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// New connects the configured handler and starts the worker.
func New(cfg Config) (*Client, error) {
	h, setSlave, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("transport modbus: connect %s: %w", cfg.Address, err)
	}

	log.Info().
		Str("kind", cfg.Kind).
		Str("address", cfg.Address).
		Int("queue_depth", cfg.QueueDepth).
		Msg("bus transport connected")

	return newClient(modbus.NewClient(h), setSlave, h, cfg.QueueDepth), nil
}

func newClient(rd reader, setSlave func(uint8), closer io.Closer, depth int) *Client {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	c := &Client{
		rd:       rd,
		setSlave: setSlave,
		closer:   closer,
		queue:    make(chan transport.Request, depth),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Client) OnData(h transport.DataHandler) {
	c.mu.Lock()
	c.onData = h
	c.mu.Unlock()
}

func (c *Client) OnError(h transport.ErrorHandler) {
	c.mu.Lock()
	c.onError = h
	c.mu.Unlock()
}

// Submit enqueues req without blocking.
func (c *Client) Submit(req transport.Request) error {
	select {
	case <-c.stop:
		return transport.ErrClosed
	default:
	}

	select {
	case c.queue <- req:
		return nil
	default:
		return transport.ErrQueueFull
	}
}

// Close stops the worker and closes the underlying handler.
// Requests still queued are dropped without a callback.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// ---- worker ----

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.queue:
			c.execute(req)
		}
	}
}

func (c *Client) execute(req transport.Request) {
	if c.setSlave != nil {
		c.setSlave(req.DeviceID)
	}

	var (
		data []byte
		err  error
	)

	switch req.Function {
	case transport.FuncReadHoldingRegisters:
		data, err = c.rd.ReadHoldingRegisters(req.Address, req.Count)
	case transport.FuncReadInputRegisters:
		data, err = c.rd.ReadInputRegisters(req.Address, req.Count)
	default:
		err = fmt.Errorf("%w: unsupported function 0x%02x", transport.ErrException, req.Function)
	}

	c.mu.RLock()
	onData, onError := c.onData, c.onError
	c.mu.RUnlock()

	if err != nil {
		err = classify(err)
		log.Debug().
			Err(err).
			Uint8("device", req.DeviceID).
			Uint8("fc", req.Function).
			Uint32("token", req.Token).
			Msg("bus request failed")
		if onError != nil {
			onError(req.Token, err)
		}
		return
	}

	if onData != nil {
		onData(req.Token, data)
	}
}

// classify maps a goburrow/serial/net failure onto ErrTimeout or ErrException.
func classify(err error) error {
	if errors.Is(err, transport.ErrTimeout) || errors.Is(err, transport.ErrException) {
		return err
	}

	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return fmt.Errorf("%w: %v", transport.ErrException, err)
	}

	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", transport.ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", transport.ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", transport.ErrException, err)
}
