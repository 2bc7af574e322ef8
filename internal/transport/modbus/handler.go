// internal/transport/modbus/handler.go
package modbus

import (
	"errors"
	"fmt"
	stdlog "log"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Bus kinds.
const (
	KindRTU   = "rtu"
	KindASCII = "ascii"
	KindTCP   = "tcp"
)

const DefaultQueueDepth = 5

// Config selects and tunes the physical bus.
type Config struct {
	Kind    string
	Address string // serial device path or host:port

	BaudRate int
	DataBits int
	Parity   string
	StopBits int

	Timeout     time.Duration
	IdleTimeout time.Duration
	QueueDepth  int

	RS485 RS485Config
}

type RS485Config struct {
	Enabled            bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

type connector interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// newHandler builds the goburrow handler and a setter for its slave id.
func newHandler(cfg Config) (connector, func(uint8), error) {
	if cfg.Address == "" {
		return nil, nil, errors.New("transport modbus: address required")
	}

	logger := busLogger()

	switch cfg.Kind {
	case KindRTU, "":
		h := modbus.NewRTUClientHandler(cfg.Address)
		applySerial(&h.Config, cfg)
		h.IdleTimeout = cfg.IdleTimeout
		h.Logger = logger
		return h, func(id uint8) { h.SlaveId = id }, nil

	case KindASCII:
		h := modbus.NewASCIIClientHandler(cfg.Address)
		applySerial(&h.Config, cfg)
		h.IdleTimeout = cfg.IdleTimeout
		h.Logger = logger
		return h, func(id uint8) { h.SlaveId = id }, nil

	case KindTCP:
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.Timeout = cfg.Timeout
		h.IdleTimeout = cfg.IdleTimeout
		h.Logger = logger
		return h, func(id uint8) { h.SlaveId = id }, nil

	default:
		return nil, nil, fmt.Errorf("transport modbus: unknown bus kind %q", cfg.Kind)
	}
}

func applySerial(sc *serial.Config, cfg Config) {
	if cfg.BaudRate > 0 {
		sc.BaudRate = cfg.BaudRate
	}
	if cfg.DataBits > 0 {
		sc.DataBits = cfg.DataBits
	}
	if cfg.Parity != "" {
		sc.Parity = cfg.Parity
	}
	if cfg.StopBits > 0 {
		sc.StopBits = cfg.StopBits
	}
	if cfg.Timeout > 0 {
		sc.Timeout = cfg.Timeout
	}
	sc.RS485 = serial.RS485Config{
		Enabled:            cfg.RS485.Enabled,
		DelayRtsBeforeSend: cfg.RS485.DelayRtsBeforeSend,
		DelayRtsAfterSend:  cfg.RS485.DelayRtsAfterSend,
		RtsHighDuringSend:  cfg.RS485.RtsHighDuringSend,
		RtsHighAfterSend:   cfg.RS485.RtsHighAfterSend,
		RxDuringTx:         cfg.RS485.RxDuringTx,
	}
}

// busLogger bridges goburrow's frame dump into zerolog at trace level.
// Returns nil (no dump) unless trace is enabled.
func busLogger() *stdlog.Logger {
	if zerolog.GlobalLevel() > zerolog.TraceLevel {
		return nil
	}
	w := log.With().Str("component", "bus").Logger().Level(zerolog.TraceLevel)
	return stdlog.New(w, "", 0)
}
