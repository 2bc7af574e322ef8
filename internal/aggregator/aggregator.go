// internal/aggregator/aggregator.go
package aggregator

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/sample"
	"github.com/tamzrod/modbus-uplink/internal/uplink"
)

const (
	DefaultWindow     = 6100 * time.Millisecond
	DefaultMaxPayload = 220
)

type Config struct {
	Window     time.Duration
	MaxPayload int
	EmitEmpty  bool
}

// Observer is told about every emitted payload.
type Observer interface {
	PayloadEmitted(msg uplink.Message, samples int, truncated bool)
}

// Aggregator collects samples between windows and emits one payload per window.
type Aggregator struct {
	cfg     Config
	builder *Builder
	sink    uplink.Sink
	obs     Observer

	mu      sync.Mutex
	pending map[uint8]sample.Decoded
	nextID  uint8
}

func New(cfg Config, b *Builder, sink uplink.Sink, obs Observer) (*Aggregator, error) {
	if b == nil {
		return nil, errors.New("aggregator: builder required")
	}
	if sink == nil {
		return nil, errors.New("aggregator: sink required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	return &Aggregator{
		cfg:     cfg,
		builder: b,
		sink:    sink,
		obs:     obs,
		pending: make(map[uint8]sample.Decoded),
	}, nil
}

// Enqueue stores s for the current window, replacing an earlier sample of the same sensor id.
func (a *Aggregator) Enqueue(s sample.Decoded) {
	a.mu.Lock()
	a.pending[s.SensorID] = s
	a.mu.Unlock()
}

// Pending is the number of sensors collected in the current window.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Run flushes once per window until ctx ends. Samples of an unfinished window are dropped.
func (a *Aggregator) Run(ctx context.Context) {
	t := time.NewTicker(a.cfg.Window)
	defer t.Stop()

	log.Info().Dur("window", a.cfg.Window).Int("max_payload", a.cfg.MaxPayload).Msg("aggregator started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.Flush(ctx)
		}
	}
}

// Flush builds and sends the current window. It returns false when nothing was emitted.
func (a *Aggregator) Flush(ctx context.Context) (uplink.Message, bool) {
	a.mu.Lock()
	if len(a.pending) == 0 && !a.cfg.EmitEmpty {
		a.mu.Unlock()
		log.Debug().Msg("aggregator: empty window, nothing to send")
		return uplink.Message{}, false
	}

	samples := make([]sample.Decoded, 0, len(a.pending))
	for _, s := range a.pending {
		samples = append(samples, s)
	}
	a.pending = make(map[uint8]sample.Decoded)

	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	sort.Slice(samples, func(i, j int) bool { return samples[i].SensorID < samples[j].SensorID })

	at := a.builder.Now()
	payload, dropped := a.builder.build(id, at, samples, a.cfg.MaxPayload)

	truncated := dropped > 0
	if truncated {
		log.Warn().
			Uint8("message_id", id).
			Int("dropped_slots", dropped).
			Int("size", len(payload)).
			Int("max", a.cfg.MaxPayload).
			Msg("aggregator: payload over limit, trailing slots dropped")
	}

	msg := uplink.Message{ID: id, At: at, Payload: payload}

	log.Debug().
		Uint8("message_id", id).
		Int("samples", len(samples)).
		Str("payload", hex.EncodeToString(payload)).
		Msg("aggregator: payload built")

	if err := a.sink.Send(ctx, msg); err != nil {
		log.Error().Err(err).Uint8("message_id", id).Msg("aggregator: uplink failed")
	}

	if a.obs != nil {
		a.obs.PayloadEmitted(msg, len(samples), truncated)
	}
	return msg, true
}
