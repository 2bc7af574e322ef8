// internal/bridge/bridge.go
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/transport"
)

// Request limits for a single register read.
const (
	MaxDeviceID = 247
	MaxCount    = 125
)

// Call is one blocking register read.
type Call struct {
	DeviceID uint8
	Function uint8
	Address  uint16
	Count    uint16
	Timeout  time.Duration

	// diagnostics only
	SensorID uint8
	Kind     Kind
}

type reply struct {
	data []byte
	err  error
}

// Bridge turns the transport's callbacks into blocking calls.
// Each call owns a one-shot reply channel keyed by its token, so concurrent
// callers never observe each other's completions.
type Bridge struct {
	tr transport.Transport

	mu      sync.Mutex
	next    uint32
	waiters map[uint32]chan reply

	ring Ring
}

// New registers the bridge as the transport's sole callback receiver.
func New(tr transport.Transport) *Bridge {
	b := &Bridge{
		tr:      tr,
		waiters: make(map[uint32]chan reply),
	}
	tr.OnData(b.handleData)
	tr.OnError(b.handleError)
	return b
}

// ReadRegisters submits c and blocks until the response, c.Timeout or ctx ends.
// A nil error means data holds the register bytes exactly as the transport delivered them.
func (b *Bridge) ReadRegisters(ctx context.Context, c Call) ([]byte, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	token, ch := b.acquire()
	defer b.release(token)

	b.ring.Put(PendingRequest{
		Token:    token,
		DeviceID: c.DeviceID,
		SensorID: c.SensorID,
		Function: c.Function,
		Kind:     c.Kind,
	})

	err := b.tr.Submit(transport.Request{
		DeviceID: c.DeviceID,
		Function: c.Function,
		Address:  c.Address,
		Count:    c.Count,
		Token:    token,
	})
	if err != nil {
		if errors.Is(err, transport.ErrQueueFull) {
			return nil, newError(CodeSubmissionRejected, err)
		}
		return nil, newError(CodeInternal, err)
	}

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-timer.C:
		log.Warn().
			Uint8("device", c.DeviceID).
			Uint8("sensor", c.SensorID).
			Str("kind", c.Kind.String()).
			Dur("timeout", c.Timeout).
			Msg("bridge: no response")
		return nil, newError(CodeTimeout, fmt.Errorf("device %d after %s", c.DeviceID, c.Timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outstanding reports calls still holding a reply channel. Zero when idle.
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// InFlight is the diagnostic view of pending requests.
func (b *Bridge) InFlight() int { return b.ring.Live() }

func validate(c Call) error {
	switch {
	case c.DeviceID == 0 || c.DeviceID > MaxDeviceID:
		return newError(CodeInvalidParams, fmt.Errorf("device id %d", c.DeviceID))
	case c.Count == 0 || c.Count > MaxCount:
		return newError(CodeInvalidParams, fmt.Errorf("count %d", c.Count))
	case c.Timeout <= 0:
		return newError(CodeInvalidParams, fmt.Errorf("timeout %s", c.Timeout))
	}
	return nil
}

// ---- token bookkeeping ----

func (b *Bridge) acquire() (uint32, chan reply) {
	ch := make(chan reply, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		b.next++
		if b.next == 0 {
			continue
		}
		if _, busy := b.waiters[b.next]; busy {
			continue
		}
		b.waiters[b.next] = ch
		return b.next, ch
	}
}

func (b *Bridge) release(token uint32) {
	b.mu.Lock()
	delete(b.waiters, token)
	b.mu.Unlock()
	b.ring.Release(token)
}

// deliver hands r to the waiter for token. Unknown or late tokens are dropped.
func (b *Bridge) deliver(token uint32, r reply) {
	b.mu.Lock()
	ch, ok := b.waiters[token]
	b.mu.Unlock()

	if !ok {
		log.Debug().Uint32("token", token).Err(r.err).Msg("bridge: discarding late or unknown completion")
		return
	}

	select {
	case ch <- r:
	default:
		log.Debug().Uint32("token", token).Msg("bridge: duplicate completion dropped")
	}
}

// ---- transport callbacks ----

func (b *Bridge) handleData(token uint32, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	b.deliver(token, reply{data: buf})
}

func (b *Bridge) handleError(token uint32, err error) {
	code := CodeProtocolException
	if errors.Is(err, transport.ErrTimeout) {
		code = CodeTransportTimeout
	}

	if p, ok := b.ring.Find(token); ok {
		log.Warn().
			Err(err).
			Uint8("device", p.DeviceID).
			Uint8("sensor", p.SensorID).
			Str("kind", p.Kind.String()).
			Msg("bridge: request failed")
	}

	b.deliver(token, reply{err: newError(code, err)})
}
