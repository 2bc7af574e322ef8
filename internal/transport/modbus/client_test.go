// internal/transport/modbus/client_test.go
package modbus

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-uplink/internal/transport"
)

type fakeReader struct {
	gate  chan struct{} // when set, each read waits for one receive
	slave uint8
	err   error
	seen  []uint8
}

func (f *fakeReader) read(addr, qty uint16) ([]byte, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.seen = append(f.seen, f.slave)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]byte, qty*2)
	for i := range out {
		out[i] = byte(addr) + byte(i)
	}
	return out, nil
}

func (f *fakeReader) ReadHoldingRegisters(addr, qty uint16) ([]byte, error) { return f.read(addr, qty) }
func (f *fakeReader) ReadInputRegisters(addr, qty uint16) ([]byte, error)   { return f.read(addr, qty) }

type result struct {
	token uint32
	data  []byte
	err   error
}

func wire(c *Client) chan result {
	ch := make(chan result, 16)
	c.OnData(func(token uint32, data []byte) { ch <- result{token: token, data: data} })
	c.OnError(func(token uint32, err error) { ch <- result{token: token, err: err} })
	return ch
}

func recv(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no callback")
		return result{}
	}
}

func TestSubmitDeliversData(t *testing.T) {
	rd := &fakeReader{}
	c := newClient(rd, func(id uint8) { rd.slave = id }, nil, 2)
	defer c.Close()
	ch := wire(c)

	require.NoError(t, c.Submit(transport.Request{DeviceID: 7, Function: 3, Address: 0x10, Count: 2, Token: 42}))

	r := recv(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(42), r.token)
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13}, r.data)
	assert.Equal(t, []uint8{7}, rd.seen)
}

func TestUnsupportedFunctionIsException(t *testing.T) {
	rd := &fakeReader{}
	c := newClient(rd, nil, nil, 1)
	defer c.Close()
	ch := wire(c)

	require.NoError(t, c.Submit(transport.Request{DeviceID: 1, Function: 0x10, Count: 1, Token: 5}))

	r := recv(t, ch)
	assert.Equal(t, uint32(5), r.token)
	assert.ErrorIs(t, r.err, transport.ErrException)
}

func TestQueueFull(t *testing.T) {
	rd := &fakeReader{gate: make(chan struct{})}
	c := newClient(rd, nil, nil, 1)
	ch := wire(c)

	// first request is taken by the worker and parks on the gate,
	// second fills the queue, third is rejected
	require.NoError(t, c.Submit(transport.Request{Function: 3, Count: 1, Token: 1}))
	require.Eventually(t, func() bool { return len(c.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, c.Submit(transport.Request{Function: 3, Count: 1, Token: 2}))
	assert.ErrorIs(t, c.Submit(transport.Request{Function: 3, Count: 1, Token: 3}), transport.ErrQueueFull)

	rd.gate <- struct{}{}
	rd.gate <- struct{}{}
	assert.Equal(t, uint32(1), recv(t, ch).token)
	assert.Equal(t, uint32(2), recv(t, ch).token)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Submit(transport.Request{Function: 3, Count: 1}), transport.ErrClosed)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"modbus exception", &modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: 2}, transport.ErrException},
		{"serial timeout", serial.ErrTimeout, transport.ErrTimeout},
		{"wrapped serial timeout", fmt.Errorf("read: %w", serial.ErrTimeout), transport.ErrTimeout},
		{"net timeout", timeoutErr{}, transport.ErrTimeout},
		{"crc mismatch", errors.New("modbus: response crc '1234' does not match expected 'abcd'"), transport.ErrException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.in), tt.want)
		})
	}
}
