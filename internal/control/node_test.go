// internal/control/node_test.go
package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/scheduler"
)

type fakeDiscoverer struct {
	reg     *registry.Registry
	answers map[uint8]bool
}

func (f *fakeDiscoverer) Discover(_ context.Context, id uint8) bool {
	if !f.answers[id] {
		return false
	}
	f.reg.UpsertSensor(id, registry.SensorDescriptor{SensorID: 0, Channels: 1, MaxRegisters: 1, BaseIntervalMs: 100})
	return true
}

type fakeSched struct {
	rebuilds, wakes int
	paused          bool
}

func (f *fakeSched) Rebuild()                 { f.rebuilds++ }
func (f *fakeSched) Wake()                    { f.wakes++ }
func (f *fakeSched) Pause()                   { f.paused = true }
func (f *fakeSched) Resume()                  { f.paused = false }
func (f *fakeSched) Status() scheduler.Status { return scheduler.Status{Paused: f.paused} }

type fakeTracker struct{ ids []uint8 }

func (f *fakeTracker) Register(id uint8) { f.ids = append(f.ids, id) }

func TestRegisterAndRemove(t *testing.T) {
	reg := registry.New(3)
	s := &fakeSched{}
	tr := &fakeTracker{}
	n := New(reg, &fakeDiscoverer{reg: reg, answers: map[uint8]bool{5: true}}, s, tr)

	require.NoError(t, n.RegisterDevice(context.Background(), 5))
	assert.True(t, reg.Has(5))
	assert.Equal(t, 1, s.rebuilds)
	assert.Equal(t, 1, s.wakes)
	assert.Equal(t, []uint8{5}, tr.ids)
	assert.Len(t, n.Devices(), 1)

	require.NoError(t, n.RemoveDevice(5))
	assert.False(t, reg.Has(5))
	assert.Equal(t, 2, s.rebuilds)

	assert.ErrorIs(t, n.RemoveDevice(5), ErrUnknownDevice)
}

func TestRegisterErrors(t *testing.T) {
	reg := registry.New(3)
	n := New(reg, &fakeDiscoverer{reg: reg}, &fakeSched{}, nil)

	assert.ErrorIs(t, n.RegisterDevice(context.Background(), 0), ErrInvalidDevice)
	assert.ErrorIs(t, n.RegisterDevice(context.Background(), 300), ErrInvalidDevice)
	assert.ErrorIs(t, n.RegisterDevice(context.Background(), 9), ErrNotDiscovered)
}

func TestPauseResume(t *testing.T) {
	s := &fakeSched{}
	n := New(registry.New(3), &fakeDiscoverer{}, s, nil)

	n.Pause()
	assert.True(t, n.Schedule().Paused)
	n.Resume()
	assert.False(t, n.Schedule().Paused)
}
