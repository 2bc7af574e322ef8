// internal/control/node.go
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/scheduler"
)

var (
	ErrInvalidDevice = errors.New("control: device id out of range")
	ErrNotDiscovered = errors.New("control: device did not answer discovery")
	ErrUnknownDevice = errors.New("control: device not registered")
)

type discoverer interface {
	Discover(ctx context.Context, deviceID uint8) bool
}

type sched interface {
	Rebuild()
	Wake()
	Pause()
	Resume()
	Status() scheduler.Status
}

// registrar is told about devices added by an operator (status tracker).
type registrar interface {
	Register(deviceID uint8)
}

// Node is the operator's handle on the running core.
type Node struct {
	reg   *registry.Registry
	disc  discoverer
	sched sched
	track registrar
}

func New(reg *registry.Registry, disc discoverer, s sched, track registrar) *Node {
	return &Node{reg: reg, disc: disc, sched: s, track: track}
}

// RegisterDevice runs discovery for id and schedules it on success.
func (n *Node) RegisterDevice(ctx context.Context, id int) error {
	if id < 1 || id > 247 {
		return fmt.Errorf("%w: %d", ErrInvalidDevice, id)
	}
	if !n.disc.Discover(ctx, uint8(id)) {
		return fmt.Errorf("%w: %d", ErrNotDiscovered, id)
	}
	if n.track != nil {
		n.track.Register(uint8(id))
	}
	n.sched.Rebuild()
	n.sched.Wake()

	log.Info().Int("device", id).Msg("control: device registered")
	return nil
}

// RemoveDevice drops id from the registry and the schedule.
func (n *Node) RemoveDevice(id int) error {
	if id < 1 || id > 247 {
		return fmt.Errorf("%w: %d", ErrInvalidDevice, id)
	}
	if !n.reg.RemoveDevice(uint8(id)) {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	n.sched.Rebuild()

	log.Info().Int("device", id).Msg("control: device removed")
	return nil
}

func (n *Node) Pause() {
	n.sched.Pause()
	log.Info().Msg("control: sampling paused")
}

func (n *Node) Resume() {
	n.sched.Resume()
	log.Info().Msg("control: sampling resumed")
}

func (n *Node) Devices() []registry.Device { return n.reg.Devices() }

func (n *Node) Schedule() scheduler.Status { return n.sched.Status() }
