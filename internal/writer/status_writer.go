// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tamzrod/modbus-uplink/internal/status"
)

// endpointClient is the status memory connection.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// StatusWriter is the delivery-only sink for device status.
// It receives a snapshot and writes it verbatim into the device's block.
type StatusWriter struct {
	cli    endpointClient
	unitID uint8

	mu      sync.Mutex
	devices map[uint8]*deviceBlock
}

// deviceBlock remembers what status memory holds for one device.
type deviceBlock struct {
	needFull bool
	last     []uint16
}

func NewStatusWriter(cli endpointClient, unitID uint8) (*StatusWriter, error) {
	if cli == nil {
		return nil, errors.New("status writer: client required")
	}
	return &StatusWriter{
		cli:     cli,
		unitID:  unitID,
		devices: make(map[uint8]*deviceBlock),
	}, nil
}

// WriteStatus delivers a device status snapshot into status memory.
// The first write per device asserts the full block; later writes touch only changed slots.
// On any write failure, the next call re-asserts the full block.
func (sw *StatusWriter) WriteStatus(deviceID uint8, s status.Snapshot) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	blk, ok := sw.devices[deviceID]
	if !ok {
		blk = &deviceBlock{needFull: true}
		sw.devices[deviceID] = blk
	}

	regs := status.Encode(s)
	base := BaseAddr(deviceID)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if blk.needFull {
		if err := sw.cli.WriteRegisters(sw.unitID, base, regs); err != nil {
			return fmt.Errorf("status writer: device %d full block write failed: %w", deviceID, err)
		}
		blk.needFull = false
		blk.last = regs
		return nil
	}

	var errs []string

	for slot := 0; slot < status.SlotsPerDevice; slot++ {
		// last_seen spans two slots and must not tear
		if slot == status.SlotLastSeenHi {
			lo := status.SlotLastSeenLo
			if blk.last[slot] != regs[slot] || blk.last[lo] != regs[lo] {
				pair := regs[slot : lo+1]
				if err := sw.cli.WriteRegisters(sw.unitID, base+uint16(slot), pair); err != nil {
					errs = append(errs, fmt.Sprintf("slot%d last_seen write failed: %v", slot, err))
				} else {
					copy(blk.last[slot:], pair)
				}
			}
			slot = lo
			continue
		}

		if blk.last[slot] == regs[slot] {
			continue
		}

		if err := sw.cli.WriteRegisters(sw.unitID, base+uint16(slot), []uint16{regs[slot]}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d write failed: %v", slot, err))
		} else {
			blk.last[slot] = regs[slot]
		}
	}

	if len(errs) > 0 {
		// any partial failure forces a full block on the next write
		blk.needFull = true
		return fmt.Errorf("status writer: device %d: %s", deviceID, strings.Join(errs, " | "))
	}

	return nil
}

// BaseAddr is the first register of a device's block.
func BaseAddr(deviceID uint8) uint16 {
	return uint16(deviceID) * status.SlotsPerDevice
}
