// internal/registry/registry.go
package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

const DefaultEvictionThreshold = 3

// Registry holds the known devices. All methods are safe for concurrent use;
// the lock is never held across I/O.
type Registry struct {
	mu        sync.Mutex
	devices   map[uint8]*Device
	threshold int
	gen       uint64
}

func New(threshold int) *Registry {
	if threshold <= 0 {
		threshold = DefaultEvictionThreshold
	}
	return &Registry{
		devices:   make(map[uint8]*Device),
		threshold: threshold,
	}
}

// UpsertSensor stores d under deviceID, creating the device if needed.
// A descriptor with the same sensor id is replaced in place.
func (r *Registry) UpsertSensor(deviceID uint8, d SensorDescriptor) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		dev = &Device{ID: deviceID}
		r.devices[deviceID] = dev
		created = true
	}

	replaced := false
	for i := range dev.Sensors {
		if dev.Sensors[i].SensorID == d.SensorID {
			dev.Sensors[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		dev.Sensors = append(dev.Sensors, d)
	}

	r.gen++
	return created
}

// RecordSuccess clears the failure counter.
func (r *Registry) RecordSuccess(deviceID uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, ok := r.devices[deviceID]; ok {
		dev.ConsecutiveFailures = 0
	}
}

// RecordFailure counts one failure and evicts the device at the threshold.
func (r *Registry) RecordFailure(deviceID uint8) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return false
	}

	dev.ConsecutiveFailures++
	if dev.ConsecutiveFailures < r.threshold {
		return false
	}

	delete(r.devices, deviceID)
	r.gen++

	log.Warn().
		Uint8("device", deviceID).
		Int("failures", dev.ConsecutiveFailures).
		Msg("device evicted")
	return true
}

// Threshold is the failure count that evicts a device.
func (r *Registry) Threshold() int { return r.threshold }

// Failures returns the current failure count.
func (r *Registry) Failures(deviceID uint8) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return 0, false
	}
	return dev.ConsecutiveFailures, true
}

func (r *Registry) LookupSensor(deviceID, sensorID uint8) (SensorDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return SensorDescriptor{}, false
	}
	for _, s := range dev.Sensors {
		if s.SensorID == sensorID {
			return s, true
		}
	}
	return SensorDescriptor{}, false
}

// RegistersPerChannel is maxRegisters / channels, or 0 when unknown.
func (r *Registry) RegistersPerChannel(deviceID, sensorID uint8) uint8 {
	s, ok := r.LookupSensor(deviceID, sensorID)
	if !ok || s.Channels == 0 {
		return 0
	}
	return uint8(s.MaxRegisters / uint16(s.Channels))
}

// RemoveDevice drops a device. Returns false if it was not registered.
func (r *Registry) RemoveDevice(deviceID uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return false
	}
	delete(r.devices, deviceID)
	r.gen++
	return true
}

func (r *Registry) Has(deviceID uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[deviceID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Devices returns a copy of every device, ordered by id.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Generation changes whenever a device or sensor is added, replaced or removed.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}
