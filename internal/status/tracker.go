// internal/status/tracker.go
package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/sample"
)

// Publisher delivers a device snapshot (status memory writer).
type Publisher interface {
	WriteStatus(deviceID uint8, s Snapshot) error
}

// Tracker owns the per-device status. Observer calls only record state and
// mark the device dirty; Run pushes dirty snapshots to the publisher.
type Tracker struct {
	pub        Publisher
	staleAfter time.Duration
	now        func() time.Time

	// flushMu allows one flush at a time
	flushMu sync.Mutex

	mu    sync.Mutex
	state map[uint8]Snapshot
	dirty map[uint8]struct{}

	kick chan struct{}
}

// NewTracker builds a tracker. pub may be nil when status memory is disabled.
func NewTracker(pub Publisher, staleAfter time.Duration) *Tracker {
	return &Tracker{
		pub:        pub,
		staleAfter: staleAfter,
		now:        time.Now,
		state:      make(map[uint8]Snapshot),
		dirty:      make(map[uint8]struct{}),
		kick:       make(chan struct{}, 1),
	}
}

// Register announces a discovered device with Unknown health.
func (t *Tracker) Register(deviceID uint8) {
	t.update(deviceID, func(s *Snapshot) {
		*s = Snapshot{Health: HealthUnknown}
	})
}

func (t *Tracker) SampleOK(smp sample.Decoded) {
	now := uint32(t.now().Unix())
	t.update(smp.DeviceID, func(s *Snapshot) {
		s.Health = HealthOK
		s.LastErrorCode = 0
		s.ConsecutiveFailures = 0
		s.LastSensorID = uint16(smp.SensorID)
		s.LastSeen = now
	})
}

func (t *Tracker) SampleFailed(deviceID, _ uint8, err error, failures int) {
	code := ErrorCode(err)
	t.update(deviceID, func(s *Snapshot) {
		s.Health = HealthError
		s.LastErrorCode = code
		if failures > 0xFFFF {
			failures = 0xFFFF
		}
		s.ConsecutiveFailures = uint16(failures)
	})
}

func (t *Tracker) DeviceEvicted(deviceID uint8) {
	t.update(deviceID, func(s *Snapshot) {
		s.Health = HealthEvicted
	})
}

// Snapshot returns the current status of one device.
func (t *Tracker) Snapshot(deviceID uint8) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[deviceID]
	return s, ok
}

// Devices lists every device ever seen, evicted ones included, ordered by id.
func (t *Tracker) Devices() []uint8 {
	t.mu.Lock()
	ids := make([]uint8, 0, len(t.state))
	for id := range t.state {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sweep marks OK devices without a read for staleAfter as Stale.
func (t *Tracker) Sweep() {
	if t.staleAfter <= 0 {
		return
	}
	cutoff := t.now().Add(-t.staleAfter).Unix()

	for _, id := range t.Devices() {
		t.update(id, func(s *Snapshot) {
			if s.Health == HealthOK && int64(s.LastSeen) < cutoff {
				s.Health = HealthStale
			}
		})
	}
}

// Run publishes dirty devices as they change and sweeps once per second
// until ctx ends. Failed publishes are retried on the next tick.
func (t *Tracker) Run(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.kick:
			t.Flush()
		case <-tick.C:
			t.Sweep()
			t.Flush()
		}
	}
}

// Flush writes the latest snapshot of every dirty device, lowest id first.
func (t *Tracker) Flush() {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	ids := make([]uint8, 0, len(t.dirty))
	for id := range t.dirty {
		ids = append(ids, id)
	}
	snaps := make(map[uint8]Snapshot, len(ids))
	for _, id := range ids {
		snaps[id] = t.state[id]
		delete(t.dirty, id)
	}
	t.mu.Unlock()

	if t.pub == nil {
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := t.pub.WriteStatus(id, snaps[id]); err != nil {
			log.Warn().Err(err).Uint8("device", id).Msg("status write failed")
			t.mu.Lock()
			t.dirty[id] = struct{}{}
			t.mu.Unlock()
		}
	}
}

// Pending reports how many devices wait for a publish.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirty)
}

// update applies fn and marks the device dirty if the snapshot changed.
// It never touches the publisher.
func (t *Tracker) update(deviceID uint8, fn func(s *Snapshot)) {
	t.mu.Lock()
	prev, seen := t.state[deviceID]
	next := prev
	fn(&next)
	t.state[deviceID] = next
	changed := !seen || next != prev
	if changed && t.pub != nil {
		t.dirty[deviceID] = struct{}{}
	}
	t.mu.Unlock()

	if !changed || t.pub == nil {
		return
	}
	select {
	case t.kick <- struct{}{}:
	default:
	}
}
