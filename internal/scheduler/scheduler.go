// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/bridge"
	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/sample"
	"github.com/tamzrod/modbus-uplink/internal/transport"
)

const (
	DefaultRequestTimeout = 3 * time.Second
	DefaultIdleSleep      = time.Second
	MinSleep              = time.Millisecond
)

// Config is the runtime config the scheduler needs.
type Config struct {
	RequestTimeout time.Duration
	IdleSleep      time.Duration
}

// Scheduler is a clock-driven reader: one goroutine, one request at a time.
type Scheduler struct {
	cfg  Config
	reg  *registry.Registry
	rd   Reader
	sink SampleSink
	obs  Observers
	now  func() time.Time

	mu      sync.Mutex
	entries []Entry
	gen     uint64
	built   bool
	paused  bool

	wake chan struct{}
}

func New(cfg Config, reg *registry.Registry, rd Reader, sink SampleSink, obs ...Observer) (*Scheduler, error) {
	if reg == nil {
		return nil, errors.New("scheduler: registry required")
	}
	if rd == nil {
		return nil, errors.New("scheduler: reader required")
	}
	if sink == nil {
		return nil, errors.New("scheduler: sample sink required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = DefaultIdleSleep
	}

	return &Scheduler{
		cfg:  cfg,
		reg:  reg,
		rd:   rd,
		sink: sink,
		obs:  Observers(obs),
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}, nil
}

// Run loops until ctx ends. A request in flight at cancellation is abandoned
// by the bridge; nothing is drained.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("request_timeout", s.cfg.RequestTimeout).Msg("scheduler started")
	defer log.Info().Msg("scheduler stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if s.Paused() {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		sleep := s.RunOnce(ctx)

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-s.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// RunOnce executes every due entry and returns how long to sleep before the next one.
func (s *Scheduler) RunOnce(ctx context.Context) time.Duration {
	s.mu.Lock()
	stale := !s.built || s.gen != s.reg.Generation()
	s.mu.Unlock()
	if stale {
		s.Rebuild()
	}

	now := s.now()

	s.mu.Lock()
	var (
		due  []Entry
		next time.Time
	)
	for i := range s.entries {
		e := &s.entries[i]
		if !now.Before(e.Next) {
			due = append(due, *e)
			e.Next = now.Add(e.Interval)
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	empty := len(s.entries) == 0
	s.mu.Unlock()

	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		s.execute(ctx, e)
	}

	if empty {
		return s.cfg.IdleSleep
	}
	sleep := next.Sub(s.now())
	if sleep < MinSleep {
		sleep = MinSleep
	}
	return sleep
}

// Rebuild re-derives the schedule from the registry.
func (s *Scheduler) Rebuild() {
	gen := s.reg.Generation()
	devices := s.reg.Devices()
	now := s.now()

	s.mu.Lock()
	s.entries = build(devices, s.entries, now, s.cfg.IdleSleep)
	s.gen = gen
	s.built = true
	n := len(s.entries)
	s.mu.Unlock()

	s.obs.ScheduleRebuilt(n)
	log.Debug().Int("devices", len(devices)).Int("entries", n).Msg("scheduler: schedule rebuilt")
}

func (s *Scheduler) execute(ctx context.Context, e Entry) {
	desc, ok := s.reg.LookupSensor(e.DeviceID, e.SensorID)
	if !ok {
		// removed since the scan
		return
	}

	raw, err := s.rd.ReadRegisters(ctx, bridge.Call{
		DeviceID: e.DeviceID,
		Function: transport.FuncReadHoldingRegisters,
		Address:  desc.StartAddress,
		Count:    desc.MaxRegisters,
		Timeout:  s.cfg.RequestTimeout,
		SensorID: e.SensorID,
		Kind:     bridge.KindSampling,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(e, err)
		return
	}

	smp := sample.Decode(e.DeviceID, raw, desc)
	s.sink.Enqueue(smp)
	s.reg.RecordSuccess(e.DeviceID)
	s.obs.SampleOK(smp)
}

func (s *Scheduler) fail(e Entry, err error) {
	evicted := s.reg.RecordFailure(e.DeviceID)

	failures := s.reg.Threshold()
	if !evicted {
		failures, _ = s.reg.Failures(e.DeviceID)
	}

	log.Warn().
		Err(err).
		Uint8("device", e.DeviceID).
		Uint8("sensor", e.SensorID).
		Int("failures", failures).
		Bool("evicted", evicted).
		Msg("scheduler: sample read failed")

	s.obs.SampleFailed(e.DeviceID, e.SensorID, err, failures)

	if evicted {
		s.obs.DeviceEvicted(e.DeviceID)
		s.Rebuild()
	}
}

// ---- operator control ----

// Pause stops sampling after the current cycle.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.Wake()
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.Wake()
}

func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Wake cuts the current sleep short, e.g. after a device was registered.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Paused:  s.paused,
		Entries: append([]Entry(nil), s.entries...),
	}
}
