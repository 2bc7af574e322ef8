// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-uplink/internal/bridge"
	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/sample"
	"github.com/tamzrod/modbus-uplink/internal/status"
)

type fakeReader struct {
	mu    sync.Mutex
	fail  map[uint8]bool
	calls []bridge.Call
}

func (f *fakeReader) ReadRegisters(_ context.Context, c bridge.Call) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.fail[c.DeviceID] {
		return nil, bridge.ErrTimeout
	}
	return make([]byte, int(c.Count)*2), nil
}

func (f *fakeReader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type collector struct {
	mu      sync.Mutex
	samples []sample.Decoded
}

func (c *collector) Enqueue(s sample.Decoded) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

type recorder struct {
	ok       int
	failures []int
	evicted  []uint8
	rebuilt  []int
}

func (r *recorder) SampleOK(sample.Decoded) { r.ok++ }
func (r *recorder) SampleFailed(_, _ uint8, _ error, failures int) {
	r.failures = append(r.failures, failures)
}
func (r *recorder) DeviceEvicted(id uint8) { r.evicted = append(r.evicted, id) }
func (r *recorder) ScheduleRebuilt(n int)  { r.rebuilt = append(r.rebuilt, n) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func sensor(id uint8, baseMs uint16, maxRegs uint16, channels uint8) registry.SensorDescriptor {
	return registry.SensorDescriptor{
		SensorID:       id,
		Channels:       channels,
		StartAddress:   0x100 + uint16(id),
		MaxRegisters:   maxRegs,
		BaseIntervalMs: baseMs,
		DataType:       registry.DataTypeUint16,
	}
}

func newTestScheduler(t *testing.T, reg *registry.Registry, rd Reader) (*Scheduler, *collector, *recorder, *clock) {
	t.Helper()
	sink := &collector{}
	rec := &recorder{}
	s, err := New(Config{RequestTimeout: time.Second, IdleSleep: time.Second}, reg, rd, sink, rec)
	require.NoError(t, err)

	clk := &clock{t: time.Unix(1700000000, 0)}
	s.now = clk.now
	return s, sink, rec, clk
}

func TestInterval(t *testing.T) {
	assert.Equal(t, 1800*time.Millisecond, Interval(300*time.Millisecond, 18, 3))
	assert.Equal(t, 2100*time.Millisecond, Interval(300*time.Millisecond, 19, 3))
	assert.Equal(t, 300*time.Millisecond, Interval(300*time.Millisecond, 18, 0))
	assert.Equal(t, 300*time.Millisecond, Interval(300*time.Millisecond, 0, 3))
}

func TestRunOnceFiresDueEntries(t *testing.T) {
	reg := registry.New(3)
	reg.UpsertSensor(1, sensor(0, 300, 18, 3)) // 1800ms
	reg.UpsertSensor(1, sensor(1, 100, 2, 1))  // 200ms

	rd := &fakeReader{}
	s, sink, rec, clk := newTestScheduler(t, reg, rd)

	sleep := s.RunOnce(context.Background())
	assert.Equal(t, 2, rd.count(), "new entries are due immediately")
	assert.Equal(t, 200*time.Millisecond, sleep)
	assert.Len(t, sink.samples, 2)
	assert.Equal(t, 2, rec.ok)

	c := rd.calls[0]
	assert.Equal(t, uint8(1), c.DeviceID)
	assert.Equal(t, uint8(3), c.Function)
	assert.Equal(t, uint16(0x100), c.Address)
	assert.Equal(t, uint16(18), c.Count)
	assert.Equal(t, bridge.KindSampling, c.Kind)

	clk.advance(200 * time.Millisecond)
	s.RunOnce(context.Background())
	assert.Equal(t, 3, rd.count(), "only the fast sensor is due")

	clk.advance(1600 * time.Millisecond)
	s.RunOnce(context.Background())
	assert.Equal(t, 5, rd.count())
}

func TestEmptyScheduleSleepsIdle(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, registry.New(3), &fakeReader{})
	assert.Equal(t, time.Second, s.RunOnce(context.Background()))
}

func TestEvictionRebuildsSchedule(t *testing.T) {
	reg := registry.New(3)
	reg.UpsertSensor(1, sensor(0, 100, 1, 1))
	reg.UpsertSensor(2, sensor(0, 100, 1, 1))

	rd := &fakeReader{fail: map[uint8]bool{2: true}}
	s, _, rec, clk := newTestScheduler(t, reg, rd)

	for i := 0; i < 3; i++ {
		s.RunOnce(context.Background())
		clk.advance(100 * time.Millisecond)
	}

	assert.Equal(t, []int{1, 2, 3}, rec.failures)
	assert.Equal(t, []uint8{2}, rec.evicted)
	assert.False(t, reg.Has(2))
	assert.True(t, reg.Has(1))

	st := s.Status()
	require.Len(t, st.Entries, 1)
	assert.Equal(t, uint8(1), st.Entries[0].DeviceID)

	// device 2 is never read again
	before := rd.count()
	s.RunOnce(context.Background())
	assert.Equal(t, before+1, rd.count())
	assert.Equal(t, uint8(1), rd.calls[len(rd.calls)-1].DeviceID)
}

func TestSuccessResetsFailures(t *testing.T) {
	reg := registry.New(3)
	reg.UpsertSensor(1, sensor(0, 100, 1, 1))

	rd := &fakeReader{fail: map[uint8]bool{1: true}}
	s, _, _, clk := newTestScheduler(t, reg, rd)

	s.RunOnce(context.Background())
	clk.advance(100 * time.Millisecond)
	s.RunOnce(context.Background())
	n, _ := reg.Failures(1)
	assert.Equal(t, 2, n)

	rd.mu.Lock()
	rd.fail[1] = false
	rd.mu.Unlock()

	clk.advance(100 * time.Millisecond)
	s.RunOnce(context.Background())
	n, _ = reg.Failures(1)
	assert.Equal(t, 0, n)
	assert.True(t, reg.Has(1))
}

func TestRegistryChangeTriggersRebuild(t *testing.T) {
	reg := registry.New(3)
	reg.UpsertSensor(1, sensor(0, 1000, 1, 1))

	rd := &fakeReader{}
	s, _, rec, clk := newTestScheduler(t, reg, rd)

	s.RunOnce(context.Background())
	require.Equal(t, 1, rd.count())

	reg.UpsertSensor(3, sensor(4, 1000, 1, 1))
	clk.advance(10 * time.Millisecond)
	s.RunOnce(context.Background())

	// only the new sensor is due: the existing one kept its next fire time
	require.Equal(t, 2, rd.count())
	assert.Equal(t, uint8(3), rd.calls[1].DeviceID)
	assert.Equal(t, []int{1, 2}, rec.rebuilt)

	reg.RemoveDevice(3)
	s.RunOnce(context.Background())
	assert.Len(t, s.Status().Entries, 1)
}

func TestPauseResume(t *testing.T) {
	reg := registry.New(3)
	reg.UpsertSensor(1, sensor(0, 1, 1, 1))

	rd := &fakeReader{}
	s, _, _, _ := newTestScheduler(t, reg, rd)
	s.now = time.Now

	s.Pause()
	assert.True(t, s.Paused())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rd.count())

	s.Resume()
	require.Eventually(t, func() bool { return rd.count() > 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type slowPublisher struct{ delay time.Duration }

func (p slowPublisher) WriteStatus(uint8, status.Snapshot) error {
	time.Sleep(p.delay)
	return nil
}

func TestSlowStatusPublisherDoesNotStretchCycle(t *testing.T) {
	reg := registry.New(3)
	for id := uint8(0); id < 4; id++ {
		reg.UpsertSensor(1, sensor(id, 100, 1, 1))
	}

	tracker := status.NewTracker(slowPublisher{delay: 500 * time.Millisecond}, 0)
	s, err := New(Config{RequestTimeout: time.Second, IdleSleep: time.Second}, reg, &fakeReader{}, &collector{}, tracker)
	require.NoError(t, err)

	start := time.Now()
	s.RunOnce(context.Background())
	took := time.Since(start)

	assert.Less(t, took, 100*time.Millisecond, "cycle of 4 reads took %v", took)
	assert.Equal(t, 1, tracker.Pending())
}
