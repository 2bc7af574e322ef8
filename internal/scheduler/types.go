// internal/scheduler/types.go
package scheduler

import (
	"context"
	"time"

	"github.com/tamzrod/modbus-uplink/internal/bridge"
	"github.com/tamzrod/modbus-uplink/internal/sample"
)

// Entry is one periodic sensor read. It refers to the registry by id only.
type Entry struct {
	DeviceID uint8         `json:"device_id"`
	SensorID uint8         `json:"sensor_id"`
	Interval time.Duration `json:"interval"`
	Next     time.Time     `json:"next"`
}

// Reader performs one blocking register read.
type Reader interface {
	ReadRegisters(ctx context.Context, c bridge.Call) ([]byte, error)
}

// SampleSink receives every decoded sample.
type SampleSink interface {
	Enqueue(s sample.Decoded)
}

// Observer is told about read outcomes. Calls happen on the scheduler goroutine
// and must not block.
type Observer interface {
	SampleOK(s sample.Decoded)
	SampleFailed(deviceID, sensorID uint8, err error, failures int)
	DeviceEvicted(deviceID uint8)
}

// Observers fans one event out to many observers.
type Observers []Observer

func (o Observers) SampleOK(s sample.Decoded) {
	for _, x := range o {
		x.SampleOK(s)
	}
}

func (o Observers) SampleFailed(deviceID, sensorID uint8, err error, failures int) {
	for _, x := range o {
		x.SampleFailed(deviceID, sensorID, err, failures)
	}
}

func (o Observers) DeviceEvicted(deviceID uint8) {
	for _, x := range o {
		x.DeviceEvicted(deviceID)
	}
}

// scheduleObserver is implemented by observers that track schedule size.
type scheduleObserver interface {
	ScheduleRebuilt(entries int)
}

func (o Observers) ScheduleRebuilt(entries int) {
	for _, x := range o {
		if so, ok := x.(scheduleObserver); ok {
			so.ScheduleRebuilt(entries)
		}
	}
}

// Status is a point-in-time copy of the schedule.
type Status struct {
	Paused  bool    `json:"paused"`
	Entries []Entry `json:"entries"`
}
