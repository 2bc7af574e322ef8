// internal/scheduler/schedule.go
package scheduler

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/registry"
)

// Interval is base × ceil(maxRegisters / channels).
// With no channels or no registers the base interval is used unchanged.
func Interval(base time.Duration, maxRegisters uint16, channels uint8) time.Duration {
	if channels == 0 || maxRegisters == 0 {
		return base
	}
	mult := (int(maxRegisters) + int(channels) - 1) / int(channels)
	return base * time.Duration(mult)
}

type entryKey struct {
	device uint8
	sensor uint8
}

// build derives the schedule from devices. Entries present in prev keep their
// next fire time; new ones are due at now.
func build(devices []registry.Device, prev []Entry, now time.Time, fallback time.Duration) []Entry {
	carried := make(map[entryKey]time.Time, len(prev))
	for _, e := range prev {
		carried[entryKey{e.DeviceID, e.SensorID}] = e.Next
	}

	var out []Entry
	for _, d := range devices {
		for _, s := range d.Sensors {
			iv := Interval(time.Duration(s.BaseIntervalMs)*time.Millisecond, s.MaxRegisters, s.Channels)
			if iv <= 0 {
				log.Warn().
					Uint8("device", d.ID).
					Uint8("sensor", s.SensorID).
					Dur("fallback", fallback).
					Msg("scheduler: sensor has no sampling interval")
				iv = fallback
			}

			next, ok := carried[entryKey{d.ID, s.SensorID}]
			if !ok {
				next = now
			}

			out = append(out, Entry{
				DeviceID: d.ID,
				SensorID: s.SensorID,
				Interval: iv,
				Next:     next,
			})
		}
	}
	return out
}
