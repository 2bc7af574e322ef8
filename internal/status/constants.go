// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of registers per device block.
// Device N owns registers N*SlotsPerDevice .. N*SlotsPerDevice+7.
const SlotsPerDevice = 8

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the code of the last failed read.
const SlotLastErrorCode = 1

// SlotConsecutiveFailures holds the registry failure counter.
const SlotConsecutiveFailures = 2

// SlotLastSensorID holds the sensor id of the last successful read.
const SlotLastSensorID = 3

// SlotLastSeenHi and SlotLastSeenLo hold the unix time of the last successful read.
const SlotLastSeenHi = 4
const SlotLastSeenLo = 5

// Slots 6–7 are reserved.
const SlotReservedStart = 6
const SlotReservedEnd = 7

// ---- HEALTH CODES ----

// HealthUnknown represents a registered device not read yet.
const HealthUnknown uint16 = 0

// HealthOK represents a device whose last read succeeded.
const HealthOK uint16 = 1

// HealthError represents a device whose last read failed.
const HealthError uint16 = 2

// HealthStale represents an OK device not read for longer than the stale period.
const HealthStale uint16 = 3

// HealthEvicted represents a device dropped after consecutive failures.
const HealthEvicted uint16 = 4
