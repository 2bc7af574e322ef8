// internal/status/snapshot.go
package status

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health              uint16 `json:"health"`
	LastErrorCode       uint16 `json:"last_error_code"`
	ConsecutiveFailures uint16 `json:"consecutive_failures"`
	LastSensorID        uint16 `json:"last_sensor_id"`
	LastSeen            uint32 `json:"last_seen"`
}
