// internal/config/normalize.go
package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultBusKind           = "rtu"
	DefaultBaudRate          = 9600
	DefaultDataBits          = 8
	DefaultParity            = "N"
	DefaultStopBits          = 1
	DefaultBusTimeoutMs      = 2000
	DefaultQueueDepth        = 5
	DefaultDiscoveryTimeout  = 3000
	DefaultDiscoveryDelayMs  = 50
	DefaultRequestTimeoutMs  = 3000
	DefaultIdleSleepMs       = 1000
	DefaultEvictionThreshold = 3
	DefaultWindowMs          = 6100
	DefaultMaxPayload        = 220
	DefaultNATSSubjectPrefix = "uplink."
	DefaultReconnectWaitMs   = 2000
	DefaultMaxReconnects     = -1
	DefaultIngestTimeoutMs   = 2000
	DefaultStatusTimeoutMs   = 2000
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
)

// DefaultDevices is the bootstrap poll list when none is configured.
var DefaultDevices = []int{1, 2, 3}

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ---- bus ----
	cfg.Bus.Kind = strings.ToLower(cfg.Bus.Kind)
	if cfg.Bus.Kind == "" {
		cfg.Bus.Kind = DefaultBusKind
	}
	cfg.Bus.Parity = strings.ToUpper(cfg.Bus.Parity)
	if cfg.Bus.Parity == "" {
		cfg.Bus.Parity = DefaultParity
	}
	setDefault(&cfg.Bus.BaudRate, DefaultBaudRate)
	setDefault(&cfg.Bus.DataBits, DefaultDataBits)
	setDefault(&cfg.Bus.StopBits, DefaultStopBits)
	setDefault(&cfg.Bus.TimeoutMs, DefaultBusTimeoutMs)
	setDefault(&cfg.Bus.QueueDepth, DefaultQueueDepth)

	// ---- discovery ----
	if len(cfg.Discovery.Devices) == 0 {
		cfg.Discovery.Devices = append([]int(nil), DefaultDevices...)
	}
	setDefault(&cfg.Discovery.TimeoutMs, DefaultDiscoveryTimeout)
	setDefault(&cfg.Discovery.DelayMs, DefaultDiscoveryDelayMs)

	// ---- scheduler ----
	setDefault(&cfg.Scheduler.RequestTimeoutMs, DefaultRequestTimeoutMs)
	setDefault(&cfg.Scheduler.IdleSleepMs, DefaultIdleSleepMs)
	setDefault(&cfg.Scheduler.EvictionThreshold, DefaultEvictionThreshold)

	// ---- aggregator ----
	setDefault(&cfg.Aggregator.WindowMs, DefaultWindowMs)
	setDefault(&cfg.Aggregator.MaxPayload, DefaultMaxPayload)
	if len(cfg.Aggregator.Slots) == 0 {
		cfg.Aggregator.Slots = []int{0, 1, 2, 3, 4, 5, 6, 7}
	}

	// ---- uplink ----
	if cfg.Uplink.NATS.URL != "" {
		if cfg.Uplink.NATS.Subject == "" {
			cfg.Uplink.NATS.Subject = DefaultNATSSubjectPrefix + cfg.Node.ID
		}
		setDefault(&cfg.Uplink.NATS.ReconnectWaitMs, DefaultReconnectWaitMs)
		if cfg.Uplink.NATS.MaxReconnects == 0 {
			cfg.Uplink.NATS.MaxReconnects = DefaultMaxReconnects
		}
	}
	setDefault(&cfg.Uplink.Ingest.TimeoutMs, DefaultIngestTimeoutMs)
	setDefault(&cfg.StatusMemory.TimeoutMs, DefaultStatusTimeoutMs)

	// ---- log ----
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
