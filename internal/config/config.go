// internal/config/config.go
package config

type Config struct {
	Node         NodeConfig         `yaml:"node"`
	Bus          BusConfig          `yaml:"bus"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Aggregator   AggregatorConfig   `yaml:"aggregator"`
	Uplink       UplinkConfig       `yaml:"uplink"`
	Archive      ArchiveConfig      `yaml:"archive"`
	StatusMemory StatusMemoryConfig `yaml:"status_memory"`
	API          APIConfig          `yaml:"api"`
	Log          LogConfig          `yaml:"log"`
}

// ---- NODE ----

type NodeConfig struct {
	ID string `yaml:"id"`
}

// ---- BUS ----

type BusConfig struct {
	Kind    string `yaml:"kind"`    // rtu | ascii | tcp
	Address string `yaml:"address"` // serial device or host:port

	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"` // N | E | O
	StopBits int    `yaml:"stop_bits"`

	TimeoutMs     int `yaml:"timeout_ms"`
	IdleTimeoutMs int `yaml:"idle_timeout_ms"`
	QueueDepth    int `yaml:"queue_depth"`

	RS485 RS485Config `yaml:"rs485"`
}

type RS485Config struct {
	Enabled              bool `yaml:"enabled"`
	DelayRtsBeforeSendMs int  `yaml:"delay_rts_before_send_ms"`
	DelayRtsAfterSendMs  int  `yaml:"delay_rts_after_send_ms"`
	RtsHighDuringSend    bool `yaml:"rts_high_during_send"`
	RtsHighAfterSend     bool `yaml:"rts_high_after_send"`
	RxDuringTx           bool `yaml:"rx_during_tx"`
}

// ---- DISCOVERY ----

type DiscoveryConfig struct {
	Devices   []int `yaml:"devices"` // poll list, 1..247
	TimeoutMs int   `yaml:"timeout_ms"`
	DelayMs   int   `yaml:"delay_ms"` // pause between devices
}

// ---- SCHEDULER ----

type SchedulerConfig struct {
	RequestTimeoutMs  int `yaml:"request_timeout_ms"`
	IdleSleepMs       int `yaml:"idle_sleep_ms"`
	EvictionThreshold int `yaml:"eviction_threshold"`
}

// ---- AGGREGATOR ----

type AggregatorConfig struct {
	WindowMs   int   `yaml:"window_ms"`
	MaxPayload int   `yaml:"max_payload"`
	EmitEmpty  bool  `yaml:"emit_empty"`
	Slots      []int `yaml:"slots"` // slot index -> sensor id
}

// ---- UPLINK ----

type UplinkConfig struct {
	NATS   NATSConfig   `yaml:"nats"`
	Ingest IngestConfig `yaml:"ingest"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	Subject         string `yaml:"subject"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	ReconnectWaitMs int    `yaml:"reconnect_wait_ms"`
}

type IngestConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- ARCHIVE ----

type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

// ---- STATUS MEMORY ----

type StatusMemoryConfig struct {
	Endpoint     string `yaml:"endpoint"`
	UnitID       uint8  `yaml:"unit_id"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	StaleAfterMs int    `yaml:"stale_after_ms"`
}

// ---- API ----

type APIConfig struct {
	Listen    string `yaml:"listen"`
	JWTSecret string `yaml:"jwt_secret"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}
