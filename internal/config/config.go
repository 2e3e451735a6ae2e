// internal/config/config.go
package config

import "time"

type Config struct {
	Recorder RecorderConfig `yaml:"recorder"`
}

type RecorderConfig struct {
	OutputRoot string         `yaml:"output_root"`
	Server     ServerConfig   `yaml:"server"`
	Status     *StatusConfig  `yaml:"status"` // optional
	Devices    []DeviceConfig `yaml:"devices"`
}

// ---- COORDINATION SERVER ----

type ServerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// ---- STATUS MEMORY (OPT-IN) ----

type StatusConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	DeviceID          int           `yaml:"device_id"`
	Name              string        `yaml:"name"`
	SyncPolicy        string        `yaml:"sync_policy"`
	SegmentFrameLimit int           `yaml:"segment_frame_limit"`
	MaxTotalFrames    int           `yaml:"max_total_frames"` // 0 => unlimited
	ExchangeTimeout   time.Duration `yaml:"exchange_timeout"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`

	TelemetryColumns []string       `yaml:"telemetry_columns"`
	Streams          []StreamConfig `yaml:"streams"`
	Source           SourceConfig   `yaml:"source"`
}

// ---- STREAMS ----

type StreamConfig struct {
	Name   string `yaml:"name"`
	Codec  string `yaml:"codec"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// ---- SOURCE ----

type SourceConfig struct {
	Type       string `yaml:"type"`
	IntervalMs int    `yaml:"interval_ms"`
	MaxFrames  int    `yaml:"max_frames"` // 0 => endless
}

// Recognized values.
const (
	PolicyStrict  = "strict"
	PolicyRelaxed = "relaxed"

	SourceSynthetic = "synthetic"
)

// Defaults applied by Normalize.
const (
	DefaultExchangeTimeout = 200 * time.Millisecond
	DefaultCodec           = "V_UNCOMPRESSED"
	DefaultStatusTimeoutMs = 1000
	DefaultFPS             = 30
)
