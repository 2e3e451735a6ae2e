// internal/config/validate_test.go
package config

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

// helper to build a device quickly
func device(id int, policy string, limit int, streams ...string) DeviceConfig {
	d := DeviceConfig{
		DeviceID:          id,
		SyncPolicy:        policy,
		SegmentFrameLimit: limit,
	}
	for _, s := range streams {
		d.Streams = append(d.Streams, StreamConfig{Name: s, Width: 640, Height: 480})
	}
	return d
}

func recorder(devs ...DeviceConfig) *Config {
	return &Config{
		Recorder: RecorderConfig{
			OutputRoot: "/tmp/rec",
			Server:     ServerConfig{Endpoint: "127.0.0.1:5005"},
			Devices:    devs,
		},
	}
}

func slot(v uint16) *uint16 { return &v }

// ---- tests ----

func TestValidate_MinimalRelaxed(t *testing.T) {
	cfg := recorder(device(1, PolicyRelaxed, 1000, "rgb", "depth"))

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownPolicyRejected(t *testing.T) {
	cfg := recorder(device(1, "loose", 1000, "rgb"))

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected policy error, got nil")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate_NonPositiveLimitsRejected(t *testing.T) {
	cases := map[string]DeviceConfig{
		"zero segment limit": device(1, PolicyRelaxed, 0, "rgb"),
		"negative max":       func() DeviceConfig { d := device(1, PolicyRelaxed, 10, "rgb"); d.MaxTotalFrames = -1; return d }(),
		"zero device id":     device(0, PolicyRelaxed, 10, "rgb"),
		"negative timeout":   func() DeviceConfig { d := device(1, PolicyRelaxed, 10, "rgb"); d.ExchangeTimeout = -time.Second; return d }(),
	}

	for name, d := range cases {
		if err := Validate(recorder(d)); err == nil {
			t.Fatalf("%s: expected error, got nil", name)
		}
	}
}

func TestValidate_DuplicateDeviceRejected(t *testing.T) {
	cfg := recorder(
		device(1, PolicyRelaxed, 10, "rgb"),
		device(1, PolicyRelaxed, 10, "rgb"),
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate device error, got nil")
	}
}

func TestValidate_StreamNamesBecomePathComponents(t *testing.T) {
	for _, name := range []string{"", "rgb_1", "a/b", "data", "x.y"} {
		cfg := recorder(device(1, PolicyRelaxed, 10, name))
		if err := Validate(cfg); err == nil {
			t.Fatalf("stream name %q: expected error, got nil", name)
		}
	}
}

func TestValidate_TelemetryCannotReplaceRequiredColumns(t *testing.T) {
	d := device(1, PolicyRelaxed, 10, "rgb")
	d.TelemetryColumns = []string{"exposure", "local_timestamp"}

	if err := Validate(recorder(d)); err == nil {
		t.Fatalf("expected reserved column error, got nil")
	}
}

func TestValidate_StrictNeedsServer(t *testing.T) {
	cfg := recorder(device(1, PolicyStrict, 10, "rgb"))
	cfg.Recorder.Server.Endpoint = ""

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected strict/server error, got nil")
	}

	// relaxed runs fine without a server
	cfg.Recorder.Devices[0].SyncPolicy = PolicyRelaxed
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StatusSlotCollisionDetected(t *testing.T) {
	a := device(1, PolicyRelaxed, 10, "rgb")
	a.StatusSlot = slot(2)
	b := device(2, PolicyRelaxed, 10, "rgb")
	b.StatusSlot = slot(2)

	cfg := recorder(a, b)
	cfg.Recorder.Status = &StatusConfig{Endpoint: "127.0.0.1:502", UnitID: 1}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected slot collision error, got nil")
	}

	b.StatusSlot = slot(3)
	cfg = recorder(a, b)
	cfg.Recorder.Status = &StatusConfig{Endpoint: "127.0.0.1:502", UnitID: 1}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StatusSlotNeedsEndpoint(t *testing.T) {
	d := device(1, PolicyRelaxed, 10, "rgb")
	d.StatusSlot = slot(0)

	if err := Validate(recorder(d)); err == nil {
		t.Fatalf("expected missing status endpoint error, got nil")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	d := device(1, PolicyRelaxed, 10, "rgb")
	d.Name = "a-very-long-device-name"
	cfg := recorder(d)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg)

	got := cfg.Recorder.Devices[0]
	if got.ExchangeTimeout != DefaultExchangeTimeout {
		t.Fatalf("exchange timeout: got=%v want=%v", got.ExchangeTimeout, DefaultExchangeTimeout)
	}
	if got.Source.Type != SourceSynthetic {
		t.Fatalf("source type: got=%q", got.Source.Type)
	}
	if got.Streams[0].Codec != DefaultCodec || got.Streams[0].FPS != DefaultFPS {
		t.Fatalf("stream defaults not applied: %+v", got.Streams[0])
	}
	if got.Source.IntervalMs != 1000/DefaultFPS {
		t.Fatalf("interval: got=%d", got.Source.IntervalMs)
	}
	if len(got.Name) != 16 {
		t.Fatalf("name not truncated: %q", got.Name)
	}
}
