// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalid marks every configuration error reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Columns every structured log carries; telemetry columns may not reuse them.
var reservedColumns = map[string]struct{}{
	"frame_number":        {},
	"local_timestamp":     {},
	"server_timestamp":    {},
	"global_frame_number": {},
	"server_response":     {},
}

func invalid(format string, args ...any) error {
	return errors.Wrap(ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config is nil")
	}

	r := cfg.Recorder

	if len(r.Devices) == 0 {
		return invalid("at least one device is required")
	}

	seenIDs := make(map[int]struct{})

	for _, d := range r.Devices {
		if d.DeviceID < 1 {
			return invalid("device_id must be >= 1, got %d", d.DeviceID)
		}
		if _, dup := seenIDs[d.DeviceID]; dup {
			return invalid("device_id %d declared more than once", d.DeviceID)
		}
		seenIDs[d.DeviceID] = struct{}{}

		if err := validateDevice(d, r.Server); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	slotOwner := make(map[uint16]int)

	for _, d := range r.Devices {
		// device name sanity (ASCII only)
		for i := 0; i < len(d.Name); i++ {
			if d.Name[i] > 0x7F {
				return invalid("device %d: name must contain ASCII characters only", d.DeviceID)
			}
		}

		// status is opt-in
		if d.StatusSlot == nil {
			continue
		}

		if r.Status == nil || r.Status.Endpoint == "" {
			return invalid("device %d: status_slot is set but recorder.status.endpoint is not", d.DeviceID)
		}

		slot := *d.StatusSlot
		if prev, exists := slotOwner[slot]; exists {
			return invalid("status_slot collision: slot=%d used by devices %d and %d", slot, prev, d.DeviceID)
		}
		slotOwner[slot] = d.DeviceID
	}

	if r.Status != nil && r.Status.TimeoutMs < 0 {
		return invalid("status.timeout_ms must be >= 0")
	}

	return nil
}

func validateDevice(d DeviceConfig, srv ServerConfig) error {
	switch d.SyncPolicy {
	case PolicyStrict:
		// strict gates every write on the server; without one nothing is ever saved
		if srv.Endpoint == "" {
			return invalid("device %d: sync_policy %q requires server.endpoint", d.DeviceID, d.SyncPolicy)
		}
	case PolicyRelaxed:
	default:
		return invalid("device %d: unknown sync_policy %q (want %q or %q)",
			d.DeviceID, d.SyncPolicy, PolicyStrict, PolicyRelaxed)
	}

	if d.SegmentFrameLimit <= 0 {
		return invalid("device %d: segment_frame_limit must be > 0", d.DeviceID)
	}
	if d.MaxTotalFrames < 0 {
		return invalid("device %d: max_total_frames must be > 0 when set", d.DeviceID)
	}
	if d.ExchangeTimeout < 0 {
		return invalid("device %d: exchange_timeout must be positive", d.DeviceID)
	}

	// ------------------------------------------------------------
	// STREAM GEOMETRY
	// ------------------------------------------------------------

	if len(d.Streams) == 0 {
		return invalid("device %d: at least one stream is required", d.DeviceID)
	}

	names := make(map[string]struct{})
	for _, s := range d.Streams {
		if s.Name == "" {
			return invalid("device %d: stream name required", d.DeviceID)
		}
		// names become path components: <device>_<stream>_<segment>.<ext>
		if strings.ContainsAny(s.Name, `_/\. `) {
			return invalid("device %d: stream name %q may not contain '_', '.', '/', '\\' or spaces", d.DeviceID, s.Name)
		}
		if s.Name == "data" {
			return invalid("device %d: stream name %q is reserved for the structured log", d.DeviceID, s.Name)
		}
		if _, dup := names[s.Name]; dup {
			return invalid("device %d: stream %q declared more than once", d.DeviceID, s.Name)
		}
		names[s.Name] = struct{}{}

		if s.Width < 0 || s.Height < 0 || s.FPS < 0 {
			return invalid("device %d: stream %q has negative geometry", d.DeviceID, s.Name)
		}
	}

	cols := make(map[string]struct{})
	for _, c := range d.TelemetryColumns {
		if c == "" {
			return invalid("device %d: empty telemetry column", d.DeviceID)
		}
		if _, reserved := reservedColumns[c]; reserved {
			return invalid("device %d: telemetry column %q replaces a required column", d.DeviceID, c)
		}
		if _, dup := cols[c]; dup {
			return invalid("device %d: telemetry column %q declared more than once", d.DeviceID, c)
		}
		cols[c] = struct{}{}
	}

	// ------------------------------------------------------------
	// SOURCE
	// ------------------------------------------------------------

	switch d.Source.Type {
	case "", SourceSynthetic:
	default:
		return invalid("device %d: unknown source type %q", d.DeviceID, d.Source.Type)
	}
	if d.Source.IntervalMs < 0 {
		return invalid("device %d: source.interval_ms must be >= 0", d.DeviceID)
	}
	if d.Source.MaxFrames < 0 {
		return invalid("device %d: source.max_frames must be >= 0", d.DeviceID)
	}

	return nil
}
