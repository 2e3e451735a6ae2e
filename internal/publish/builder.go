// internal/publish/builder.go
package publish

import (
	"log/slog"
	"time"

	cfg "github.com/tamzrod/capture-sync/internal/config"
	pmodbus "github.com/tamzrod/capture-sync/internal/publish/modbus"
)

// Build creates one status reporter per device with a status slot. All
// devices share the single status endpoint client. Devices without a slot
// are absent from the returned map. The returned closer releases the
// client.
// Assumes config has already passed validation.
func Build(rc cfg.RecorderConfig, log *slog.Logger) (map[int]*Reporter, func() error, error) {
	reporters := make(map[int]*Reporter)
	noop := func() error { return nil }

	if rc.Status == nil {
		return reporters, noop, nil
	}

	enabled := false
	for _, d := range rc.Devices {
		if d.StatusSlot != nil {
			enabled = true
			break
		}
	}
	if !enabled {
		return reporters, noop, nil
	}

	cli, err := pmodbus.NewEndpointClient(pmodbus.Config{
		Endpoint: rc.Status.Endpoint,
		Timeout:  time.Duration(rc.Status.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	for _, d := range rc.Devices {
		if d.StatusSlot == nil {
			continue
		}
		sw, err := NewDeviceStatusWriter(StatusPlan{
			UnitID:     rc.Status.UnitID,
			BaseSlot:   *d.StatusSlot,
			DeviceName: d.Name,
		}, cli)
		if err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		reporters[d.DeviceID] = NewReporter(sw, log.With("device", d.DeviceID))
	}

	return reporters, cli.Close, nil
}
