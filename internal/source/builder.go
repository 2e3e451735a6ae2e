// internal/source/builder.go
package source

import (
	"time"

	"github.com/pkg/errors"

	cfg "github.com/tamzrod/capture-sync/internal/config"
)

// Build constructs the frame source declared for one device.
// Assumes config has already passed Validate and Normalize.
func Build(d cfg.DeviceConfig) (Source, error) {
	switch d.Source.Type {
	case cfg.SourceSynthetic:
		streams := make([]StreamGeometry, 0, len(d.Streams))
		for _, s := range d.Streams {
			streams = append(streams, StreamGeometry{
				Name:   s.Name,
				Width:  s.Width,
				Height: s.Height,
			})
		}

		return NewSynthetic(SyntheticConfig{
			Interval:  time.Duration(d.Source.IntervalMs) * time.Millisecond,
			MaxFrames: d.Source.MaxFrames,
			Streams:   streams,
		})

	default:
		return nil, errors.Errorf("source: unsupported type %q (device %d)", d.Source.Type, d.DeviceID)
	}
}
