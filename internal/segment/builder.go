// internal/segment/builder.go
package segment

import (
	"log/slog"

	"github.com/spf13/afero"

	cfg "github.com/tamzrod/capture-sync/internal/config"
)

// BuildConfig converts one device config into a WriterConfig.
// Assumes config has already been normalized and validated.
func BuildConfig(root string, d cfg.DeviceConfig, fs afero.Fs, log *slog.Logger) WriterConfig {
	streams := make([]StreamSpec, 0, len(d.Streams))
	for _, s := range d.Streams {
		streams = append(streams, StreamSpec{
			Name:   s.Name,
			Codec:  s.Codec,
			Width:  s.Width,
			Height: s.Height,
			FPS:    s.FPS,
		})
	}

	return WriterConfig{
		Fs:               fs,
		Root:             root,
		Streams:          streams,
		Encoder:          WebM{},
		FrameLimit:       d.SegmentFrameLimit,
		TelemetryColumns: d.TelemetryColumns,
		Log:              log,
	}
}
