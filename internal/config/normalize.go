// internal/config/normalize.go
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	r := &cfg.Recorder

	if r.OutputRoot == "" {
		r.OutputRoot = filepath.Join(xdg.DataHome, "capture-sync")
	}

	if r.Status != nil && r.Status.TimeoutMs == 0 {
		r.Status.TimeoutMs = DefaultStatusTimeoutMs
	}

	for di := range r.Devices {
		d := &r.Devices[di]

		if d.ExchangeTimeout == 0 {
			d.ExchangeTimeout = DefaultExchangeTimeout
		}

		if d.Source.Type == "" {
			d.Source.Type = SourceSynthetic
		}

		for si := range d.Streams {
			s := &d.Streams[si]
			if s.Codec == "" {
				s.Codec = DefaultCodec
			}
			if s.FPS == 0 {
				s.FPS = DefaultFPS
			}
		}

		// Synthetic sources pace themselves on the first stream's rate.
		if d.Source.IntervalMs == 0 {
			d.Source.IntervalMs = max(1, 1000/d.Streams[0].FPS)
		}

		// Truncate name to what the status block can hold (16 ASCII chars).
		if len(d.Name) > 16 {
			d.Name = d.Name[:16]
		}
	}
}
