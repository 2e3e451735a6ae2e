// internal/source/types.go
package source

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrExhausted is returned by Next when the source has no more frames
// (end of a replay, device unplugged). It ends a run cleanly.
var ErrExhausted = errors.New("source: exhausted")

// Frame is one image of one stream.
// Pixel layout is opaque to the recorder.
type Frame struct {
	Stream string
	Width  int
	Height int
	Data   []byte
}

// Bundle is the set of co-registered frames produced by one pull
// (e.g. color + depth captured together).
type Bundle struct {
	Seq        uint64
	CapturedAt time.Time
	Frames     []Frame

	// Telemetry holds optional per-frame values keyed by column name.
	Telemetry map[string]string
}

// Source yields one bundle per call. Next may block for a bounded,
// hardware-determined time. The recorder borrows a Source and calls Close
// exactly once when it terminates.
type Source interface {
	Next(ctx context.Context) (Bundle, error)
	Close() error
}
