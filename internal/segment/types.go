// internal/segment/types.go
package segment

import (
	"io"
	"time"

	"github.com/tamzrod/capture-sync/internal/source"
)

// State is the lifecycle of a RecordingSegment.
// Open -> Finalizing -> Closed, exactly once.
type State int

const (
	StateOpen State = iota
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamSpec is one output stream of a device.
type StreamSpec struct {
	Name   string
	Codec  string
	Width  int
	Height int
	FPS    int
}

// Sink receives the frames of one stream for one segment.
// at is the frame's offset from the segment's first frame.
type Sink interface {
	WriteFrame(f source.Frame, at time.Duration) error
	Close() error
}

// Encoder turns an exclusively-owned file into a Sink.
// The sink owns w and must close it on Close.
type Encoder interface {
	Ext() string
	NewSink(w io.WriteCloser, spec StreamSpec) (Sink, error)
}
