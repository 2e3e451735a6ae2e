// internal/segment/errors.go
package segment

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSinkNotOpen is returned when writing to a segment that is not open
	// or to a stream that has no sink.
	ErrSinkNotOpen = errors.New("sink not open")

	// ErrSegmentOpen is returned by Open while the previous segment has not
	// been finalized.
	ErrSegmentOpen = errors.New("previous segment still open")

	// ErrOutOfOrder is returned when a record does not advance frame_number.
	ErrOutOfOrder = errors.New("frame number not increasing")

	// ErrOutputRoot is returned when the output root cannot be written.
	ErrOutputRoot = errors.New("output root not writable")
)

// WriteError is a failed write, flush or close on a segment. The recorder
// treats it as fatal for the run.
type WriteError struct {
	Segment int
	Stream  string // empty for log / segment-level failures
	Err     error
}

func (e *WriteError) Error() string {
	if e.Stream != "" {
		return fmt.Sprintf("segment %d stream %s: %v", e.Segment, e.Stream, e.Err)
	}
	return fmt.Sprintf("segment %d: %v", e.Segment, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
