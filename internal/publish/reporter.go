// internal/publish/reporter.go
package publish

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/tamzrod/capture-sync/internal/capture"
	"github.com/tamzrod/capture-sync/internal/status"
	"github.com/tamzrod/capture-sync/internal/syncclient"
)

// Reporter turns capture progress into status block writes. It owns the
// snapshot and the 1 Hz seconds-degraded ticker; the capture loop only
// hands it progress through Observe.
type Reporter struct {
	sw      StatusWriter
	log     *slog.Logger
	updates chan capture.Progress
	tick    time.Duration
}

// NewReporter builds a reporter for one device.
func NewReporter(sw StatusWriter, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		sw:      sw,
		log:     log.With("component", "status"),
		updates: make(chan capture.Progress, 16),
		tick:    time.Second,
	}
}

// Observe implements capture.Observer. It never blocks: when the queue is
// full the oldest progress is dropped.
func (r *Reporter) Observe(p capture.Progress) {
	for {
		select {
		case r.updates <- p:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

// Run delivers status until ctx ends. Queued progress is flushed before
// returning. Write failures are logged and never returned.
func (r *Reporter) Run(ctx context.Context) {
	var snap status.Snapshot

	// Default snapshot state on start.
	snap.Session = status.SessionUnknown

	secTicker := time.NewTicker(r.tick)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	r.write(snap, "start")

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case p := <-r.updates:
					if apply(&snap, p) {
						r.write(snap, "final")
					}
				default:
					return
				}
			}

		case p := <-r.updates:
			if apply(&snap, p) {
				r.write(snap, "progress")
			}

		case <-secTicker.C:
			// Tick 1 Hz while not connected.
			if snap.Session != status.SessionConnected && snap.SecondsDegraded < math.MaxUint16 {
				snap.SecondsDegraded++
				r.write(snap, "tick")
			}
		}
	}
}

func (r *Reporter) write(s status.Snapshot, reason string) {
	if err := r.sw.WriteStatus(s); err != nil {
		r.log.Warn("status write failed", "reason", reason, "error", err)
	}
}

// apply folds progress into the snapshot and reports whether it changed.
func apply(snap *status.Snapshot, p capture.Progress) bool {
	next := *snap

	next.Session = sessionCode(p.Session.State)
	if p.Session.State == syncclient.StateConnected {
		// Reset failure code and seconds-degraded on recovery.
		next.LastFailureCode = 0
		next.SecondsDegraded = 0
	} else if p.Session.LastError != nil {
		next.LastFailureCode = errorCode(p.Session.LastError)
	}

	next.SegmentIndex = clamp16(p.SegmentIndex)
	next.GlobalFrames = uint32(min(p.GlobalFrames, math.MaxUint32))
	next.RecorderState = uint16(p.State)

	changed := next != *snap
	*snap = next
	return changed
}

func sessionCode(s syncclient.State) uint16 {
	switch s {
	case syncclient.StateConnected:
		return status.SessionConnected
	case syncclient.StateDegraded:
		return status.SessionDegraded
	case syncclient.StateDisconnected:
		return status.SessionDisconnected
	default:
		return status.SessionUnknown
	}
}

func clamp16(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}

// errorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func errorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return 1
}
