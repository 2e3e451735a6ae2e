// internal/status/snapshot.go
package status

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Session         uint16
	LastFailureCode uint16
	SecondsDegraded uint16
	SegmentIndex    uint16
	GlobalFrames    uint32
	RecorderState   uint16
}
