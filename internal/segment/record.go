// internal/segment/record.go
package segment

import (
	"strconv"
	"time"

	"github.com/tamzrod/capture-sync/internal/syncclient"
)

// FrameRecord is one row of the structured per-segment log.
type FrameRecord struct {
	FrameNumber       uint64 // segment-local, reset at rotation
	GlobalFrameNumber uint64 // never reset
	LocalTimestamp    time.Time
	ServerTimestamp   string // syncclient.Unavailable when the server was unreachable
	ServerResponse    syncclient.Response

	// Telemetry values keyed by column; missing columns are written empty.
	Telemetry map[string]string
}

// baseColumns lead every log; telemetry columns are appended after them.
var baseColumns = []string{
	"frame_number",
	"local_timestamp",
	"server_timestamp",
	"global_frame_number",
	"server_response",
}

// CSVHeader returns the ordered column names for a log with the given
// telemetry columns.
func CSVHeader(telemetry []string) []string {
	out := make([]string, 0, len(baseColumns)+len(telemetry))
	out = append(out, baseColumns...)
	return append(out, telemetry...)
}

// CSVRow serialises the record in CSVHeader order.
func (r *FrameRecord) CSVRow(telemetry []string) []string {
	row := make([]string, 0, len(baseColumns)+len(telemetry))
	row = append(row,
		strconv.FormatUint(r.FrameNumber, 10),
		r.LocalTimestamp.UTC().Format(time.RFC3339Nano),
		r.ServerTimestamp,
		strconv.FormatUint(r.GlobalFrameNumber, 10),
		string(r.ServerResponse),
	)
	for _, c := range telemetry {
		row = append(row, r.Telemetry[c])
	}
	return row
}
