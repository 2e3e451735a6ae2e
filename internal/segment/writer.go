// internal/segment/writer.go
package segment

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/tamzrod/capture-sync/internal/source"
)

// maxIndexProbe bounds the collision search in Open.
const maxIndexProbe = 1 << 16

// WriterConfig is everything a Writer needs for one device.
type WriterConfig struct {
	Fs               afero.Fs
	Root             string
	Streams          []StreamSpec
	Encoder          Encoder
	FrameLimit       int
	TelemetryColumns []string
	Log              *slog.Logger
}

// Segment is one bounded unit of persisted output. Its sinks and log file
// are owned exclusively by the segment until Finalize.
type Segment struct {
	Index      int
	DeviceID   int
	FrameLimit int

	state   State
	start   time.Time
	sinks   map[string]Sink
	order   []string
	paths   []string
	logPath string
	logFile afero.File
	records []FrameRecord
	flushes int
}

func (s *Segment) State() State { return s.state }

// Records returns the buffered log rows.
func (s *Segment) Records() []FrameRecord { return s.records }

func (s *Segment) Len() int { return len(s.records) }

// Paths returns the sink paths in stream order.
func (s *Segment) Paths() []string { return s.paths }

func (s *Segment) LogPath() string { return s.logPath }

// Flushes counts how many times the log was written out. It is 1 after a
// successful Finalize, whatever the number of Finalize calls.
func (s *Segment) Flushes() int { return s.flushes }

// Writer serialises access to the active segment of one device.
type Writer struct {
	mu     sync.Mutex
	cfg    WriterConfig
	log    *slog.Logger
	active *Segment
}

// NewWriter validates the config and makes sure the output root exists and
// is writable.
func NewWriter(c WriterConfig) (*Writer, error) {
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	if c.Encoder == nil {
		return nil, errors.New("segment: encoder required")
	}
	if len(c.Streams) == 0 {
		return nil, errors.New("segment: at least one stream required")
	}
	if c.FrameLimit <= 0 {
		return nil, errors.Errorf("segment: frame limit must be > 0, got %d", c.FrameLimit)
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}

	if err := c.Fs.MkdirAll(c.Root, 0o755); err != nil {
		return nil, errors.Wrapf(ErrOutputRoot, "%s: %v", c.Root, err)
	}
	probe, err := afero.TempFile(c.Fs, c.Root, ".probe-")
	if err != nil {
		return nil, errors.Wrapf(ErrOutputRoot, "%s: %v", c.Root, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = c.Fs.Remove(name)

	return &Writer{
		cfg: c,
		log: c.Log.With("component", "segment"),
	}, nil
}

// Open allocates the segment with the given index, or the next free index
// when any of its paths already exists. Existing files are never truncated.
func (w *Writer) Open(index, deviceID int) (*Segment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active != nil {
		return nil, errors.Wrapf(ErrSegmentOpen, "segment %d", w.active.Index)
	}
	if index < 0 {
		return nil, errors.Errorf("segment: negative index %d", index)
	}

	for probe := 0; probe < maxIndexProbe; probe++ {
		idx := index + probe
		seg, err := w.reserve(idx, deviceID)
		if err == nil {
			if idx != index {
				w.log.Warn("segment index collided, skipped ahead",
					"device", deviceID, "requested", index, "index", idx)
			}
			w.active = seg
			w.log.Info("segment opened", "device", deviceID, "index", idx)
			return seg, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, &WriteError{Segment: idx, Err: err}
		}
	}
	return nil, errors.Errorf("segment: no free index from %d", index)
}

// reserve creates every file of one index with O_EXCL. On any failure the
// files created so far are closed and removed.
func (w *Writer) reserve(idx, deviceID int) (*Segment, error) {
	seg := &Segment{
		Index:      idx,
		DeviceID:   deviceID,
		FrameLimit: w.cfg.FrameLimit,
		sinks:      make(map[string]Sink, len(w.cfg.Streams)),
	}

	var created []string
	var opened []afero.File
	undo := func() {
		for _, s := range seg.sinks {
			_ = s.Close()
		}
		for _, f := range opened {
			_ = f.Close()
		}
		for _, p := range created {
			_ = w.cfg.Fs.Remove(p)
		}
	}

	create := func(p string) (afero.File, error) {
		f, err := w.cfg.Fs.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, err
		}
		created = append(created, p)
		return f, nil
	}

	// log first: it is the cheapest collision check
	logPath := filepath.Join(w.cfg.Root, logName(deviceID, idx))
	lf, err := create(logPath)
	if err != nil {
		undo()
		return nil, err
	}
	opened = append(opened, lf)

	for _, st := range w.cfg.Streams {
		p := filepath.Join(w.cfg.Root, sinkName(deviceID, st.Name, idx, w.cfg.Encoder.Ext()))
		f, err := create(p)
		if err != nil {
			undo()
			return nil, err
		}
		sink, err := w.cfg.Encoder.NewSink(f, st)
		if err != nil {
			_ = f.Close()
			undo()
			return nil, errors.Wrapf(err, "stream %s", st.Name)
		}
		seg.sinks[st.Name] = sink
		seg.order = append(seg.order, st.Name)
		seg.paths = append(seg.paths, p)
	}

	seg.logPath = logPath
	seg.logFile = lf
	seg.state = StateOpen
	return seg, nil
}

// Write appends each frame of the bundle to its stream's sink.
func (w *Writer) Write(seg *Segment, b source.Bundle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seg == nil || seg.state != StateOpen {
		return &WriteError{Segment: segIndex(seg), Err: ErrSinkNotOpen}
	}
	if seg.start.IsZero() {
		seg.start = b.CapturedAt
	}
	at := b.CapturedAt.Sub(seg.start)
	if at < 0 {
		at = 0
	}

	for _, f := range b.Frames {
		sink, ok := seg.sinks[f.Stream]
		if !ok {
			return &WriteError{Segment: seg.Index, Stream: f.Stream, Err: ErrSinkNotOpen}
		}
		if err := sink.WriteFrame(f, at); err != nil {
			return &WriteError{Segment: seg.Index, Stream: f.Stream, Err: err}
		}
	}
	return nil
}

// AppendRecord buffers one log row. Rows reach storage at Finalize.
func (w *Writer) AppendRecord(seg *Segment, r FrameRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seg == nil || seg.state != StateOpen {
		return &WriteError{Segment: segIndex(seg), Err: ErrSinkNotOpen}
	}
	if n := len(seg.records); n > 0 {
		last := seg.records[n-1]
		if r.FrameNumber <= last.FrameNumber || r.GlobalFrameNumber <= last.GlobalFrameNumber {
			return &WriteError{Segment: seg.Index, Err: ErrOutOfOrder}
		}
	}
	seg.records = append(seg.records, r)
	return nil
}

// Finalize flushes the log, closes every sink and marks the segment
// closed. Calling it again is a no-op.
func (w *Writer) Finalize(seg *Segment) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seg == nil || seg.state != StateOpen {
		return nil
	}
	seg.state = StateFinalizing

	var err error
	if ferr := w.flushLog(seg); ferr != nil {
		err = multierr.Append(err, &WriteError{Segment: seg.Index, Err: ferr})
	}
	for _, name := range seg.order {
		if cerr := seg.sinks[name].Close(); cerr != nil {
			err = multierr.Append(err, &WriteError{Segment: seg.Index, Stream: name, Err: cerr})
		}
	}
	seg.sinks = nil
	seg.state = StateClosed
	if w.active == seg {
		w.active = nil
	}

	w.log.Info("segment finalized",
		"device", seg.DeviceID,
		"index", seg.Index,
		"records", len(seg.records),
		"err", err,
	)
	return err
}

func (w *Writer) flushLog(seg *Segment) (err error) {
	f := seg.logFile
	seg.logFile = nil
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	cw := csv.NewWriter(bw)
	if err := cw.Write(CSVHeader(w.cfg.TelemetryColumns)); err != nil {
		return err
	}
	for i := range seg.records {
		if err := cw.Write(seg.records[i].CSVRow(w.cfg.TelemetryColumns)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	seg.flushes++
	return nil
}

// Active returns the open segment, if any.
func (w *Writer) Active() *Segment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func sinkName(deviceID int, stream string, idx int, ext string) string {
	return fmt.Sprintf("%d_%s_%d.%s", deviceID, stream, idx, ext)
}

func logName(deviceID, idx int) string {
	return fmt.Sprintf("%d_data_%d.csv", deviceID, idx)
}

func segIndex(seg *Segment) int {
	if seg == nil {
		return -1
	}
	return seg.Index
}
