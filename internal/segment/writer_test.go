// internal/segment/writer_test.go
package segment

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/capture-sync/internal/source"
	"github.com/tamzrod/capture-sync/internal/syncclient"
)

// ---- fake encoder ----

type fakeEncoder struct {
	sinks    []*fakeSink
	writeErr error
}

func (e *fakeEncoder) Ext() string { return "raw" }

func (e *fakeEncoder) NewSink(w io.WriteCloser, spec StreamSpec) (Sink, error) {
	s := &fakeSink{w: w, spec: spec, err: e.writeErr}
	e.sinks = append(e.sinks, s)
	return s, nil
}

type fakeSink struct {
	w      io.WriteCloser
	spec   StreamSpec
	frames int
	closes int
	err    error
}

func (s *fakeSink) WriteFrame(f source.Frame, _ time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.frames++
	_, err := s.w.Write(f.Data)
	return err
}

func (s *fakeSink) Close() error {
	s.closes++
	return s.w.Close()
}

// ---- helpers ----

const root = "/rec"

func newTestWriter(t *testing.T, fs afero.Fs, enc Encoder, telemetry ...string) *Writer {
	t.Helper()
	w, err := NewWriter(WriterConfig{
		Fs:               fs,
		Root:             root,
		Streams:          []StreamSpec{{Name: "color"}, {Name: "depth"}},
		Encoder:          enc,
		FrameLimit:       3,
		TelemetryColumns: telemetry,
	})
	require.NoError(t, err)
	return w
}

func bundle(seq uint64) source.Bundle {
	return source.Bundle{
		Seq:        seq,
		CapturedAt: time.Unix(1_700_000_000, int64(seq)*int64(time.Millisecond)),
		Frames: []source.Frame{
			{Stream: "color", Data: []byte{1, 2}},
			{Stream: "depth", Data: []byte{3}},
		},
	}
}

func record(n, g uint64) FrameRecord {
	return FrameRecord{
		FrameNumber:       n,
		GlobalFrameNumber: g,
		LocalTimestamp:    time.Unix(1_700_000_000, 0),
		ServerTimestamp:   syncclient.Unavailable,
		ServerResponse:    syncclient.RespNone,
	}
}

func readCSV(t *testing.T, fs afero.Fs, path string) [][]string {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// ---- tests ----

func TestWriter_OpenNamesEveryPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, &fakeEncoder{})

	seg, err := w.Open(0, 7)
	require.NoError(t, err)

	assert.Equal(t, StateOpen, seg.State())
	assert.Equal(t, []string{
		filepath.Join(root, "7_color_0.raw"),
		filepath.Join(root, "7_depth_0.raw"),
	}, seg.Paths())
	assert.Equal(t, filepath.Join(root, "7_data_0.csv"), seg.LogPath())

	for _, p := range append(seg.Paths(), seg.LogPath()) {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}
}

func TestWriter_OpenSkipsCollidedIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	// a leftover from a previous run that crashed mid-segment
	prev := filepath.Join(root, "7_depth_0.raw")
	require.NoError(t, afero.WriteFile(fs, prev, []byte("keep"), 0o644))

	enc := &fakeEncoder{}
	w := newTestWriter(t, fs, enc)

	seg, err := w.Open(0, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, seg.Index)

	got, err := afero.ReadFile(fs, prev)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got), "existing data must not be truncated")

	// partial reservation of index 0 was rolled back
	ok, _ := afero.Exists(fs, filepath.Join(root, "7_data_0.csv"))
	assert.False(t, ok)
	ok, _ = afero.Exists(fs, filepath.Join(root, "7_color_0.raw"))
	assert.False(t, ok)
}

func TestWriter_FinalizeBeforeNextOpen(t *testing.T) {
	w := newTestWriter(t, afero.NewMemMapFs(), &fakeEncoder{})

	seg, err := w.Open(0, 1)
	require.NoError(t, err)

	_, err = w.Open(1, 1)
	require.ErrorIs(t, err, ErrSegmentOpen)

	require.NoError(t, w.Finalize(seg))
	next, err := w.Open(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Index)
	assert.Same(t, next, w.Active())
}

func TestWriter_WriteAndFinalizeFlushesLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	enc := &fakeEncoder{}
	w := newTestWriter(t, fs, enc, "battery")

	seg, err := w.Open(0, 2)
	require.NoError(t, err)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, w.Write(seg, bundle(i)))
		rec := record(i, i+10)
		if i == 1 {
			rec.ServerResponse = syncclient.RespSave
			rec.ServerTimestamp = "1700000000.5"
			rec.Telemetry = map[string]string{"battery": "87"}
		}
		require.NoError(t, w.AppendRecord(seg, rec))
	}

	// nothing reaches the log before finalize
	st, err := fs.Stat(seg.LogPath())
	require.NoError(t, err)
	assert.Zero(t, st.Size())

	require.NoError(t, w.Finalize(seg))
	assert.Equal(t, StateClosed, seg.State())
	assert.Nil(t, w.Active())

	rows := readCSV(t, fs, seg.LogPath())
	require.Len(t, rows, 4)
	assert.Equal(t, []string{
		"frame_number", "local_timestamp", "server_timestamp",
		"global_frame_number", "server_response", "battery",
	}, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "na", rows[1][2])
	assert.Equal(t, "", rows[1][5])
	assert.Equal(t, []string{"1", "2023-11-14T22:13:20Z", "1700000000.5", "11", "save", "87"}, rows[2])

	require.Len(t, enc.sinks, 2)
	for _, s := range enc.sinks {
		assert.Equal(t, 3, s.frames)
		assert.Equal(t, 1, s.closes)
	}
}

func TestWriter_FinalizeIsIdempotent(t *testing.T) {
	enc := &fakeEncoder{}
	w := newTestWriter(t, afero.NewMemMapFs(), enc)

	seg, err := w.Open(0, 1)
	require.NoError(t, err)
	require.NoError(t, w.AppendRecord(seg, record(0, 0)))

	require.NoError(t, w.Finalize(seg))
	require.NoError(t, w.Finalize(seg))

	assert.Equal(t, 1, seg.Flushes())
	for _, s := range enc.sinks {
		assert.Equal(t, 1, s.closes)
	}
}

func TestWriter_WriteAfterFinalizeFails(t *testing.T) {
	w := newTestWriter(t, afero.NewMemMapFs(), &fakeEncoder{})

	seg, err := w.Open(0, 1)
	require.NoError(t, err)
	require.NoError(t, w.Finalize(seg))

	err = w.Write(seg, bundle(0))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, ErrSinkNotOpen)

	err = w.AppendRecord(seg, record(0, 0))
	assert.ErrorIs(t, err, ErrSinkNotOpen)
}

func TestWriter_UnknownStreamIsWriteError(t *testing.T) {
	w := newTestWriter(t, afero.NewMemMapFs(), &fakeEncoder{})
	seg, err := w.Open(0, 1)
	require.NoError(t, err)

	b := bundle(0)
	b.Frames = append(b.Frames, source.Frame{Stream: "infrared"})
	err = w.Write(seg, b)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "infrared", werr.Stream)
	assert.ErrorIs(t, err, ErrSinkNotOpen)
}

func TestWriter_SinkFailureIsWriteError(t *testing.T) {
	boom := errors.New("disk full")
	w := newTestWriter(t, afero.NewMemMapFs(), &fakeEncoder{writeErr: boom})
	seg, err := w.Open(0, 1)
	require.NoError(t, err)

	err = w.Write(seg, bundle(0))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "color", werr.Stream)
	assert.ErrorIs(t, err, boom)
}

func TestWriter_RecordsMustIncrease(t *testing.T) {
	w := newTestWriter(t, afero.NewMemMapFs(), &fakeEncoder{})
	seg, err := w.Open(0, 1)
	require.NoError(t, err)

	require.NoError(t, w.AppendRecord(seg, record(0, 5)))
	assert.ErrorIs(t, w.AppendRecord(seg, record(0, 6)), ErrOutOfOrder)
	assert.ErrorIs(t, w.AppendRecord(seg, record(1, 5)), ErrOutOfOrder)
	assert.Equal(t, 1, seg.Len())
}

func TestNewWriter_ReadOnlyRoot(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := NewWriter(WriterConfig{
		Fs:         fs,
		Root:       root,
		Streams:    []StreamSpec{{Name: "color"}},
		Encoder:    &fakeEncoder{},
		FrameLimit: 1,
	})
	assert.ErrorIs(t, err, ErrOutputRoot)
}

func TestNewWriter_RejectsBadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewWriter(WriterConfig{Fs: fs, Root: root, Streams: []StreamSpec{{Name: "c"}}, FrameLimit: 1})
	assert.Error(t, err, "missing encoder")
	_, err = NewWriter(WriterConfig{Fs: fs, Root: root, Encoder: &fakeEncoder{}, FrameLimit: 1})
	assert.Error(t, err, "missing streams")
	_, err = NewWriter(WriterConfig{Fs: fs, Root: root, Streams: []StreamSpec{{Name: "c"}}, Encoder: &fakeEncoder{}})
	assert.Error(t, err, "zero frame limit")
}
