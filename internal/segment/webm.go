// internal/segment/webm.go
package segment

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/tamzrod/capture-sync/internal/source"
)

// closeWait bounds how long Close waits for the muxer to release the file.
const closeWait = 5 * time.Second

// WebM writes each stream as a single-track Matroska/WebM file holding
// one SimpleBlock per frame. Codec defaults to V_UNCOMPRESSED.
type WebM struct{}

func (WebM) Ext() string { return "webm" }

func (WebM) NewSink(w io.WriteCloser, spec StreamSpec) (Sink, error) {
	s := &webmSink{
		file: &syncCloser{w: w, done: make(chan struct{})},
	}

	codec := spec.Codec
	if codec == "" {
		codec = "V_UNCOMPRESSED"
	}
	var frameDur uint64
	if spec.FPS > 0 {
		frameDur = uint64(time.Second / time.Duration(spec.FPS))
	}

	writers, err := webm.NewSimpleBlockWriter(s.file, []webm.TrackEntry{
		{
			Name:            spec.Name,
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         codec,
			TrackType:       1, // video
			DefaultDuration: frameDur,
			Video: &webm.Video{
				PixelWidth:  uint64(max(spec.Width, 0)),
				PixelHeight: uint64(max(spec.Height, 0)),
			},
		},
	}, mkvcore.WithOnFatalHandler(func(err error) {
		s.fatal.Store(&err)
	}))
	if err != nil {
		return nil, err
	}
	s.track = writers[0]
	return s, nil
}

type webmSink struct {
	track  webm.BlockWriteCloser
	file   *syncCloser
	fatal  atomic.Pointer[error]
	closed bool
}

func (s *webmSink) WriteFrame(f source.Frame, at time.Duration) error {
	if s.closed {
		return ErrSinkNotOpen
	}
	if p := s.fatal.Load(); p != nil {
		return *p
	}
	// block timestamps are in TimecodeScale units (1ms)
	if _, err := s.track.Write(true, at.Milliseconds(), f.Data); err != nil {
		return err
	}
	return nil
}

func (s *webmSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.track.Close()
	// the muxer closes the file from its own goroutine once every track
	// is closed
	select {
	case <-s.file.done:
	case <-time.After(closeWait):
		return errors.New("webm: timed out waiting for muxer to close file")
	}
	if err == nil {
		err = s.file.err
	}
	if err == nil {
		if p := s.fatal.Load(); p != nil {
			err = *p
		}
	}
	return err
}

// syncCloser syncs the file (when it can) before closing it and signals
// done.
type syncCloser struct {
	w    io.WriteCloser
	once sync.Once
	done chan struct{}
	err  error
}

func (c *syncCloser) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *syncCloser) Close() error {
	c.once.Do(func() {
		if s, ok := c.w.(interface{ Sync() error }); ok {
			c.err = s.Sync()
		}
		if err := c.w.Close(); err != nil && c.err == nil {
			c.err = err
		}
		close(c.done)
	})
	return c.err
}
