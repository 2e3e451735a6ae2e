// internal/source/synthetic.go
package source

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// StreamGeometry describes one stream the synthetic source emits.
type StreamGeometry struct {
	Name   string
	Width  int
	Height int
}

// SyntheticConfig is the minimal runtime config the synthetic source needs.
type SyntheticConfig struct {
	Interval  time.Duration // 0 => unpaced
	MaxFrames int           // 0 => endless
	Streams   []StreamGeometry
}

// Synthetic is a dumb, clock-driven frame generator.
// Frame payloads are a flat fill of the sequence number's low byte.
type Synthetic struct {
	cfg SyntheticConfig

	mu     sync.Mutex
	seq    uint64
	ticker *time.Ticker
	closed bool
}

// NewSynthetic creates a synthetic source with immutable config.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Interval < 0 {
		return nil, errors.New("source: interval must be >= 0")
	}
	if cfg.MaxFrames < 0 {
		return nil, errors.New("source: max frames must be >= 0")
	}
	if len(cfg.Streams) == 0 {
		return nil, errors.New("source: at least one stream required")
	}

	s := &Synthetic{cfg: cfg}
	if cfg.Interval > 0 {
		s.ticker = time.NewTicker(cfg.Interval)
	}
	return s, nil
}

// Next waits for the next tick and produces exactly one bundle.
func (s *Synthetic) Next(ctx context.Context) (Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Bundle{}, ErrExhausted
	}
	if s.cfg.MaxFrames > 0 && s.seq >= uint64(s.cfg.MaxFrames) {
		return Bundle{}, ErrExhausted
	}

	if s.ticker != nil {
		select {
		case <-ctx.Done():
			return Bundle{}, ctx.Err()
		case <-s.ticker.C:
		}
	}

	b := Bundle{
		Seq:        s.seq,
		CapturedAt: time.Now(),
		Frames:     make([]Frame, 0, len(s.cfg.Streams)),
		Telemetry: map[string]string{
			"source_seq": strconv.FormatUint(s.seq, 10),
		},
	}

	for _, g := range s.cfg.Streams {
		b.Frames = append(b.Frames, Frame{
			Stream: g.Name,
			Width:  g.Width,
			Height: g.Height,
			Data:   fill(g.Width*g.Height, byte(s.seq)),
		})
	}

	s.seq++
	return b, nil
}

// Close stops the clock. Safe to call more than once.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return nil
}

func fill(n int, v byte) []byte {
	if n <= 0 {
		n = 16
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = v
	}
	return out
}
