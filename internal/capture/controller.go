// internal/capture/controller.go
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tamzrod/capture-sync/internal/segment"
	"github.com/tamzrod/capture-sync/internal/source"
	"github.com/tamzrod/capture-sync/internal/syncclient"
)

// State is the controller's lifecycle.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateStreaming
	StateRotating
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateRotating:
		return "rotating"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SyncClient is the coordination contract the controller uses.
type SyncClient interface {
	Exchange(ctx context.Context, cmd syncclient.Command) syncclient.Result
	Stats() syncclient.Stats
	DeviceID() int
}

// SegmentWriter is the persistence contract the controller uses.
type SegmentWriter interface {
	Open(index, deviceID int) (*segment.Segment, error)
	Write(seg *segment.Segment, b source.Bundle) error
	AppendRecord(seg *segment.Segment, r segment.FrameRecord) error
	Finalize(seg *segment.Segment) error
}

// Progress is what an Observer sees after every exchange and rotation.
type Progress struct {
	DeviceID     int
	State        State
	Session      syncclient.Stats
	SegmentIndex int
	GlobalFrames uint64
}

// Observer receives progress from the capture loop. Observe is called
// synchronously and must not block.
type Observer interface {
	Observe(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

func (f ObserverFunc) Observe(p Progress) { f(p) }

// Summary is emitted once the controller reaches Terminated.
type Summary struct {
	RunID           string
	DeviceID        int
	FramesCaptured  uint64
	FramesPersisted uint64
	Segments        int
	Elapsed         time.Duration
	FPS             float64 // FramesCaptured / Elapsed
}

// Config is the controller's immutable runtime config.
type Config struct {
	DeviceID          int
	Policy            string
	SegmentFrameLimit int
	MaxTotalFrames    int // 0 => unlimited

	Observer Observer
	Log      *slog.Logger
	Now      func() time.Time
}

// Controller drives one device from Init to Terminated.
type Controller struct {
	cfg     Config
	policy  Policy
	src     source.Source
	session SyncClient
	writer  SegmentWriter
	log     *slog.Logger
	now     func() time.Time
	runID   string

	mu    sync.Mutex
	state State
	ran   bool

	seg         *segment.Segment
	frameNumber uint64
	global      uint64
	captured    uint64
	segments    int
}

// New validates the config. Every configuration problem is reported here,
// before anything is captured.
func New(c Config, src source.Source, session SyncClient, w SegmentWriter) (*Controller, error) {
	p, err := ParsePolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	if c.DeviceID < 1 {
		return nil, errors.Wrapf(ErrConfiguration, "device id must be >= 1, got %d", c.DeviceID)
	}
	if c.SegmentFrameLimit <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "segment frame limit must be > 0, got %d", c.SegmentFrameLimit)
	}
	if c.MaxTotalFrames < 0 {
		return nil, errors.Wrapf(ErrConfiguration, "max total frames must be >= 0, got %d", c.MaxTotalFrames)
	}
	if src == nil || session == nil || w == nil {
		return nil, errors.Wrap(ErrConfiguration, "source, session and writer are required")
	}
	if id := session.DeviceID(); id != c.DeviceID {
		return nil, errors.Wrapf(ErrConfiguration, "sync session is scoped to device %d, not %d", id, c.DeviceID)
	}

	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	runID := uuid.NewString()
	return &Controller{
		cfg:     c,
		policy:  p,
		src:     src,
		session: session,
		writer:  w,
		log:     log.With("component", "capture", "device", c.DeviceID, "run", runID),
		now:     now,
		runID:   runID,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run executes the whole lifecycle. Cancelling ctx is the stop signal; it
// is only observed between iterations, so an in-flight pull or exchange
// always completes. Run returns a fatal write error or a source failure
// after cleanup; a clean stop returns nil.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return Summary{}, errors.New("capture: controller already ran")
	}
	c.ran = true
	c.mu.Unlock()

	start := c.now()
	// pulls and exchanges are never preempted by the stop signal
	bg := context.WithoutCancel(ctx)

	// ---- Init ----
	c.setState(StateInit)
	seg, err := c.writer.Open(0, c.cfg.DeviceID)
	if err != nil {
		c.setState(StateTerminated)
		_ = c.src.Close()
		return c.summary(start), errors.Wrap(err, "capture: open first segment")
	}
	c.seg = seg
	c.segments = 1

	// ---- Connecting ----
	c.setState(StateConnecting)
	c.session.Exchange(bg, syncclient.CmdConnect)
	c.notify()

	// ---- Streaming ----
	c.setState(StateStreaming)
	c.log.Info("capture started",
		"policy", c.policy,
		"segment_frame_limit", c.cfg.SegmentFrameLimit,
		"max_total_frames", c.cfg.MaxTotalFrames,
	)

	var (
		fatal   error
		srcErr  error
		pending *source.Bundle
	)

	for ctx.Err() == nil {
		b, err := c.src.Next(bg)
		if err != nil {
			if !errors.Is(err, source.ErrExhausted) {
				srcErr = errors.Wrap(err, "capture: source")
				c.log.Error("source failed", "error", err)
			}
			break
		}
		c.captured++

		if ctx.Err() != nil {
			pending = &b
			break
		}

		res := c.session.Exchange(bg, c.policy.Command())
		c.notify()

		if !c.policy.Persist(res.Response) {
			c.log.Debug("frame skipped", "seq", b.Seq, "response", res.Response)
			continue
		}

		if err := c.persist(b, res); err != nil {
			fatal = err
			break
		}

		// rotation first: it must complete even when the frame cap is hit
		// on the same frame
		if c.frameNumber == uint64(c.cfg.SegmentFrameLimit) {
			if err := c.rotate(); err != nil {
				fatal = err
				break
			}
		}
		if c.cfg.MaxTotalFrames > 0 && c.global >= uint64(c.cfg.MaxTotalFrames) {
			c.log.Info("max total frames reached", "frames", c.global)
			break
		}
	}

	// ---- Terminating ----
	c.setState(StateTerminating)

	if pending != nil && fatal == nil {
		if err := c.persist(*pending, syncclient.UnavailableResult()); err != nil {
			fatal = err
		} else {
			// in strict mode this is the one frame on disk the server never
			// answered save for
			c.log.Info("pending frame persisted without exchange",
				"seq", pending.Seq,
				"frame_number", c.frameNumber-1,
				"policy", c.policy,
				"server_response", syncclient.RespNone)
		}
	}

	if err := c.writer.Finalize(c.seg); err != nil {
		fatal = multierr.Append(fatal, err)
	}

	c.session.Exchange(bg, syncclient.CmdClose)

	if err := c.src.Close(); err != nil {
		c.log.Warn("source close failed", "error", err)
	}

	// ---- Terminated ----
	c.setState(StateTerminated)
	c.notify()

	sum := c.summary(start)
	c.log.Info("capture finished",
		"frames_captured", sum.FramesCaptured,
		"frames_persisted", sum.FramesPersisted,
		"segments", sum.Segments,
		"elapsed", sum.Elapsed,
		"fps", sum.FPS,
	)

	if fatal != nil {
		c.log.Error("capture aborted", "error", fatal)
	}
	return sum, multierr.Combine(fatal, srcErr)
}

// persist writes the frame and its log row, then advances both counters.
// A record's frame number is the counter value before the increment.
func (c *Controller) persist(b source.Bundle, res syncclient.Result) error {
	if err := c.writer.Write(c.seg, b); err != nil {
		return err
	}

	local := b.CapturedAt
	if local.IsZero() {
		local = c.now()
	}
	if err := c.writer.AppendRecord(c.seg, segment.FrameRecord{
		FrameNumber:       c.frameNumber,
		GlobalFrameNumber: c.global,
		LocalTimestamp:    local,
		ServerTimestamp:   res.ServerTime,
		ServerResponse:    res.Response,
		Telemetry:         b.Telemetry,
	}); err != nil {
		return err
	}

	c.frameNumber++
	c.global++
	return nil
}

// rotate finalizes the current segment before the next one is opened.
func (c *Controller) rotate() error {
	c.setState(StateRotating)

	if err := c.writer.Finalize(c.seg); err != nil {
		return err
	}
	next, err := c.writer.Open(c.seg.Index+1, c.cfg.DeviceID)
	if err != nil {
		return err
	}

	c.log.Info("segment rotated", "from", c.seg.Index, "to", next.Index)
	c.seg = next
	c.segments++
	c.frameNumber = 0

	c.setState(StateStreaming)
	c.notify()
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.log.Debug("state", "from", prev, "to", s)
	}
}

func (c *Controller) notify() {
	if c.cfg.Observer == nil {
		return
	}
	idx := 0
	if c.seg != nil {
		idx = c.seg.Index
	}
	c.cfg.Observer.Observe(Progress{
		DeviceID:     c.cfg.DeviceID,
		State:        c.State(),
		Session:      c.session.Stats(),
		SegmentIndex: idx,
		GlobalFrames: c.global,
	})
}

func (c *Controller) summary(start time.Time) Summary {
	elapsed := c.now().Sub(start)
	s := Summary{
		RunID:           c.runID,
		DeviceID:        c.cfg.DeviceID,
		FramesCaptured:  c.captured,
		FramesPersisted: c.global,
		Segments:        c.segments,
		Elapsed:         elapsed,
	}
	if elapsed > 0 {
		s.FPS = float64(c.captured) / elapsed.Seconds()
	}
	return s
}
