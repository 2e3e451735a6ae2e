// internal/syncclient/session.go
package syncclient

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// State is the relationship with the coordination server.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateDegraded // running on local timestamps after a failed exchange
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of one exchange. OK is false exactly when the
// exchange failed; Response is then RespNone and ServerTime is Unavailable.
type Result struct {
	Response   Response
	ServerTime string
	OK         bool
}

// UnavailableResult is what every failed exchange returns.
func UnavailableResult() Result {
	return Result{Response: RespNone, ServerTime: Unavailable}
}

// Failure codes exposed for diagnostics (status export). They never change
// how the recorder behaves.
const (
	CodeNone      uint16 = 0
	CodeTransport uint16 = 1
	CodeTimeout   uint16 = 2
	CodeRefused   uint16 = 3
	CodeMalformed uint16 = 4
	CodeCommand   uint16 = 5
)

// ExchangeError records why the last exchange failed.
type ExchangeError struct {
	Command Command
	code    uint16
	Err     error
}

func (e *ExchangeError) Error() string {
	return "exchange " + string(e.Command) + ": " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Code classifies the failure.
func (e *ExchangeError) Code() uint16 { return e.code }

// Stats is a point-in-time view of the session for diagnostics.
type Stats struct {
	State               State
	ConsecutiveFailures int
	LastError           error
	LastSuccess         time.Time
}

// Session is the per-device SyncSession. It is safe for concurrent use but
// a recorder only ever drives it from its own loop.
type Session struct {
	deviceID  int
	transport Transport
	timeout   time.Duration
	log       *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	lastErr  error
	lastOK   time.Time
}

// NewSession creates a disconnected session for deviceID.
// timeout bounds every exchange regardless of the caller's context.
func NewSession(deviceID int, t Transport, timeout time.Duration, log *slog.Logger) *Session {
	if t == nil {
		t = Offline{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		deviceID:  deviceID,
		transport: t,
		timeout:   timeout,
		log:       log.With("component", "syncclient", "device", deviceID),
	}
}

// DeviceID returns the id every exchange is scoped to.
func (s *Session) DeviceID() int { return s.deviceID }

// Exchange performs one bounded request/response. It never returns an
// error: failures yield UnavailableResult and move the session to degraded.
// A close exchange always leaves the session disconnected.
func (s *Session) Exchange(ctx context.Context, cmd Command) Result {
	if !cmd.Valid() {
		return s.fail(cmd, CodeCommand, errUnknownCommand)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.transport.RoundTrip(ctx, FormatRequest(cmd, s.deviceID))
	if err != nil {
		return s.fail(cmd, classify(err), err)
	}

	resp, serverTime, err := parseReply(reply)
	if err != nil {
		return s.fail(cmd, CodeMalformed, err)
	}

	s.mu.Lock()
	prev := s.state
	s.state = StateConnected
	if cmd == CmdClose {
		s.state = StateDisconnected
	}
	s.failures = 0
	s.lastErr = nil
	s.lastOK = time.Now()
	s.mu.Unlock()

	if prev == StateDegraded {
		s.log.Info("coordination server reachable again", "command", cmd)
	}
	s.log.Debug("exchange", "command", cmd, "response", resp, "server_time", serverTime)

	return Result{Response: resp, ServerTime: serverTime, OK: true}
}

func (s *Session) fail(cmd Command, code uint16, err error) Result {
	xerr := &ExchangeError{Command: cmd, code: code, Err: err}

	s.mu.Lock()
	prev := s.state
	s.state = StateDegraded
	if cmd == CmdClose {
		s.state = StateDisconnected
	}
	s.failures++
	s.lastErr = xerr
	s.mu.Unlock()

	// one line per transition, not per frame
	if prev != StateDegraded && cmd != CmdClose {
		s.log.Warn("coordination server unavailable, using local timestamps", "error", xerr)
	} else {
		s.log.Debug("exchange failed", "error", xerr)
	}

	return UnavailableResult()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the diagnostic counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:               s.state,
		ConsecutiveFailures: s.failures,
		LastError:           s.lastErr,
		LastSuccess:         s.lastOK,
	}
}

func classify(err error) uint16 {
	var ne net.Error
	switch {
	case errors.Is(err, errMalformed):
		return CodeMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeRefused
	default:
		return CodeTransport
	}
}
