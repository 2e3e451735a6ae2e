// internal/syncserver/server.go

// Package syncserver is a reference coordination server for lab runs and
// integration tests. One request per connection; the operator decides
// whether registered devices save or wait.
package syncserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tamzrod/capture-sync/internal/syncclient"
)

// requestTimeout bounds how long a client may take to send its line.
const requestTimeout = 5 * time.Second

// maxRequestBytes bounds a request line.
const maxRequestBytes = 64

// Server answers coordination exchanges for the devices in its access list.
type Server struct {
	log   *slog.Logger
	addr  string
	allow map[int]struct{} // empty => every device
	now   func() time.Time

	mu          sync.Mutex
	instruction syncclient.Response
	registered  map[int]time.Time
	listener    net.Listener
}

// NewServer creates a server for addr. An empty allow list accepts every
// device id. The initial instruction is wait. If log is nil,
// slog.Default() is used.
func NewServer(addr string, allow []int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	set := make(map[int]struct{}, len(allow))
	for _, id := range allow {
		set[id] = struct{}{}
	}
	return &Server{
		log:         log.With("component", "sync-server"),
		addr:        addr,
		allow:       set,
		now:         time.Now,
		instruction: syncclient.RespWait,
		registered:  make(map[int]time.Time),
	}
}

// SetInstruction switches every allowed device between save and wait.
func (s *Server) SetInstruction(r syncclient.Response) error {
	if r != syncclient.RespSave && r != syncclient.RespWait {
		return errors.Errorf("syncserver: instruction must be save or wait, got %q", r)
	}
	s.mu.Lock()
	prev := s.instruction
	s.instruction = r
	s.mu.Unlock()
	if prev != r {
		s.log.Info("instruction changed", "from", prev, "to", r)
	}
	return nil
}

// Instruction returns the current instruction.
func (s *Server) Instruction() syncclient.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instruction
}

// Registered returns the ids of devices that connected and did not close.
func (s *Server) Registered() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.registered))
	for id := range s.registered {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Listen binds the listener and returns its address.
func (s *Server) Listen() (net.Addr, error) {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "syncserver: listen on %s", s.addr)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.log.Info("listening", "addr", l.Addr().String(), "allow", len(s.allow))
	return l.Addr(), nil
}

// Start listens and serves. It blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on a listener bound by Listen. It blocks until
// the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("syncserver: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	line, err := bufio.NewReader(io.LimitReader(conn, maxRequestBytes)).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		s.log.Debug("read error", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	cmd, id, err := syncclient.ParseRequest(line)
	if err != nil {
		// malformed requests get no reply
		s.log.Debug("rejected request", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	reply := syncclient.FormatReply(s.answer(cmd, id), serverTime(s.now()))
	if _, err := io.WriteString(conn, reply); err != nil {
		s.log.Debug("write error", "device", id, "error", err)
	}
}

// answer applies one command and returns the response token.
func (s *Server) answer(cmd syncclient.Command, id int) syncclient.Response {
	if len(s.allow) > 0 {
		if _, ok := s.allow[id]; !ok {
			s.log.Warn("device not in access list", "device", id, "command", cmd)
			return syncclient.RespNone
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case syncclient.CmdConnect:
		s.registered[id] = s.now()
		s.log.Info("device connected", "device", id)
		return syncclient.RespWait
	case syncclient.CmdClose:
		delete(s.registered, id)
		s.log.Info("device closed", "device", id)
		return syncclient.RespWait
	default:
		return s.instruction
	}
}

// serverTime renders t as Unix seconds with microseconds.
func serverTime(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}
