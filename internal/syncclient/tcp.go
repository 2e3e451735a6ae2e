// internal/syncclient/tcp.go
package syncclient

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// maxReplyBytes bounds a reply line; longer replies are malformed.
const maxReplyBytes = 256

// Transport performs one raw request/response round trip.
type Transport interface {
	RoundTrip(ctx context.Context, request string) (string, error)
}

// TCP is a stateless line-protocol client: 1 exchange = 1 connection.
type TCP struct {
	endpoint string
	timeout  time.Duration
}

// NewTCP returns a transport for endpoint. timeout bounds dial, write and
// read together; a context deadline that is sooner wins.
func NewTCP(endpoint string, timeout time.Duration) (*TCP, error) {
	if endpoint == "" {
		return nil, errors.New("syncclient tcp: endpoint required")
	}
	if timeout <= 0 {
		return nil, errors.New("syncclient tcp: timeout must be > 0")
	}
	return &TCP{endpoint: endpoint, timeout: timeout}, nil
}

// RoundTrip dials, writes the request line and reads one reply line.
func (c *TCP) RoundTrip(ctx context.Context, request string) (string, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", c.endpoint)
	if err != nil {
		return "", errors.Wrap(err, "syncclient tcp: dial")
	}
	defer conn.Close()

	_ = conn.SetDeadline(deadline)

	if err := writeAll(conn, []byte(request)); err != nil {
		return "", errors.Wrap(err, "syncclient tcp: write")
	}

	// one byte past the bound tells an over-long reply from one that fits
	r := bufio.NewReader(io.LimitReader(conn, maxReplyBytes+1))
	line, err := r.ReadString('\n')
	if len(line) > maxReplyBytes {
		return "", errors.Wrapf(errMalformed, "reply longer than %d bytes", maxReplyBytes)
	}
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "syncclient tcp: read reply")
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// Offline is the transport used when no coordination server is configured.
// Every round trip fails immediately.
type Offline struct{}

var errOffline = errors.New("syncclient: no coordination server configured")

func (Offline) RoundTrip(context.Context, string) (string, error) {
	return "", errOffline
}

//
// ---- helpers ----
//

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
