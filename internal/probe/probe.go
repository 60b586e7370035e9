// Package probe sends one request line to a TCP ping peer and reads its reply.
//
// A probe is a strict connect, write, read, close sequence over a connection
// owned by a single call. Nothing is retried and nothing is shared between
// calls, so one Client can serve any number of concurrent probes.
package probe

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// MaxResponse is the size of the single read performed on the connection.
const MaxResponse = 1000

// Default per-phase bounds. Zero on a Client disables the bound for that phase.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

// Latencies records how long each phase of a probe took.
type Latencies struct {
	Connect time.Duration
	Write   time.Duration
	Read    time.Duration
}

// Total is the sum of all phases.
func (l Latencies) Total() time.Duration {
	return l.Connect + l.Write + l.Read
}

// Outcome is the result of a successful probe.
type Outcome struct {
	Target Target
	// RemoteAddr is the address the connection was actually made to.
	RemoteAddr string
	Response   []byte
	Latencies  Latencies
}

// Prober runs a single probe.
type Prober interface {
	Probe(ctx context.Context, t Target, payload []byte) (Outcome, error)
}

// Client probes with per-phase timeouts.
type Client struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
}

// NewClient returns a Client with the default phase timeouts.
func NewClient() *Client {
	return &Client{
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ReadTimeout:    DefaultReadTimeout,
	}
}

var (
	_             Prober = (*Client)(nil)
	defaultClient        = NewClient()
)

// Probe runs one probe with the default client.
func Probe(ctx context.Context, t Target, payload []byte) (Outcome, error) {
	return defaultClient.Probe(ctx, t, payload)
}

// Probe connects to t, writes payload, performs a single read of at most
// MaxResponse bytes and closes the connection.
//
// A peer that closes without sending anything yields an empty Response and no
// error. Transport failures are returned as *Error.
func (c *Client) Probe(ctx context.Context, t Target, payload []byte) (Outcome, error) {
	out := Outcome{Target: t}
	if problems := t.Validate(); len(problems) > 0 {
		return out, invalid(problems)
	}
	if len(payload) == 0 {
		return out, errors.Wrap(ErrInvalidArgument, "payload cannot be empty")
	}

	dialer := net.Dialer{Timeout: c.ConnectTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", t.Addr())
	out.Latencies.Connect = time.Since(start)
	if err != nil {
		return out, phaseError(PhaseConnect, t, err)
	}
	defer conn.Close()
	out.RemoteAddr = conn.RemoteAddr().String()

	// Unblock the write or read in progress when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(expired)
	})
	defer stop()

	phaseDeadline(ctx, conn, conn.SetWriteDeadline, c.WriteTimeout)
	start = time.Now()
	n, err := conn.Write(payload)
	out.Latencies.Write = time.Since(start)
	if err == nil && n < len(payload) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return out, phaseError(PhaseWrite, t, cause(ctx, err))
	}

	phaseDeadline(ctx, conn, conn.SetReadDeadline, c.ReadTimeout)
	buf := make([]byte, MaxResponse)
	start = time.Now()
	n, err = conn.Read(buf)
	out.Latencies.Read = time.Since(start)
	if err != nil && !errors.Is(err, io.EOF) {
		return out, phaseError(PhaseRead, t, cause(ctx, err))
	}
	out.Response = buf[:n]
	return out, nil
}

var expired = time.Unix(1, 0)

// phaseDeadline bounds the next phase by d. Once ctx is done the connection
// keeps an expired deadline, whichever of this and the AfterFunc ran last.
func phaseDeadline(ctx context.Context, conn net.Conn, set func(time.Time) error, d time.Duration) {
	if d > 0 {
		_ = set(time.Now().Add(d))
	}
	if ctx.Err() != nil {
		_ = conn.SetDeadline(expired)
	}
}

// cause prefers the context error over the deadline error it provoked.
func cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, err.Error())
	}
	return err
}
