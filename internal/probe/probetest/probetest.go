// Package probetest runs throw-away ping peers on the loopback interface for tests.
package probetest

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Handler serves one accepted connection. The connection is closed after it returns.
type Handler func(conn net.Conn)

// Peer is a listening test peer.
type Peer struct {
	Host string
	Port int

	l        net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	received [][]byte
}

// Serve listens on 127.0.0.1 with an ephemeral port and handles every
// connection with h until the test ends.
func Serve(t testing.TB, h Handler) *Peer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	p := &Peer{Host: addr.IP.String(), Port: addr.Port, l: l}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer conn.Close()
				h(&recordingConn{Conn: conn, peer: p})
			}()
		}
	}()
	t.Cleanup(p.Close)
	return p
}

// Addr is the host:port the peer listens on.
func (p *Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Received returns every read the handlers performed, in order.
func (p *Peer) Received() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.received))
	copy(out, p.received)
	return out
}

// Close stops accepting and waits for running handlers.
func (p *Peer) Close() {
	p.l.Close()
	p.wg.Wait()
}

type recordingConn struct {
	net.Conn
	peer *Peer
}

func (c *recordingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.peer.mu.Lock()
		c.peer.received = append(c.peer.received, append([]byte(nil), b[:n]...))
		c.peer.mu.Unlock()
	}
	return n, err
}

func readRequest(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	return buf[:n], err
}

// Reply reads the request and answers with resp.
func Reply(resp []byte) Handler {
	return func(conn net.Conn) {
		if _, err := readRequest(conn); err != nil {
			return
		}
		conn.Write(resp)
	}
}

// Echo reads the request and writes it back.
func Echo() Handler {
	return func(conn net.Conn) {
		req, err := readRequest(conn)
		if err != nil {
			return
		}
		conn.Write(req)
	}
}

// Hangup reads the request and closes without answering.
func Hangup() Handler {
	return func(conn net.Conn) {
		readRequest(conn)
	}
}

// Silent reads the request and then holds the connection open, sending
// nothing, until the client goes away or hold elapses.
func Silent(hold time.Duration) Handler {
	return func(conn net.Conn) {
		if _, err := readRequest(conn); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(hold))
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}
}

// ClosedPort returns a loopback port with nothing listening on it.
func ClosedPort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}
