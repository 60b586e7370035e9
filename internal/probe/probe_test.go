package probe_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"morpheus/pingtest/internal/probe"
	"morpheus/pingtest/internal/probe/probetest"
)

func target(p *probetest.Peer) probe.Target {
	return probe.Target{Host: p.Host, Port: p.Port}
}

func TestProbeReply(t *testing.T) {
	peer := probetest.Serve(t, probetest.Reply([]byte("PONG\n")))

	out, err := probe.NewClient().Probe(context.Background(), target(peer), probe.DefaultPayload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Response) != "PONG\n" {
		t.Errorf("expected response %q, got %q", "PONG\n", out.Response)
	}
	if out.RemoteAddr != peer.Addr() {
		t.Errorf("expected remote addr %s, got %s", peer.Addr(), out.RemoteAddr)
	}
	if out.Target != target(peer) {
		t.Errorf("expected target %v, got %v", target(peer), out.Target)
	}

	got := peer.Received()
	if len(got) != 1 || !bytes.Equal(got[0], probe.DefaultPayload) {
		t.Errorf("peer expected to receive %q once, got %q", probe.DefaultPayload, got)
	}
}

func TestProbeEcho(t *testing.T) {
	peer := probetest.Serve(t, probetest.Echo())
	client := probe.NewClient()

	tests := []struct {
		name    string
		payload []byte
	}{
		{"default", probe.DefaultPayload},
		{"single byte", []byte("x")},
		{"line", probe.Line("10.0.0.1")},
		{"max size", bytes.Repeat([]byte("a"), probe.MaxResponse)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := client.Probe(context.Background(), target(peer), tt.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(out.Response, tt.payload) {
				t.Errorf("expected echo of %d bytes, got %d bytes", len(tt.payload), len(out.Response))
			}
		})
	}
}

func TestProbeTruncatesToSingleRead(t *testing.T) {
	peer := probetest.Serve(t, probetest.Reply(bytes.Repeat([]byte("z"), 1500)))

	out, err := probe.NewClient().Probe(context.Background(), target(peer), probe.DefaultPayload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Response) != probe.MaxResponse {
		t.Errorf("expected %d bytes, got %d", probe.MaxResponse, len(out.Response))
	}
}

func TestProbeHangupIsEmptyOutcome(t *testing.T) {
	peer := probetest.Serve(t, probetest.Hangup())

	out, err := probe.NewClient().Probe(context.Background(), target(peer), probe.DefaultPayload)
	if err != nil {
		t.Fatalf("expected no error on close without data, got %v", err)
	}
	if len(out.Response) != 0 {
		t.Errorf("expected empty response, got %q", out.Response)
	}
}

func TestProbeConnectFailure(t *testing.T) {
	tgt := probe.Target{Host: "127.0.0.1", Port: probetest.ClosedPort(t)}

	out, err := probe.NewClient().Probe(context.Background(), tgt, probe.DefaultPayload)
	if !errors.Is(err, probe.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if errors.Is(err, probe.ErrWrite) || errors.Is(err, probe.ErrRead) {
		t.Errorf("connect failure must not match write or read: %v", err)
	}
	if out.RemoteAddr != "" || out.Response != nil {
		t.Errorf("expected no connection state, got %+v", out)
	}

	var perr *probe.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *probe.Error, got %T", err)
	}
	if perr.Phase != probe.PhaseConnect || perr.Target != tgt {
		t.Errorf("unexpected error details: %+v", perr)
	}
	if !strings.Contains(err.Error(), tgt.Addr()) {
		t.Errorf("expected error to name %s, got %q", tgt.Addr(), err)
	}
}

func TestProbeReadTimeout(t *testing.T) {
	peer := probetest.Serve(t, probetest.Silent(5*time.Second))
	client := &probe.Client{ReadTimeout: 50 * time.Millisecond}

	_, err := client.Probe(context.Background(), target(peer), probe.DefaultPayload)
	if !errors.Is(err, probe.ErrRead) {
		t.Fatalf("expected ErrRead, got %v", err)
	}
	if !errors.Is(err, probe.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestProbeContextCancelUnblocksRead(t *testing.T) {
	peer := probetest.Serve(t, probetest.Silent(5*time.Second))
	client := &probe.Client{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Probe(ctx, target(peer), probe.DefaultPayload)
	if !errors.Is(err, probe.ErrRead) {
		t.Fatalf("expected ErrRead, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline in chain, got %v", err)
	}
	if !errors.Is(err, probe.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %v after context ended", elapsed)
	}
}

func TestProbeInvalidArguments(t *testing.T) {
	peer := probetest.Serve(t, probetest.Echo())

	tests := []struct {
		name    string
		target  probe.Target
		payload []byte
	}{
		{"empty host", probe.Target{Host: "", Port: peer.Port}, probe.DefaultPayload},
		{"port zero", probe.Target{Host: peer.Host, Port: 0}, probe.DefaultPayload},
		{"port too large", probe.Target{Host: peer.Host, Port: 70000}, probe.DefaultPayload},
		{"empty payload", target(peer), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := probe.Probe(context.Background(), tt.target, tt.payload)
			if !errors.Is(err, probe.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	if got := peer.Received(); len(got) != 0 {
		t.Errorf("invalid arguments must not reach the peer, got %q", got)
	}
}

func TestClientIsPerCallConnection(t *testing.T) {
	peer := probetest.Serve(t, probetest.Echo())
	client := probe.NewClient()

	for i := 0; i < 3; i++ {
		if _, err := client.Probe(context.Background(), target(peer), probe.DefaultPayload); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := len(peer.Received()); got != 3 {
		t.Errorf("expected 3 requests on 3 connections, got %d", got)
	}
}

func TestClientAsProber(t *testing.T) {
	peer := probetest.Serve(t, probetest.Reply([]byte("PONG\n")))

	var p probe.Prober = probe.NewClient()
	out, err := p.Probe(context.Background(), target(peer), probe.DefaultPayload)
	if err != nil || string(out.Response) != "PONG\n" {
		t.Errorf("unexpected outcome %q, %v", out.Response, err)
	}
}
