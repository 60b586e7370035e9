package probe

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestPhaseDeadlineKeepsCancellation(t *testing.T) {
	tests := []struct {
		name      string
		cancelled bool
		want      error
	}{
		{"context done", true, os.ErrDeadlineExceeded},
		{"context live", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelled {
				cancel()
				// The AfterFunc may already have expired the connection.
				client.SetDeadline(expired)
			}

			phaseDeadline(ctx, client, client.SetReadDeadline, 10*time.Second)

			done := make(chan error, 1)
			go func() {
				_, err := client.Read(make([]byte, 1))
				done <- err
			}()
			if !tt.cancelled {
				server.Write([]byte("x"))
			}

			select {
			case err := <-done:
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("read waited for the phase timeout after the context ended")
			}
		})
	}
}
