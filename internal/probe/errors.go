package probe

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

var (
	ErrInvalidArgument = errors.New("invalid probe argument")
	ErrConnect         = errors.New("connect failed")
	ErrWrite           = errors.New("write failed")
	ErrRead            = errors.New("read failed")
	ErrTimeout         = errors.New("timed out")
	ErrMalformedReply  = errors.New("malformed reply")
)

// Phase names the step of a probe that failed.
type Phase string

const (
	PhaseConnect Phase = "connect"
	PhaseWrite   Phase = "write"
	PhaseRead    Phase = "read"
)

func (p Phase) sentinel() error {
	switch p {
	case PhaseConnect:
		return ErrConnect
	case PhaseWrite:
		return ErrWrite
	case PhaseRead:
		return ErrRead
	}
	return nil
}

// Error is a transport failure during one phase of a probe.
type Error struct {
	Phase  Phase
	Target Target
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Phase, e.Target, e.Err)
	if e.Timeout() {
		msg += " (timeout)"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the failed phase, and ErrTimeout when the
// failure was a deadline.
func (e *Error) Is(target error) bool {
	if s := e.Phase.sentinel(); s != nil && target == s {
		return true
	}
	return target == ErrTimeout && e.Timeout()
}

// Timeout reports whether the underlying failure was a deadline.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func phaseError(phase Phase, t Target, err error) error {
	return &Error{Phase: phase, Target: t, Err: err}
}
