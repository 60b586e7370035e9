package probe

import (
	"bytes"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Reply is the decoded answer of a ping peer: the address it pinged and the
// average round trip it measured.
type Reply struct {
	IP  net.IP
	Avg time.Duration
}

// ParseReply decodes a "<ip> <avg-ms>\n" line. Only the first line of b is
// considered.
func ParseReply(b []byte) (Reply, error) {
	line, _, _ := bytes.Cut(b, []byte("\n"))
	fields := bytes.Fields(line)
	if len(fields) != 2 {
		return Reply{}, errors.Wrapf(ErrMalformedReply, "want 2 fields, got %d", len(fields))
	}
	ip := net.ParseIP(string(fields[0]))
	if ip == nil {
		return Reply{}, errors.Wrapf(ErrMalformedReply, "bad address %q", fields[0])
	}
	ms, err := strconv.ParseFloat(string(fields[1]), 64)
	if err != nil || ms < 0 {
		return Reply{}, errors.Wrapf(ErrMalformedReply, "bad average %q", fields[1])
	}
	return Reply{
		IP:  ip,
		Avg: time.Duration(math.Round(ms * float64(time.Millisecond))),
	}, nil
}

func (r Reply) String() string {
	return r.IP.String() + " avg " + r.Avg.String()
}
