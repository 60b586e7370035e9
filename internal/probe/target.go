package probe

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultPayload is the request line the ping peer expects by default.
var DefaultPayload = []byte("8.8.8.8\n")

// Target is the peer a probe connects to.
type Target struct {
	Host string
	Port int
}

// ParseTarget builds a Target from command line strings.
func ParseTarget(host, port string) (Target, error) {
	p, err := strconv.Atoi(port)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidArgument, "port %q is not a number", port)
	}
	t := Target{Host: strings.TrimSpace(host), Port: p}
	if problems := t.Validate(); len(problems) > 0 {
		return Target{}, invalid(problems)
	}
	return t, nil
}

// Validate returns a map of field to problem. An empty map means the target is usable.
func (t Target) Validate() map[string]string {
	problems := make(map[string]string, 2)
	if strings.TrimSpace(t.Host) == "" {
		problems["host"] = "cannot be empty"
	}
	if t.Port < 1 {
		problems["port"] = "cannot be less than 1"
	}
	if t.Port > 65535 {
		problems["port"] = "cannot be greater than 65,535"
	}
	return problems
}

// Addr returns the dialable host:port form.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return t.Addr()
}

// Line returns s as a newline-terminated request line.
func Line(s string) []byte {
	if strings.HasSuffix(s, "\n") {
		return []byte(s)
	}
	return []byte(s + "\n")
}

func invalid(problems map[string]string) error {
	keys := make([]string, 0, len(problems))
	for k := range problems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, problems[k]))
	}
	return errors.Wrap(ErrInvalidArgument, strings.Join(parts, ", "))
}
