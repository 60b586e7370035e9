// Package config loads the YAML inventory used to probe many targets at once.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"morpheus/pingtest/internal/probe"
)

// Source is a host the probe is run from over SSH.
type Source struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
	User string `yaml:"user,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Target is a ping peer to probe.
type Target struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Probe returns the probe target.
func (t Target) Probe() probe.Target {
	return probe.Target{Host: t.Host, Port: t.Port}
}

// ProbeSettings tune every probe of the inventory.
type ProbeSettings struct {
	Payload        string        `yaml:"payload"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// Client returns a probe client using the configured timeouts.
func (s ProbeSettings) Client() *probe.Client {
	return &probe.Client{
		ConnectTimeout: s.ConnectTimeout,
		WriteTimeout:   s.WriteTimeout,
		ReadTimeout:    s.ReadTimeout,
	}
}

// PayloadBytes returns the newline-terminated request line.
func (s ProbeSettings) PayloadBytes() []byte {
	if s.Payload == "" {
		return probe.DefaultPayload
	}
	return probe.Line(s.Payload)
}

type Inventory struct {
	Probe   ProbeSettings `yaml:"probe"`
	Sources []Source      `yaml:"sources,omitempty"`
	Targets []Target      `yaml:"targets"`
}

// Defaults returns the probe settings used when the inventory omits them.
func Defaults() ProbeSettings {
	return ProbeSettings{
		Payload:        strings.TrimSuffix(string(probe.DefaultPayload), "\n"),
		ConnectTimeout: probe.DefaultConnectTimeout,
		WriteTimeout:   probe.DefaultWriteTimeout,
		ReadTimeout:    probe.DefaultReadTimeout,
	}
}

// Parse decodes and validates an inventory.
func Parse(data []byte) (*Inventory, error) {
	inv := &Inventory{Probe: Defaults()}
	if err := yaml.UnmarshalStrict(data, inv); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling YAML")
	}
	if problems := inv.Valid(); len(problems) > 0 {
		return nil, NewValidationError(problems)
	}
	return inv, nil
}

// Load reads and parses the inventory at path.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return inv, nil
}

// Valid returns a map of field to problem.
func (inv *Inventory) Valid() map[string]string {
	problems := make(map[string]string)

	if len(inv.Targets) == 0 {
		problems["targets"] = "cannot be empty"
	}
	if inv.Probe.ConnectTimeout < 0 {
		problems["probe.connect_timeout"] = "cannot be less than zero"
	}
	if inv.Probe.WriteTimeout < 0 {
		problems["probe.write_timeout"] = "cannot be less than zero"
	}
	if inv.Probe.ReadTimeout < 0 {
		problems["probe.read_timeout"] = "cannot be less than zero"
	}

	seen := make(map[string]bool, len(inv.Targets))
	for i, t := range inv.Targets {
		path := fmt.Sprintf("targets[%d]", i)
		if t.Name == "" {
			problems[path+".name"] = "cannot be empty"
		} else if seen[t.Name] {
			problems[path+".name"] = fmt.Sprintf("duplicate name %q", t.Name)
		}
		seen[t.Name] = true
		for field, problem := range t.Probe().Validate() {
			problems[path+"."+field] = problem
		}
	}

	seen = make(map[string]bool, len(inv.Sources))
	for i, s := range inv.Sources {
		path := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			problems[path+".name"] = "cannot be empty"
		} else if seen[s.Name] {
			problems[path+".name"] = fmt.Sprintf("duplicate name %q", s.Name)
		}
		seen[s.Name] = true
		if s.IP == "" {
			problems[path+".ip"] = "cannot be empty"
		}
		if s.Port < 0 || s.Port > 65535 {
			problems[path+".port"] = "must be between 1 and 65,535"
		}
	}

	return problems
}

// Sample returns an inventory suitable as a starting point.
func Sample() Inventory {
	return Inventory{
		Probe: Defaults(),
		Sources: []Source{
			{Name: "jump1", IP: "192.168.1.100"},
		},
		Targets: []Target{
			{Name: "cdn-east", Host: "192.168.1.101", Port: 9999},
			{Name: "cdn-west", Host: "192.168.1.102", Port: 9999},
		},
	}
}

// WriteSample writes Sample to path. It refuses to overwrite an existing file.
func WriteSample(path string) error {
	data, err := yaml.Marshal(Sample())
	if err != nil {
		return errors.Wrap(err, "error marshaling YAML")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Errorf("file %s already exists, will not overwrite", path)
		}
		return errors.Wrapf(err, "problem opening file for writing: %s", path)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "error writing to file %s", path)
	}
	return f.Close()
}

// ValidationError lists every problem found in an inventory.
type ValidationError struct {
	Problems map[string]string
}

func NewValidationError(problems map[string]string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Problems))
	for field := range e.Problems {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation errors found:")
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, e.Problems[field])
	}
	return b.String()
}
