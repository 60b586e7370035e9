// Package report formats probe results for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"morpheus/pingtest/internal/probe"
)

// Local is the source name of probes run from this machine.
const Local = "local"

// Result is one probe as seen from one source.
type Result struct {
	Source   string
	Target   string
	Path     string
	Response []byte
	Latency  time.Duration
	Err      error
}

// Success reports whether the probe completed.
func (r Result) Success() bool {
	return r.Err == nil
}

// FromOutcome builds a Result for a probe run on this machine.
func FromOutcome(name string, out probe.Outcome, err error) Result {
	path := out.Target.Addr()
	if out.RemoteAddr != "" && out.RemoteAddr != path {
		path += " (" + out.RemoteAddr + ")"
	}
	return Result{
		Source:   Local,
		Target:   name,
		Path:     path,
		Response: out.Response,
		Latency:  out.Latencies.Total(),
		Err:      err,
	}
}

// Sort orders results by source, then target.
func Sort(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Source != results[j].Source {
			return results[i].Source < results[j].Source
		}
		return results[i].Target < results[j].Target
	})
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Success() {
			n++
		}
	}
	return n
}

// Print writes one line per result. Failures are red.
func Print(w io.Writer, results []Result) {
	errorRed := color.New(color.FgRed).SprintFunc()
	for _, r := range results {
		fmt.Fprintf(w, "Source: %s ", r.Source)
		fmt.Fprintf(w, "Target: %s ", r.Target)
		fmt.Fprintf(w, "Path: %s ", r.Path)
		if r.Success() {
			fmt.Fprintf(w, "Latency: %s ", r.Latency.Round(time.Microsecond))
			fmt.Fprintf(w, "Response: %s\n", Quote(r.Response))
		} else {
			fmt.Fprint(w, errorRed("Success: false Error: ", r.Err.Error()), "\n")
		}
	}
}

// Quote renders a response on one line, with its reply decoded when it is one.
func Quote(b []byte) string {
	q := strconv.Quote(string(b))
	if reply, err := probe.ParseReply(b); err == nil {
		return q + " [" + reply.String() + "]"
	}
	return q
}

// Errorf writes a red error line.
func Errorf(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	color.New(color.FgRed).Fprint(w, msg)
}
