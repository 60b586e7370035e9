package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"morpheus/pingtest/internal/config"
	"morpheus/pingtest/internal/logger"
	"morpheus/pingtest/internal/probe"
	"morpheus/pingtest/internal/remote"
	"morpheus/pingtest/internal/report"
	"morpheus/pingtest/internal/sweep"
)

const usageLine = "Usage: pingtest [options] host port\n       pingtest [options] -c inventory.yaml\n"

type options struct {
	payload        string
	connectTimeout time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration
	quiet          bool

	configFile         string
	generateConfigFile string
	parallel           int

	auth           remote.AuthOptions
	acceptHostKeys bool
	binary         string
}

func newFlags(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("pingtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageLine)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	payload := string(probe.DefaultPayload[:len(probe.DefaultPayload)-1])
	fs.StringVar(&opts.payload, "payload", payload, "request line sent to the peer, newline appended")
	fs.DurationVar(&opts.connectTimeout, "connect-timeout", probe.DefaultConnectTimeout, "connect timeout, 0 waits forever")
	fs.DurationVar(&opts.writeTimeout, "write-timeout", probe.DefaultWriteTimeout, "write timeout, 0 waits forever")
	fs.DurationVar(&opts.readTimeout, "read-timeout", probe.DefaultReadTimeout, "read timeout, 0 waits forever")
	fs.BoolVar(&opts.quiet, "q", false, "print only the raw response")

	fs.StringVar(&opts.configFile, "configfile", "", "inventory file")
	fs.StringVar(&opts.configFile, "c", "", "inventory file")
	fs.StringVar(&opts.generateConfigFile, "generateconfig", "", "generate sample inventory file")
	fs.IntVar(&opts.parallel, "parallel", sweep.DefaultLimit, "probes run at once in inventory mode")

	fs.BoolVar(&opts.auth.AskPass, "askpass", false, "ask for ssh password")
	fs.StringVar(&opts.auth.Key, "key", filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa"), "private key path")
	fs.BoolVar(&opts.auth.Passphrase, "passphrase", false, "ask for private key passphrase")
	fs.BoolVar(&opts.acceptHostKeys, "accepthostkeys", false, "accept all unknown host keys")
	fs.StringVar(&opts.binary, "binary", "", "pingtest binary to install on sources (default: this executable)")
	return fs
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlags(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	log := logger.New(stderr)

	switch {
	case opts.generateConfigFile != "":
		if err := config.WriteSample(opts.generateConfigFile); err != nil {
			report.Errorf(stderr, "%v", err)
			return 1
		}
		return 0
	case opts.configFile != "":
		if fs.NArg() != 0 {
			fs.Usage()
			return 1
		}
		return runInventory(ctx, log, opts, stdout, stderr)
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return 1
	}
	target, err := probe.ParseTarget(fs.Arg(0), fs.Arg(1))
	if err != nil {
		report.Errorf(stderr, "%v", err)
		fs.Usage()
		return 1
	}
	if opts.payload == "" {
		report.Errorf(stderr, "payload cannot be empty")
		return 1
	}
	return runSingle(ctx, log, opts, target, stdout, stderr)
}

func runSingle(ctx context.Context, log *slog.Logger, opts options, target probe.Target, stdout, stderr io.Writer) int {
	client := &probe.Client{
		ConnectTimeout: opts.connectTimeout,
		WriteTimeout:   opts.writeTimeout,
		ReadTimeout:    opts.readTimeout,
	}

	log.Debug("Probing", "target", target.Addr(), "payload", opts.payload)
	out, err := client.Probe(ctx, target, probe.Line(opts.payload))
	if err != nil {
		log.Debug("Probe failed", "target", target.Addr(), "err", err)
		report.Errorf(stderr, "%v", err)
		return 1
	}
	log.Debug("Probe done",
		"remote", out.RemoteAddr,
		"bytes", len(out.Response),
		"connect", out.Latencies.Connect,
		"write", out.Latencies.Write,
		"read", out.Latencies.Read,
	)

	if !opts.quiet {
		if _, err := fmt.Fprintln(stdout, out.RemoteAddr); err != nil {
			report.Errorf(stderr, "writing output: %v", err)
			return 1
		}
	}
	if _, err := stdout.Write(out.Response); err != nil {
		report.Errorf(stderr, "writing output: %v", err)
		return 1
	}
	return 0
}

type job struct {
	source *remote.Runner
	target config.Target
}

func runInventory(ctx context.Context, log *slog.Logger, opts options, stdout, stderr io.Writer) int {
	inv, err := config.Load(opts.configFile)
	if err != nil {
		report.Errorf(stderr, "%v", err)
		return 1
	}
	settings := inv.Probe

	var jobs []job
	if len(inv.Sources) == 0 {
		for _, t := range inv.Targets {
			jobs = append(jobs, job{target: t})
		}
	} else {
		runners, err := connectSources(ctx, log, opts, inv.Sources)
		defer func() {
			for _, r := range runners {
				if r != nil {
					r.Close()
				}
			}
		}()
		if err != nil {
			report.Errorf(stderr, "%v", err)
			return 1
		}
		for _, r := range runners {
			for _, t := range inv.Targets {
				jobs = append(jobs, job{source: r, target: t})
			}
		}
	}

	var client probe.Prober = settings.Client()
	payload := settings.PayloadBytes()
	results := sweep.Run(ctx, jobs, opts.parallel, func(ctx context.Context, j job) report.Result {
		if j.source != nil {
			log.Debug("Remote probe", "source", j.source.Source.Name, "target", j.target.Name)
			return j.source.Probe(ctx, j.target.Name, j.target.Probe(), settings)
		}
		log.Debug("Local probe", "target", j.target.Name)
		out, err := client.Probe(ctx, j.target.Probe(), payload)
		return report.FromOutcome(j.target.Name, out, err)
	})

	report.Sort(results)
	report.Print(stdout, results)
	if failed := report.Failed(results); failed > 0 {
		log.Warn("Probes failed", "failed", failed, "total", len(results))
		return 1
	}
	return 0
}

// connectSources dials every source and installs the probe binary on it. The
// returned runners must be closed even when an error is returned.
func connectSources(ctx context.Context, log *slog.Logger, opts options, sources []config.Source) ([]*remote.Runner, error) {
	currentUser, err := user.Current()
	if err != nil {
		return nil, errors.Wrap(err, "looking up current user")
	}
	auth, err := remote.Auth(opts.auth)
	if err != nil {
		return nil, err
	}
	binary := opts.binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return nil, errors.Wrap(err, "locating pingtest binary")
		}
	}
	cb := remote.HostKeyCallback(opts.acceptHostKeys)

	runners := make([]*remote.Runner, len(sources))
	idx := make([]int, len(sources))
	for i := range idx {
		idx[i] = i
	}
	err = sweep.Each(ctx, idx, opts.parallel, func(ctx context.Context, i int) error {
		r, err := remote.Dial(sources[i], currentUser.Username, auth, cb)
		if err != nil {
			return err
		}
		runners[i] = r
		log.Debug("Installing probe", "source", sources[i].Name, "binary", binary)
		return r.Install(binary)
	})
	if err != nil {
		return runners, err
	}
	return runners, nil
}
