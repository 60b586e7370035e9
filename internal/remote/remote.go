// Package remote runs the probe from other hosts over SSH.
//
// The local pingtest binary is copied to each source host and executed there
// with -q, so the response bytes come back as the command's output.
package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/melbahja/goph"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"morpheus/pingtest/internal/config"
	"morpheus/pingtest/internal/probe"
	"morpheus/pingtest/internal/report"
)

const (
	// InstallDir is relative to the remote user's home.
	InstallDir = ".pingtest"
	BinaryName = "pingtest"
)

var (
	ErrRemote         = errors.New("remote probe failed")
	ErrHostKeyMissing = errors.New("some host keys are missing from known_hosts, use -accepthostkeys to accept them all")
)

// AuthOptions select how to authenticate to source hosts.
type AuthOptions struct {
	AskPass    bool
	Key        string
	Passphrase bool
}

// Auth builds SSH credentials, prompting on the terminal when asked to.
func Auth(opts AuthOptions) (goph.Auth, error) {
	if opts.AskPass {
		pass, err := askPass("Enter SSH Password: ")
		if err != nil {
			return nil, err
		}
		return goph.Password(pass), nil
	}
	var phrase string
	if opts.Passphrase {
		p, err := askPass("Enter Private Key Passphrase: ")
		if err != nil {
			return nil, err
		}
		phrase = p
	}
	auth, err := goph.Key(opts.Key, phrase)
	if err != nil {
		return nil, errors.Wrapf(err, "loading private key %s", opts.Key)
	}
	return auth, nil
}

func askPass(msg string) (string, error) {
	fmt.Fprint(os.Stderr, msg)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return strings.TrimSpace(string(pass)), nil
}

// knownHosts matches goph.CheckKnownHost and goph.AddKnownHost.
type knownHosts struct {
	check func(host string, remote net.Addr, key ssh.PublicKey, file string) (bool, error)
	add   func(host string, remote net.Addr, key ssh.PublicKey, file string) error
}

var defaultKnownHosts = knownHosts{check: goph.CheckKnownHost, add: goph.AddKnownHost}

// HostKeyCallback verifies host keys against ~/.ssh/known_hosts. Unknown
// hosts are rejected unless accept is set, in which case they are recorded.
func HostKeyCallback(accept bool) ssh.HostKeyCallback {
	return defaultKnownHosts.callback(accept)
}

func (kh knownHosts) callback(accept bool) ssh.HostKeyCallback {
	return func(host string, remote net.Addr, key ssh.PublicKey) error {
		found, err := kh.check(host, remote, key, "")

		// Known host with a different key.
		if found && err != nil {
			return err
		}
		if found {
			return nil
		}
		if !accept {
			return ErrHostKeyMissing
		}
		return kh.add(host, remote, key, "")
	}
}

// commander runs a shell command and returns its combined output.
type commander interface {
	Run(cmd string) ([]byte, error)
}

// Runner is an SSH session to one source host.
type Runner struct {
	Source config.Source

	cmd    commander
	client *goph.Client
}

// Dial opens an SSH connection to src. user is used when src does not name one.
func Dial(src config.Source, user string, auth goph.Auth, cb ssh.HostKeyCallback) (*Runner, error) {
	if src.User != "" {
		user = src.User
	}
	port := uint(22)
	if src.Port != 0 {
		port = uint(src.Port)
	}
	client, err := goph.NewConn(&goph.Config{
		User:     user,
		Addr:     src.IP,
		Port:     port,
		Auth:     auth,
		Callback: cb,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create ssh connection on %s", src.IP)
	}
	return &Runner{Source: src, cmd: client, client: client}, nil
}

// Close ends the SSH session.
func (r *Runner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Install copies the local binary at path to the source host.
func (r *Runner) Install(path string) error {
	if _, err := r.run("mkdir -p ~/" + InstallDir); err != nil {
		return err
	}

	sftp, err := r.client.NewSftp()
	if err != nil {
		return errors.Wrapf(err, "cannot create sftp connection to %s", r.Source.Name)
	}
	defer sftp.Close()

	local, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer local.Close()

	remote, err := sftp.Create(InstallDir + "/" + BinaryName)
	if err != nil {
		return errors.Wrapf(err, "failed to create remote file on %s", r.Source.Name)
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return errors.Wrapf(err, "copying %s to %s", path, r.Source.Name)
	}
	if err := remote.Close(); err != nil {
		return errors.Wrapf(err, "closing remote file on %s", r.Source.Name)
	}

	_, err = r.run("chmod +x ~/" + InstallDir + "/" + BinaryName)
	return err
}

// Probe runs the installed binary against t and reports what the source host saw.
func (r *Runner) Probe(ctx context.Context, name string, t probe.Target, s config.ProbeSettings) report.Result {
	res := report.Result{
		Source: r.Source.Name,
		Target: name,
		Path:   r.Source.IP + " -> " + t.Addr(),
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	start := time.Now()
	out, err := r.run(ProbeCommand(t, s))
	// Includes the SSH session round trip, not only the probe.
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	res.Response = out
	return res
}

func (r *Runner) run(cmd string) ([]byte, error) {
	out, err := r.cmd.Run(cmd)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return out, errors.Wrapf(ErrRemote, "%s: %q: %v", r.Source.Name, cmd, err)
		}
		return out, errors.Wrapf(ErrRemote, "%s: %q: %v: %s", r.Source.Name, cmd, err, msg)
	}
	return out, nil
}

// ProbeCommand is the shell command that runs one quiet probe on a source host.
func ProbeCommand(t probe.Target, s config.ProbeSettings) string {
	args := []string{
		"~/" + InstallDir + "/" + BinaryName,
		"-q",
		"-payload", quote(strings.TrimSuffix(string(s.PayloadBytes()), "\n")),
		"-connect-timeout", s.ConnectTimeout.String(),
		"-write-timeout", s.WriteTimeout.String(),
		"-read-timeout", s.ReadTimeout.String(),
		quote(t.Host),
		strconv.Itoa(t.Port),
	}
	return strings.Join(args, " ")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
