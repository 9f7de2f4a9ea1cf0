package backend

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultSSHPort        = 22
	defaultCommandTimeout = 5 * time.Second
	dialTimeout           = 10 * time.Second
)

// commandRunner runs one shell command on the remote host.
type commandRunner interface {
	Run(cmd string) (string, error)
}

// commandError carries the remote stderr so callers can classify failures.
type commandError struct {
	cmd    string
	stderr string
	err    error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s: %v (stderr: %s)", e.cmd, e.err, strings.TrimSpace(e.stderr))
}

func (e *commandError) Unwrap() error {
	return e.err
}

// OpenRemote connects to a Linux host over SSH and reads its power_supply tree.
func OpenRemote(cfg RemoteConfig, logger *slog.Logger) (*Sysfs, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("remote host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("remote user is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	root := cfg.SysfsRoot
	if root == "" {
		root = DefaultSysfsRoot
	}
	if !validatePath(root) {
		return nil, fmt.Errorf("invalid remote sysfs root %q", root)
	}

	sshConfig, err := buildSSHConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build SSH config: %w", err)
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	logger.Info("connected to remote host", "addr", addr)

	s := newRemoteSysfs(root, &sshRunner{client: client, timeout: cfg.CommandTimeout})
	s.closer = client.Close
	return s, nil
}

func newRemoteSysfs(root string, run commandRunner) *Sysfs {
	return &Sysfs{name: NameRemote, root: root, fs: remoteFS{run: run}}
}

func buildSSHConfig(cfg RemoteConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		// The agent is dialed only if the server asks for public keys.
		auth = append(auth, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			conn, err := net.Dial("unix", socket)
			if err != nil {
				return nil, fmt.Errorf("connect to SSH agent: %w", err)
			}
			defer conn.Close()
			return agent.NewClient(conn).Signers()
		}))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH authentication method: set a key, a password or SSH_AUTH_SOCK")
	}

	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         dialTimeout,
	}, nil
}

func hostKeyCallback(cfg RemoteConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

type sshRunner struct {
	client  *ssh.Client
	timeout time.Duration
}

func (r *sshRunner) Run(cmd string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", &commandError{cmd: cmd, stderr: stderr.String(), err: err}
		}
		return stdout.String(), nil
	case <-time.After(r.timeout):
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return "", fmt.Errorf("%s: timed out after %v", cmd, r.timeout)
	}
}

// remoteFS implements attrFS with ls and cat on the remote host.
type remoteFS struct {
	run commandRunner
}

func (r remoteFS) ReadDir(dir string) ([]string, error) {
	if !validatePath(dir) {
		return nil, fmt.Errorf("invalid remote path %q", dir)
	}
	out, err := r.run.Run("ls -1 " + shellEscape(dir))
	if err != nil {
		return nil, classify(dir, err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (r remoteFS) ReadFile(name string) ([]byte, error) {
	if !validatePath(name) {
		return nil, fmt.Errorf("invalid remote path %q", name)
	}
	out, err := r.run.Run("cat " + shellEscape(name))
	if err != nil {
		return nil, classify(name, err)
	}
	return []byte(out), nil
}

// classify maps coreutils messages onto the errors a local read would give.
func classify(name string, err error) error {
	var ce *commandError
	if !errors.As(err, &ce) {
		return err
	}
	switch {
	case strings.Contains(ce.stderr, "No such file or directory"):
		return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	case strings.Contains(ce.stderr, "No such device"):
		return fmt.Errorf("%s: %w", name, syscall.ENODEV)
	}
	return err
}

// shellEscape single-quotes s for a POSIX shell.
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// validatePath accepts absolute paths made of the characters sysfs uses.
func validatePath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return false
	}
	for _, c := range p {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' ||
			c == '/' || c == '.' || c == ':') {
			return false
		}
	}
	return true
}
