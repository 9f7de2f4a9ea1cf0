package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

var (
	// ErrUnavailable means no power management interface could be used on this host.
	ErrUnavailable = errors.New("no battery backend available")
	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Backend discovers batteries through one OS mechanism.
type Backend interface {
	Name() string
	// Devices runs discovery again on every call. Zero batteries is not an error.
	Devices() ([]Device, error)
	Close() error
}

// Device reads raw fields of one battery. A missing attribute is an absent
// Reading with a nil error; a failed read is a *ReadError.
type Device interface {
	ID() string
	Read(f battery.Field) (battery.Reading, error)
}

// ReadError reports a field that could not be read from a device.
type ReadError struct {
	Device string
	Field  battery.Field
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s of %s: %v", e.Field, e.Device, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Names accepted by Open.
const (
	NameAuto     = "auto"
	NameSysfs    = "sysfs"
	NameUPower   = "upower"
	NamePortable = "portable"
	NameWMI      = "wmi"
	NameRemote   = "remote"
)

// Config selects and parameterizes a backend.
type Config struct {
	Name      string
	SysfsRoot string
	Remote    RemoteConfig
	Logger    *slog.Logger
}

// DefaultSysfsRoot is where Linux exposes power supplies.
const DefaultSysfsRoot = "/sys/class/power_supply"

// RemoteConfig specifies how to reach a remote Linux host over SSH.
type RemoteConfig struct {
	Host string
	Port int
	User string
	// KeyPath selects key authentication; otherwise the SSH agent is used,
	// falling back to Password when set.
	KeyPath               string
	Passphrase            string
	Password              string
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	SysfsRoot             string
	CommandTimeout        time.Duration
}

// Open returns the backend named in cfg. For "auto" the candidates for the
// running OS are tried in order and the first usable one wins.
func Open(cfg Config) (Backend, error) {
	return openFor(runtime.GOOS, cfg)
}

func openFor(goos string, cfg Config) (Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := cfg.Name
	if name == "" {
		name = NameAuto
	}
	if name != NameAuto {
		b, err := openNamed(name, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", name, err)
		}
		return b, nil
	}

	var errs []error
	for _, candidate := range AutoOrder(goos) {
		b, err := openNamed(candidate, cfg, logger)
		if err == nil {
			logger.Debug("backend selected", "backend", candidate)
			return b, nil
		}
		logger.Debug("backend unusable", "backend", candidate, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// AutoOrder lists the backends tried by "auto" on goos.
func AutoOrder(goos string) []string {
	switch goos {
	case "linux", "android":
		return []string{NameSysfs, NameUPower, NamePortable}
	case "windows":
		return []string{NameWMI, NamePortable}
	case "darwin", "freebsd", "dragonfly", "netbsd", "openbsd", "solaris", "illumos":
		return []string{NamePortable}
	}
	return nil
}

func openNamed(name string, cfg Config, logger *slog.Logger) (Backend, error) {
	switch name {
	case NameSysfs:
		root := cfg.SysfsRoot
		if root == "" {
			root = DefaultSysfsRoot
		}
		return OpenSysfs(root)
	case NameUPower:
		return OpenUPower(logger)
	case NamePortable:
		return NewPortable(), nil
	case NameWMI:
		return OpenWMI()
	case NameRemote:
		return OpenRemote(cfg.Remote, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
