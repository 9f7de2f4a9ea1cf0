// Package manager is the enumeration entry point: it owns a backend and
// hands out forward-only iterators of normalized batteries.
package manager

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cptspacemanspiff/battery-probe/internal/backend"
	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

// ErrDeviceGone is returned by Refresh when the battery is no longer present.
var ErrDeviceGone = errors.New("battery no longer present")

type Option func(*Manager)

// WithLogger routes debug output about partial records to l.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager is safe for concurrent use as long as its backend is.
type Manager struct {
	backend backend.Backend
	logger  *slog.Logger
}

func New(b backend.Backend, opts ...Option) *Manager {
	m := &Manager{backend: b, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open selects a backend for this host. The only failure is that no
// backend is usable, reported as backend.ErrUnavailable.
func Open(cfg backend.Config, opts ...Option) (*Manager, error) {
	m := New(nil, opts...)
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	b, err := backend.Open(cfg)
	if err != nil {
		if !errors.Is(err, backend.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
		}
		return nil, err
	}
	m.backend = b
	m.logger.Debug("manager opened", "backend", b.Name())
	return m, nil
}

// Backend names the backend in use.
func (m *Manager) Backend() string {
	return m.backend.Name()
}

// Iter discovers the batteries present right now. Zero batteries is an
// iterator that ends immediately.
func (m *Manager) Iter() (*Iterator, error) {
	devices, err := m.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate batteries: %w", err)
	}
	return &Iterator{logger: m.logger, devices: devices}, nil
}

// Refresh re-reads the battery with b's ID and overwrites *b.
func (m *Manager) Refresh(b *battery.Battery) error {
	devices, err := m.backend.Devices()
	if err != nil {
		return fmt.Errorf("enumerate batteries: %w", err)
	}
	for _, d := range devices {
		if d.ID() == b.ID {
			*b = normalize(m.logger, d)
			return nil
		}
	}
	return fmt.Errorf("refresh %s: %w", b.ID, ErrDeviceGone)
}

// Snapshot reads every battery once.
func (m *Manager) Snapshot() ([]battery.Battery, error) {
	it, err := m.Iter()
	if err != nil {
		return nil, err
	}
	out := make([]battery.Battery, 0, it.Len())
	for {
		b, ok := it.Next()
		if !ok {
			return out, nil
		}
		out = append(out, *b)
	}
}

func (m *Manager) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}

// Iterator yields one battery per discovered device. It must not be used
// after its Manager is closed and is not safe for concurrent use.
type Iterator struct {
	logger  *slog.Logger
	devices []backend.Device
	pos     int
}

// Len is the number of batteries not yet returned.
func (it *Iterator) Len() int {
	return len(it.devices) - it.pos
}

// Next reads and normalizes the next battery. A device whose fields only
// partly read is still returned. Once exhausted, Next keeps returning false.
func (it *Iterator) Next() (*battery.Battery, bool) {
	if it.pos >= len(it.devices) {
		return nil, false
	}
	d := it.devices[it.pos]
	it.pos++
	b := normalize(it.logger, d)
	return &b, true
}

func normalize(logger *slog.Logger, d backend.Device) battery.Battery {
	b, err := battery.Normalize(d)
	if err != nil {
		logger.Debug("partial battery record", "battery", d.ID(), "err", err)
	}
	return b
}
