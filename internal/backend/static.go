package backend

import (
	"sync"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

// NameStatic identifies the in-memory backend. It is not reachable through Open.
const NameStatic = "static"

// Static is an in-memory Backend whose device list can be swapped at any
// time. It stands in for real hardware in tests and replays.
type Static struct {
	mu      sync.Mutex
	devices []*StaticDevice
	err     error
	closed  bool
}

func NewStatic(devices ...*StaticDevice) *Static {
	return &Static{devices: devices}
}

func (s *Static) Name() string {
	return NameStatic
}

// SetDevices replaces the batteries returned by the next discovery.
func (s *Static) SetDevices(devices ...*StaticDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

// SetError makes discovery fail with err until cleared with nil.
func (s *Static) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Static) Devices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out, nil
}

func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Static) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// StaticDevice holds fixed readings for one battery.
type StaticDevice struct {
	id string

	mu       sync.Mutex
	readings map[battery.Field]battery.Reading
	errs     map[battery.Field]error
}

func NewStaticDevice(id string) *StaticDevice {
	return &StaticDevice{
		id:       id,
		readings: make(map[battery.Field]battery.Reading),
		errs:     make(map[battery.Field]error),
	}
}

// StaticDeviceFrom returns a device that reads back b.
func StaticDeviceFrom(b battery.Battery) *StaticDevice {
	d := NewStaticDevice(b.ID)
	src := b.Source()
	for _, f := range battery.Fields() {
		if r, err := src.Read(f); err == nil && !r.IsAbsent() {
			d.readings[f] = r
		}
	}
	return d
}

// Set stores a reading for f and clears any failure set for it.
func (d *StaticDevice) Set(f battery.Field, r battery.Reading) *StaticDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readings[f] = r
	delete(d.errs, f)
	return d
}

// Fail makes reads of f return err wrapped in a *ReadError.
func (d *StaticDevice) Fail(f battery.Field, err error) *StaticDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[f] = err
	return d
}

func (d *StaticDevice) ID() string {
	return d.id
}

func (d *StaticDevice) Read(f battery.Field) (battery.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[f]; err != nil {
		return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: err}
	}
	if r, ok := d.readings[f]; ok {
		return r, nil
	}
	return battery.Absent(), nil
}
