// Package abi keeps the Go side state behind the C interface of libbattery.
//
// Objects handed to C are never Go pointers. Each one is stored in a
// Registry under a numeric Handle, and every call from C resolves its
// handle first, so stale, released or mismatched handles are reported
// instead of dereferenced.
package abi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cptspacemanspiff/battery-probe/internal/backend"
	"github.com/cptspacemanspiff/battery-probe/internal/battery"
	"github.com/cptspacemanspiff/battery-probe/internal/manager"
)

// ErrInvalidHandle is recorded when a handle is zero, already released or of
// the wrong kind.
var ErrInvalidHandle = errors.New("invalid handle")

// Handle identifies an object owned by a Registry. Zero is never issued.
type Handle uintptr

type iterEntry struct {
	mu    sync.Mutex
	it    *manager.Iterator
	owner Handle
}

// Registry owns every manager, iterator, battery and C string handed out.
// All methods are safe for concurrent use. Backend I/O runs without the
// registry lock held, so a slow backend only blocks callers of its own
// manager.
//
// The last error is kept per calling thread. The thread is identified by
// the function installed with SetThreadID; without one, all callers share
// a single slot.
type Registry struct {
	mu        sync.Mutex
	next      Handle
	managers  map[Handle]*manager.Manager
	iterators map[Handle]*iterEntry
	batteries map[Handle]*battery.Battery
	strings   map[uintptr]struct{}
	lastErr   map[uint64]error
	thread    func() uint64

	open func(backend.Config, ...manager.Option) (*manager.Manager, error)
	opts []manager.Option
}

func NewRegistry(opts ...manager.Option) *Registry {
	return &Registry{
		managers:  make(map[Handle]*manager.Manager),
		iterators: make(map[Handle]*iterEntry),
		batteries: make(map[Handle]*battery.Battery),
		strings:   make(map[uintptr]struct{}),
		lastErr:   make(map[uint64]error),
		thread:    func() uint64 { return 0 },
		open:      manager.Open,
		opts:      opts,
	}
}

// SetThreadID installs the function that names the calling OS thread.
// It must be called before the registry is shared.
func (r *Registry) SetThreadID(fn func() uint64) {
	if fn != nil {
		r.thread = fn
	}
}

func (r *Registry) issue() Handle {
	r.next++
	return r.next
}

// fail records err as the calling thread's last error. Callers hold r.mu.
func (r *Registry) fail(err error) {
	tid := r.thread()
	if err == nil {
		delete(r.lastErr, tid)
		return
	}
	r.lastErr[tid] = err
}

func invalid(kind string, h Handle) error {
	return fmt.Errorf("%s %#x: %w", kind, uintptr(h), ErrInvalidHandle)
}

func (r *Registry) lookupManager(mh Handle) (*manager.Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[mh]
	if !ok {
		r.fail(invalid("manager", mh))
	}
	return m, ok
}

// NewManager opens a manager on the best backend for this host. It
// returns 0 and records the error if none is usable.
func (r *Registry) NewManager(cfg backend.Config) Handle {
	m, err := r.open(cfg, r.opts...)
	if err != nil {
		r.SetLastError(err)
		return 0
	}
	return r.AddManager(m)
}

// AddManager takes ownership of m.
func (r *Registry) AddManager(m *manager.Manager) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.issue()
	r.managers[h] = m
	return h
}

// Iterate starts a new enumeration on the manager mh.
func (r *Registry) Iterate(mh Handle) Handle {
	m, ok := r.lookupManager(mh)
	if !ok {
		return 0
	}
	it, err := m.Iter()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fail(err)
		return 0
	}
	if _, ok := r.managers[mh]; !ok {
		r.fail(invalid("manager", mh))
		return 0
	}
	h := r.issue()
	r.iterators[h] = &iterEntry{it: it, owner: mh}
	return h
}

// Next returns the next battery of ih. It returns 0 both at the end and on
// failure; only a failure leaves a last error behind.
func (r *Registry) Next(ih Handle) Handle {
	r.mu.Lock()
	e, ok := r.iterators[ih]
	if !ok {
		r.fail(invalid("iterator", ih))
		r.mu.Unlock()
		return 0
	}
	r.mu.Unlock()

	e.mu.Lock()
	b, ok := e.it.Next()
	e.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		r.fail(nil)
		return 0
	}
	h := r.issue()
	r.batteries[h] = b
	return h
}

// Refresh re-reads battery bh through manager mh. On failure the battery
// keeps its previous values.
func (r *Registry) Refresh(mh, bh Handle) error {
	r.mu.Lock()
	m, ok := r.managers[mh]
	if !ok {
		err := invalid("manager", mh)
		r.fail(err)
		r.mu.Unlock()
		return err
	}
	b, ok := r.batteries[bh]
	if !ok {
		err := invalid("battery", bh)
		r.fail(err)
		r.mu.Unlock()
		return err
	}
	fresh := *b
	r.mu.Unlock()

	err := m.Refresh(&fresh)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fail(err)
		return err
	}
	if b, ok = r.batteries[bh]; !ok {
		err := invalid("battery", bh)
		r.fail(err)
		return err
	}
	*b = fresh
	return nil
}

// ReleaseManager closes the manager and invalidates every iterator made
// from it. Batteries already returned stay valid.
func (r *Registry) ReleaseManager(mh Handle) bool {
	r.mu.Lock()
	m, ok := r.managers[mh]
	if !ok {
		r.fail(invalid("manager", mh))
		r.mu.Unlock()
		return false
	}
	delete(r.managers, mh)
	for h, e := range r.iterators {
		if e.owner == mh {
			delete(r.iterators, h)
		}
	}
	r.mu.Unlock()

	if err := m.Close(); err != nil {
		r.SetLastError(fmt.Errorf("close manager: %w", err))
	}
	return true
}

func (r *Registry) ReleaseIterator(ih Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.iterators[ih]; !ok {
		r.fail(invalid("iterator", ih))
		return false
	}
	delete(r.iterators, ih)
	return true
}

func (r *Registry) ReleaseBattery(bh Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batteries[bh]; !ok {
		r.fail(invalid("battery", bh))
		return false
	}
	delete(r.batteries, bh)
	return true
}

// Battery returns a copy of the battery behind bh.
func (r *Registry) Battery(bh Handle) (battery.Battery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batteries[bh]
	if !ok {
		r.fail(invalid("battery", bh))
		return battery.Battery{}, false
	}
	return *b, true
}

// Metric reports 0 with false when the value is absent or bh is invalid.
func (r *Registry) Metric(bh Handle, m battery.Metric) (float64, bool) {
	b, ok := r.Battery(bh)
	if !ok {
		return 0, false
	}
	return b.Metric(m)
}

func (r *Registry) State(bh Handle) battery.State {
	b, _ := r.Battery(bh)
	return b.State
}

func (r *Registry) Technology(bh Handle) battery.Technology {
	b, _ := r.Battery(bh)
	return b.Technology
}

func (r *Registry) CycleCount(bh Handle) (uint32, bool) {
	b, ok := r.Battery(bh)
	if !ok || b.CycleCount == nil {
		return 0, false
	}
	return *b.CycleCount, true
}

// Text returns the vendor, model or serial number of bh.
func (r *Registry) Text(bh Handle, f battery.Field) (string, bool) {
	b, ok := r.Battery(bh)
	if !ok {
		return "", false
	}
	var s *string
	switch f {
	case battery.FieldVendor:
		s = b.Vendor
	case battery.FieldModel:
		s = b.Model
	case battery.FieldSerialNumber:
		s = b.SerialNumber
	}
	if s == nil {
		return "", false
	}
	return *s, true
}

// TrackString records a C string allocated for the caller.
func (r *Registry) TrackString(p uintptr) {
	if p == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strings[p] = struct{}{}
}

// ReleaseString forgets p. An error means p was not handed out by this
// registry or was already released, and must not be freed.
func (r *Registry) ReleaseString(p uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strings[p]; !ok {
		err := fmt.Errorf("string %#x: %w", p, ErrInvalidHandle)
		r.fail(err)
		return err
	}
	delete(r.strings, p)
	return nil
}

// Live counts the objects not yet released.
func (r *Registry) Live() (managers, iterators, batteries, strings int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers), len(r.iterators), len(r.batteries), len(r.strings)
}

func (r *Registry) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr[r.thread()]
}

// TakeLastError returns the last error and clears it.
func (r *Registry) TakeLastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tid := r.thread()
	err := r.lastErr[tid]
	delete(r.lastErr, tid)
	return err
}

func (r *Registry) SetLastError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail(err)
}

func (r *Registry) ClearLastError() {
	r.SetLastError(nil)
}
