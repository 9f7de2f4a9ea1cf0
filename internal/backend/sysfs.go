package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

// errBadContent marks attribute files the kernel filled with garbage.
var errBadContent = errors.New("attribute content starts with NUL")

// attrFS is the part of a filesystem the sysfs walker needs. Paths use
// forward slashes so the same walker runs against a remote host.
type attrFS interface {
	ReadDir(dir string) ([]string, error)
	ReadFile(name string) ([]byte, error)
}

type localFS struct{}

func (localFS) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (localFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Sysfs reads batteries from a Linux power_supply class directory.
type Sysfs struct {
	name string
	root string
	fs   attrFS
	// closer releases the transport, if any.
	closer func() error
}

// OpenSysfs returns a backend rooted at root, which must exist.
func OpenSysfs(root string) (*Sysfs, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	return &Sysfs{name: NameSysfs, root: root, fs: localFS{}}, nil
}

func (s *Sysfs) Name() string {
	return s.name
}

func (s *Sysfs) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// Devices lists supplies whose type is Battery, skipping device-scoped
// batteries such as those in wireless mice.
func (s *Sysfs) Devices() ([]Device, error) {
	names, err := s.fs.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	sort.Strings(names)

	var devices []Device
	for _, name := range names {
		dir := path.Join(s.root, name)
		typ, ok, err := readAttrFile(s.fs, path.Join(dir, "type"))
		if err != nil || !ok || typ != "Battery" {
			continue
		}
		if scope, ok, _ := readAttrFile(s.fs, path.Join(dir, "scope")); ok && scope == "Device" {
			continue
		}
		devices = append(devices, &sysfsDevice{id: name, dir: dir, root: s.root, fs: s.fs})
	}
	return devices, nil
}

// readAttrFile returns the trimmed content of a sysfs attribute.
// Missing attributes and detached devices read as absent.
func readAttrFile(fsys attrFS, name string) (string, bool, error) {
	data, err := fsys.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENODEV) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(data) > 0 && data[0] == 0 {
		return "", false, errBadContent
	}
	v := strings.TrimSpace(string(data))
	return v, v != "", nil
}

type sysfsDevice struct {
	id   string
	dir  string
	root string
	fs   attrFS

	ueventOnce sync.Once
	uevent     map[string]string
}

func (d *sysfsDevice) ID() string {
	return d.id
}

// attr looks the attribute up in uevent first and falls back to its file.
func (d *sysfsDevice) attr(name string) (string, bool, error) {
	d.ueventOnce.Do(func() {
		if data, err := d.fs.ReadFile(path.Join(d.dir, "uevent")); err == nil {
			d.uevent = parseUevent(string(data))
		}
	})
	if v, ok := d.uevent["POWER_SUPPLY_"+strings.ToUpper(name)]; ok {
		v = strings.TrimSpace(v)
		return v, v != "", nil
	}
	return readAttrFile(d.fs, path.Join(d.dir, name))
}

func (d *sysfsDevice) has(names ...string) bool {
	for _, n := range names {
		if _, ok, _ := d.attr(n); ok {
			return true
		}
	}
	return false
}

type candidate struct {
	name string
	unit battery.Unit
}

var (
	textAttrs = map[battery.Field]string{
		battery.FieldVendor:       "manufacturer",
		battery.FieldModel:        "model_name",
		battery.FieldSerialNumber: "serial_number",
		battery.FieldState:        "status",
		battery.FieldTechnology:   "technology",
	}
	numberAttrs = map[battery.Field][]candidate{
		battery.FieldEnergy: {
			{"energy_now", battery.UnitMicrowattHour},
			{"energy_avg", battery.UnitMicrowattHour},
			{"charge_now", battery.UnitMicroampHour},
			{"charge_avg", battery.UnitMicroampHour},
		},
		battery.FieldEnergyFull: {
			{"energy_full", battery.UnitMicrowattHour},
			{"charge_full", battery.UnitMicroampHour},
		},
		battery.FieldEnergyFullDesign: {
			{"energy_full_design", battery.UnitMicrowattHour},
			{"charge_full_design", battery.UnitMicroampHour},
		},
		battery.FieldVoltage: {
			{"voltage_now", battery.UnitMicrovolt},
			{"voltage_avg", battery.UnitMicrovolt},
		},
		battery.FieldDesignVoltage: {
			{"voltage_max_design", battery.UnitMicrovolt},
			{"voltage_min_design", battery.UnitMicrovolt},
			{"voltage_present", battery.UnitMicrovolt},
			{"voltage_now", battery.UnitMicrovolt},
		},
		battery.FieldTimeToFull: {
			{"time_to_full_now", battery.UnitSecond},
			{"time_to_full_avg", battery.UnitSecond},
		},
		battery.FieldTimeToEmpty: {
			{"time_to_empty_now", battery.UnitSecond},
			{"time_to_empty_avg", battery.UnitSecond},
		},
		battery.FieldStateOfCharge: {
			{"capacity", battery.UnitPercent},
		},
		battery.FieldTemperature: {
			{"temp", battery.UnitDeciCelsius},
		},
		battery.FieldCycleCount: {
			{"cycle_count", battery.UnitCount},
		},
	}
)

func (d *sysfsDevice) Read(f battery.Field) (battery.Reading, error) {
	if name, ok := textAttrs[f]; ok {
		v, ok, err := d.attr(name)
		if err != nil {
			return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: err}
		}
		if !ok {
			return battery.Absent(), nil
		}
		if f == battery.FieldState {
			v = d.correctStatus(v)
		}
		return battery.RawText([]byte(v), battery.EncodingUnknown), nil
	}

	candidates := numberAttrs[f]
	if f == battery.FieldEnergyRate {
		candidates = d.rateCandidates()
	}
	var firstErr error
	for _, c := range candidates {
		v, ok, err := d.attr(c.name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			// Unparsable values are treated like missing ones.
			continue
		}
		return battery.Number(n, c.unit), nil
	}
	if firstErr != nil {
		return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: firstErr}
	}
	return battery.Absent(), nil
}

// correctStatus turns "Discharging" into "Full" when the battery is at 100%
// and a mains supply is online. Some firmware never leaves Discharging on AC.
func (d *sysfsDevice) correctStatus(status string) string {
	if status != "Discharging" {
		return status
	}
	c, ok, _ := d.attr("capacity")
	if n, err := strconv.Atoi(c); !ok || err != nil || n < 100 {
		return status
	}
	if mainsOnline(d.fs, d.root) {
		return "Full"
	}
	return status
}

// mainsOnline reports whether any AC adapter under root is online.
func mainsOnline(fsys attrFS, root string) bool {
	names, err := fsys.ReadDir(root)
	if err != nil {
		return false
	}
	for _, name := range names {
		dir := path.Join(root, name)
		if typ, _, _ := readAttrFile(fsys, path.Join(dir, "type")); typ != "Mains" {
			continue
		}
		if online, _, _ := readAttrFile(fsys, path.Join(dir, "online")); online == "1" {
			return true
		}
	}
	return false
}

// rateCandidates resolves the unit of current_now: it is µA when the driver
// reports charge values and µW on legacy energy-only drivers.
func (d *sysfsDevice) rateCandidates() []candidate {
	current := battery.UnitMicrowatt
	if d.has("charge_full", "charge_full_design", "charge_now") {
		current = battery.UnitMicroamp
	}
	return []candidate{
		{"power_now", battery.UnitMicrowatt},
		{"power_avg", battery.UnitMicrowatt},
		{"current_now", current},
		{"current_avg", current},
	}
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}
