package backend

import (
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

const (
	upowerService     = "org.freedesktop.UPower"
	upowerPath        = "/org/freedesktop/UPower"
	upowerDeviceIface = "org.freedesktop.UPower.Device"

	upowerTypeBattery = 2
)

// upowerBus is the slice of the system bus the UPower backend uses.
type upowerBus interface {
	EnumerateDevices() ([]dbus.ObjectPath, error)
	Properties(p dbus.ObjectPath) (map[string]dbus.Variant, error)
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

func (b *systemBus) EnumerateDevices() ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := b.conn.Object(upowerService, upowerPath).
		Call(upowerService+".EnumerateDevices", 0).Store(&paths)
	return paths, err
}

func (b *systemBus) Properties(p dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := b.conn.Object(upowerService, p).
		Call("org.freedesktop.DBus.Properties.GetAll", 0, upowerDeviceIface).Store(&props)
	return props, err
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}

// UPower reads batteries from the UPower daemon over the system bus.
type UPower struct {
	bus upowerBus
	log *slog.Logger
}

// OpenUPower connects to the system bus and checks that UPower answers.
func OpenUPower(logger *slog.Logger) (*UPower, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	u := newUPower(&systemBus{conn: conn}, logger)
	if _, err := u.bus.EnumerateDevices(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enumerate UPower devices: %w", err)
	}
	return u, nil
}

func newUPower(bus upowerBus, logger *slog.Logger) *UPower {
	return &UPower{bus: bus, log: logger}
}

func (u *UPower) Name() string {
	return NameUPower
}

func (u *UPower) Close() error {
	return u.bus.Close()
}

// Devices lists power-supply batteries. Peripheral batteries (mice,
// keyboards, UPS) are skipped.
func (u *UPower) Devices() ([]Device, error) {
	paths, err := u.bus.EnumerateDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerate UPower devices: %w", err)
	}
	var devices []Device
	for _, p := range paths {
		props, err := u.bus.Properties(p)
		if err != nil {
			// Unplugged between enumerate and read.
			u.log.Debug("skip UPower device", "path", p, "err", err)
			continue
		}
		typ, _ := props["Type"].Value().(uint32)
		supply, _ := props["PowerSupply"].Value().(bool)
		if typ != upowerTypeBattery || !supply {
			continue
		}
		devices = append(devices, &upowerDevice{id: path.Base(string(p)), path: p, bus: u.bus})
	}
	return devices, nil
}

type upowerDevice struct {
	id   string
	path dbus.ObjectPath
	bus  upowerBus

	once  sync.Once
	props map[string]dbus.Variant
	err   error
}

func (d *upowerDevice) ID() string {
	return d.id
}

var upowerStates = map[uint32]battery.State{
	1: battery.StateCharging,
	2: battery.StateDischarging,
	3: battery.StateEmpty,
	4: battery.StateFull,
	6: battery.StateDischarging,
}

var upowerTechnologies = map[uint32]battery.Technology{
	1: battery.TechnologyLithiumIon,
	2: battery.TechnologyLithiumPolymer,
	3: battery.TechnologyLithiumIronPhosphate,
	4: battery.TechnologyLeadAcid,
	5: battery.TechnologyNickelCadmium,
	6: battery.TechnologyNickelMetalHydride,
}

type upowerNumber struct {
	prop string
	unit battery.Unit
	// zeroUnknown marks properties where UPower reports 0 for "not known".
	zeroUnknown bool
}

var upowerNumbers = map[battery.Field]upowerNumber{
	battery.FieldEnergy:           {"Energy", battery.UnitWattHour, false},
	battery.FieldEnergyFull:       {"EnergyFull", battery.UnitWattHour, true},
	battery.FieldEnergyFullDesign: {"EnergyFullDesign", battery.UnitWattHour, true},
	battery.FieldEnergyRate:       {"EnergyRate", battery.UnitWatt, false},
	battery.FieldVoltage:          {"Voltage", battery.UnitVolt, true},
	battery.FieldTimeToFull:       {"TimeToFull", battery.UnitSecond, true},
	battery.FieldTimeToEmpty:      {"TimeToEmpty", battery.UnitSecond, true},
	battery.FieldStateOfCharge:    {"Percentage", battery.UnitPercent, false},
	battery.FieldStateOfHealth:    {"Capacity", battery.UnitPercent, true},
	battery.FieldTemperature:      {"Temperature", battery.UnitCelsius, true},
	battery.FieldCycleCount:       {"ChargeCycles", battery.UnitCount, true},
}

var upowerTexts = map[battery.Field]string{
	battery.FieldVendor:       "Vendor",
	battery.FieldModel:        "Model",
	battery.FieldSerialNumber: "Serial",
}

func (d *upowerDevice) Read(f battery.Field) (battery.Reading, error) {
	// Properties are fetched on first read so values are as fresh as the read.
	d.once.Do(func() {
		d.props, d.err = d.bus.Properties(d.path)
	})
	if d.err != nil {
		return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: d.err}
	}

	if prop, ok := upowerTexts[f]; ok {
		s, _ := d.props[prop].Value().(string)
		if s == "" {
			return battery.Absent(), nil
		}
		return battery.Text(s), nil
	}
	switch f {
	case battery.FieldState:
		code, _ := d.props["State"].Value().(uint32)
		return battery.Text(upowerStates[code].String()), nil
	case battery.FieldTechnology:
		code, _ := d.props["Technology"].Value().(uint32)
		return battery.Text(upowerTechnologies[code].String()), nil
	}

	num, ok := upowerNumbers[f]
	if !ok {
		return battery.Absent(), nil
	}
	v, ok := variantFloat(d.props[num.prop])
	if !ok || (num.zeroUnknown && v <= 0) {
		return battery.Absent(), nil
	}
	return battery.Number(v, num.unit), nil
}

func variantFloat(v dbus.Variant) (float64, bool) {
	switch n := v.Value().(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
