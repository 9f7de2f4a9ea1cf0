package backend

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

const wmiNamespace = `root\WMI`

// Values the battery class driver reports when it does not know a quantity.
const (
	wmiUnknownCapacity uint32 = 0xFFFFFFFF
	wmiUnknownVoltage  uint32 = 0xFFFFFFFF
	wmiUnknownRate     int32  = math.MinInt32
)

// Row types for the battery classes of the root\WMI namespace. Field names
// match WMI property names.
type batteryStaticData struct {
	InstanceName     string
	ManufactureName  string
	DeviceName       string
	SerialNumber     string
	Chemistry        uint32
	DesignedCapacity uint32 // mWh
}

type batteryStatus struct {
	InstanceName      string
	Voltage           uint32 // mV
	RemainingCapacity uint32 // mWh
	ChargeRate        int32  // mW
	DischargeRate     int32  // mW
	Charging          bool
	Discharging       bool
	PowerOnline       bool
	Critical          bool
}

type batteryFullChargedCapacity struct {
	InstanceName        string
	FullChargedCapacity uint32 // mWh
}

type batteryCycleCount struct {
	InstanceName string
	CycleCount   uint32
}

// wmiQuerier runs a WQL query into a pointer to a slice of row structs.
type wmiQuerier interface {
	Query(query string, dst any) error
}

// WMI reads batteries from the Windows battery class driver through WMI.
type WMI struct {
	q wmiQuerier
}

func newWMI(q wmiQuerier) *WMI {
	return &WMI{q: q}
}

func (w *WMI) Name() string {
	return NameWMI
}

func (w *WMI) Close() error {
	return nil
}

func (w *WMI) Devices() ([]Device, error) {
	var rows []batteryStaticData
	if err := w.q.Query("SELECT InstanceName FROM BatteryStaticData", &rows); err != nil {
		return nil, fmt.Errorf("query BatteryStaticData: %w", err)
	}
	devices := make([]Device, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, &wmiDevice{id: r.InstanceName, q: w.q})
	}
	return devices, nil
}

type wmiDevice struct {
	id string
	q  wmiQuerier

	once   sync.Once
	err    error
	static *batteryStaticData
	status *batteryStatus
	full   *batteryFullChargedCapacity
	cycles *batteryCycleCount
}

func (d *wmiDevice) ID() string {
	return d.id
}

func (d *wmiDevice) load() {
	var (
		static []batteryStaticData
		status []batteryStatus
		full   []batteryFullChargedCapacity
		cycles []batteryCycleCount
	)
	if err := d.q.Query("SELECT * FROM BatteryStaticData", &static); err != nil {
		d.err = fmt.Errorf("query BatteryStaticData: %w", err)
		return
	}
	if err := d.q.Query("SELECT * FROM BatteryStatus", &status); err != nil {
		d.err = fmt.Errorf("query BatteryStatus: %w", err)
		return
	}
	// Older firmware lacks these two classes.
	_ = d.q.Query("SELECT * FROM BatteryFullChargedCapacity", &full)
	_ = d.q.Query("SELECT * FROM BatteryCycleCount", &cycles)

	for i := range static {
		if static[i].InstanceName == d.id {
			d.static = &static[i]
		}
	}
	for i := range status {
		if status[i].InstanceName == d.id {
			d.status = &status[i]
		}
	}
	for i := range full {
		if full[i].InstanceName == d.id {
			d.full = &full[i]
		}
	}
	for i := range cycles {
		if cycles[i].InstanceName == d.id {
			d.cycles = &cycles[i]
		}
	}
	if d.static == nil && d.status == nil {
		d.err = fmt.Errorf("battery %s disappeared", d.id)
	}
}

func (d *wmiDevice) Read(f battery.Field) (battery.Reading, error) {
	d.once.Do(d.load)
	if d.err != nil {
		return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: d.err}
	}

	if s := d.static; s != nil {
		switch f {
		case battery.FieldVendor:
			return optionalText(s.ManufactureName), nil
		case battery.FieldModel:
			return optionalText(s.DeviceName), nil
		case battery.FieldSerialNumber:
			return optionalText(s.SerialNumber), nil
		case battery.FieldTechnology:
			return battery.Text(decodeChemistry(s.Chemistry).String()), nil
		case battery.FieldEnergyFullDesign:
			return capacity(s.DesignedCapacity, false), nil
		}
	}
	if s := d.status; s != nil {
		switch f {
		case battery.FieldState:
			return battery.Text(d.state().String()), nil
		case battery.FieldEnergy:
			return capacity(s.RemainingCapacity, true), nil
		case battery.FieldVoltage:
			if s.Voltage == wmiUnknownVoltage {
				return battery.Absent(), nil
			}
			return optionalNumber(float64(s.Voltage), battery.UnitMillivolt), nil
		case battery.FieldEnergyRate:
			rate := s.DischargeRate
			if s.Charging {
				rate = s.ChargeRate
			}
			if rate == wmiUnknownRate {
				return battery.Absent(), nil
			}
			return battery.Number(float64(rate), battery.UnitMilliwatt), nil
		}
	}
	switch f {
	case battery.FieldEnergyFull:
		if d.full != nil {
			return capacity(d.full.FullChargedCapacity, false), nil
		}
	case battery.FieldCycleCount:
		if d.cycles != nil {
			return battery.Number(float64(d.cycles.CycleCount), battery.UnitCount), nil
		}
	}
	return battery.Absent(), nil
}

func (d *wmiDevice) state() battery.State {
	s := d.status
	switch {
	case s.Charging:
		return battery.StateCharging
	case s.Discharging:
		if s.Critical && s.RemainingCapacity == 0 {
			return battery.StateEmpty
		}
		return battery.StateDischarging
	case s.PowerOnline && d.full != nil &&
		s.RemainingCapacity != wmiUnknownCapacity &&
		d.full.FullChargedCapacity != wmiUnknownCapacity &&
		s.RemainingCapacity >= d.full.FullChargedCapacity:
		return battery.StateFull
	}
	return battery.StateUnknown
}

// decodeChemistry reads the four ASCII characters packed into the
// Chemistry property, e.g. "LION" or "PbAc".
func decodeChemistry(code uint32) battery.Technology {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], code)
	return battery.ParseTechnology(strings.TrimRight(string(buf[:]), "\x00 "))
}

// capacity converts a capacity in mWh. Zero is only a reading when
// zeroValid is set.
func capacity(v uint32, zeroValid bool) battery.Reading {
	if v == wmiUnknownCapacity || (v == 0 && !zeroValid) {
		return battery.Absent()
	}
	return battery.Number(float64(v), battery.UnitMilliwattHour)
}

func optionalText(s string) battery.Reading {
	if s == "" {
		return battery.Absent()
	}
	return battery.RawText([]byte(s), battery.EncodingUTF8)
}

func optionalNumber(v float64, u battery.Unit) battery.Reading {
	if v <= 0 {
		return battery.Absent()
	}
	return battery.Number(v, u)
}
