package backend

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	distatus "github.com/distatus/battery"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

// Portable reads batteries through github.com/distatus/battery, which covers
// Linux, macOS, Windows and the BSDs with one API.
type Portable struct {
	getAll func() ([]*distatus.Battery, error)
	get    func(idx int) (*distatus.Battery, error)
}

func NewPortable() *Portable {
	return &Portable{getAll: distatus.GetAll, get: distatus.Get}
}

func (p *Portable) Name() string {
	return NamePortable
}

func (p *Portable) Close() error {
	return nil
}

// Devices counts the batteries. Values are fetched again when first read.
func (p *Portable) Devices() ([]Device, error) {
	bats, err := p.getAll()
	if err != nil {
		var fatal distatus.ErrFatal
		if errors.As(err, &fatal) {
			return nil, fmt.Errorf("list batteries: %w", fatal.Err)
		}
		var perBattery distatus.Errors
		if !errors.As(err, &perBattery) {
			return nil, fmt.Errorf("list batteries: %w", err)
		}
	}
	devices := make([]Device, 0, len(bats))
	for i := range bats {
		devices = append(devices, &portableDevice{id: "BAT" + strconv.Itoa(i), idx: i, get: p.get})
	}
	return devices, nil
}

type portableDevice struct {
	id  string
	idx int
	get func(int) (*distatus.Battery, error)

	once    sync.Once
	bat     *distatus.Battery
	fatal   error
	partial map[battery.Field]error
}

func (d *portableDevice) ID() string {
	return d.id
}

func (d *portableDevice) load() {
	bat, err := d.get(d.idx)
	d.bat = bat
	if err == nil {
		return
	}
	var partial distatus.ErrPartial
	if errors.As(err, &partial) && bat != nil {
		d.partial = map[battery.Field]error{
			battery.FieldState:            partial.State,
			battery.FieldEnergy:           partial.Current,
			battery.FieldEnergyFull:       partial.Full,
			battery.FieldEnergyFullDesign: partial.Design,
			battery.FieldEnergyRate:       partial.ChargeRate,
			battery.FieldVoltage:          partial.Voltage,
			battery.FieldDesignVoltage:    partial.DesignVoltage,
		}
		return
	}
	var fatal distatus.ErrFatal
	if errors.As(err, &fatal) {
		err = fatal.Err
	}
	d.fatal = err
}

func (d *portableDevice) Read(f battery.Field) (battery.Reading, error) {
	d.once.Do(d.load)
	if d.fatal != nil {
		return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: d.fatal}
	}
	if err := d.partial[f]; err != nil {
		return battery.Absent(), &ReadError{Device: d.id, Field: f, Err: err}
	}
	if d.bat == nil {
		return battery.Absent(), nil
	}

	b := d.bat
	switch f {
	case battery.FieldState:
		return battery.Text(portableState(b).String()), nil
	case battery.FieldEnergy:
		return battery.Number(b.Current, battery.UnitMilliwattHour), nil
	case battery.FieldEnergyFull:
		return battery.Number(b.Full, battery.UnitMilliwattHour), nil
	case battery.FieldEnergyFullDesign:
		return battery.Number(b.Design, battery.UnitMilliwattHour), nil
	case battery.FieldEnergyRate:
		return battery.Number(b.ChargeRate, battery.UnitMilliwatt), nil
	case battery.FieldVoltage:
		return battery.Number(b.Voltage, battery.UnitVolt), nil
	case battery.FieldDesignVoltage:
		return battery.Number(b.DesignVoltage, battery.UnitVolt), nil
	}
	return battery.Absent(), nil
}

func portableState(b *distatus.Battery) battery.State {
	switch b.State {
	case distatus.Charging:
		return battery.StateCharging
	case distatus.Discharging:
		return battery.StateDischarging
	case distatus.Full:
		return battery.StateFull
	case distatus.Empty:
		return battery.StateEmpty
	}
	return battery.StateUnknown
}
