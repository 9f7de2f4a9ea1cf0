package backend

import (
	"errors"
	"testing"

	distatus "github.com/distatus/battery"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

func fakePortable(bats []*distatus.Battery, listErr error, getErrs map[int]error) *Portable {
	return &Portable{
		getAll: func() ([]*distatus.Battery, error) { return bats, listErr },
		get: func(idx int) (*distatus.Battery, error) {
			return bats[idx], getErrs[idx]
		},
	}
}

func TestPortable_Devices(t *testing.T) {
	bats := []*distatus.Battery{
		{State: distatus.Charging, Current: 30000, Full: 60000, Design: 65000, ChargeRate: 15000, Voltage: 12.3, DesignVoltage: 11.55},
		{State: distatus.Discharging, Current: 20000, Full: 40000},
	}
	partial := distatus.ErrPartial{ChargeRate: errors.New("rate unavailable")}
	p := fakePortable(bats, distatus.Errors{nil, partial}, map[int]error{1: partial})

	devices, err := p.Devices()
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 2 || devices[0].ID() != "BAT0" || devices[1].ID() != "BAT1" {
		t.Fatalf("Devices() = %v, want BAT0, BAT1", deviceIDs(devices))
	}

	first, err := battery.Normalize(devices[0])
	if err != nil {
		t.Fatalf("Normalize(BAT0) error = %v", err)
	}
	if first.State != battery.StateCharging {
		t.Fatalf("State = %v, want charging", first.State)
	}
	// 30 Wh left to charge at 15 W
	if first.TimeToFull == nil || *first.TimeToFull != 7200 {
		t.Fatalf("TimeToFull = %v, want 7200", first.TimeToFull)
	}

	second, err := battery.Normalize(devices[1])
	var re *ReadError
	if !errors.As(err, &re) || re.Field != battery.FieldEnergyRate {
		t.Fatalf("Normalize(BAT1) error = %v, want ReadError for energy_rate", err)
	}
	if second.EnergyRate != nil {
		t.Fatalf("EnergyRate = %v, want absent", *second.EnergyRate)
	}
	if second.StateOfCharge == nil || *second.StateOfCharge != 50 {
		t.Fatalf("StateOfCharge = %v, want 50", second.StateOfCharge)
	}
}

func TestPortable_FatalListing(t *testing.T) {
	p := fakePortable(nil, distatus.ErrFatal{Err: errors.New("no power_supply class")}, nil)
	if _, err := p.Devices(); err == nil {
		t.Fatal("Devices() error = nil, want fatal error")
	}
}

func TestPortable_FatalDevice(t *testing.T) {
	bats := []*distatus.Battery{nil}
	p := fakePortable(bats, distatus.Errors{distatus.ErrFatal{Err: errors.New("unreadable")}}, map[int]error{0: distatus.ErrFatal{Err: errors.New("unreadable")}})

	devices, err := p.Devices()
	if err != nil || len(devices) != 1 {
		t.Fatalf("Devices() = %v, %v, want one device", deviceIDs(devices), err)
	}
	for _, f := range battery.Fields() {
		if _, err := devices[0].Read(f); err == nil {
			t.Fatalf("Read(%s) error = nil, want ReadError", f)
		}
	}
}
