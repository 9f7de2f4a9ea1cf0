package backend

import (
	"errors"
	"math"
	"testing"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

type fakeWMI struct {
	static []batteryStaticData
	status []batteryStatus
	full   []batteryFullChargedCapacity
	cycles []batteryCycleCount
	err    error
}

func (f *fakeWMI) Query(query string, dst any) error {
	if f.err != nil {
		return f.err
	}
	switch d := dst.(type) {
	case *[]batteryStaticData:
		*d = append(*d, f.static...)
	case *[]batteryStatus:
		*d = append(*d, f.status...)
	case *[]batteryFullChargedCapacity:
		*d = append(*d, f.full...)
	case *[]batteryCycleCount:
		*d = append(*d, f.cycles...)
	}
	return nil
}

// chemistry packs a four letter code the way the battery class driver does.
func chemistry(s string) uint32 {
	var v uint32
	for i := len(s) - 1; i >= 0; i-- {
		v = v<<8 | uint32(s[i])
	}
	return v
}

const wmiInstance = `ACPI\PNP0C0A\1_0`

func wmiLaptop() *fakeWMI {
	return &fakeWMI{
		static: []batteryStaticData{{
			InstanceName:     wmiInstance,
			ManufactureName:  "LGC",
			DeviceName:       "DELL 7FHHV",
			SerialNumber:     "1234",
			Chemistry:        chemistry("LION"),
			DesignedCapacity: 60000,
		}},
		status: []batteryStatus{{
			InstanceName:      wmiInstance,
			Voltage:           12000,
			RemainingCapacity: 27000,
			DischargeRate:     9000,
			Discharging:       true,
		}},
		full:   []batteryFullChargedCapacity{{InstanceName: wmiInstance, FullChargedCapacity: 54000}},
		cycles: []batteryCycleCount{{InstanceName: wmiInstance, CycleCount: 88}},
	}
}

func TestWMI_Devices(t *testing.T) {
	w := newWMI(wmiLaptop())
	devices, err := w.Devices()
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID() != wmiInstance {
		t.Fatalf("Devices() = %v, want [%s]", deviceIDs(devices), wmiInstance)
	}

	b, err := battery.Normalize(devices[0])
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if b.Vendor == nil || *b.Vendor != "LGC" {
		t.Fatalf("Vendor = %v, want LGC", b.Vendor)
	}
	if b.Technology != battery.TechnologyLithiumIon {
		t.Fatalf("Technology = %v, want li-ion", b.Technology)
	}
	if b.State != battery.StateDischarging {
		t.Fatalf("State = %v, want discharging", b.State)
	}
	if b.StateOfCharge == nil || math.Abs(*b.StateOfCharge-50) > 1e-9 {
		t.Fatalf("StateOfCharge = %v, want 50", b.StateOfCharge)
	}
	if b.StateOfHealth == nil || math.Abs(*b.StateOfHealth-90) > 1e-9 {
		t.Fatalf("StateOfHealth = %v, want 90", b.StateOfHealth)
	}
	// 27 Wh at 9 W
	if b.TimeToEmpty == nil || math.Abs(*b.TimeToEmpty-10800) > 1e-6 {
		t.Fatalf("TimeToEmpty = %v, want 10800", b.TimeToEmpty)
	}
	if b.CycleCount == nil || *b.CycleCount != 88 {
		t.Fatalf("CycleCount = %v, want 88", b.CycleCount)
	}
}

func TestWMI_States(t *testing.T) {
	tests := []struct {
		name   string
		status batteryStatus
		want   battery.State
	}{
		{"charging", batteryStatus{Charging: true, PowerOnline: true, RemainingCapacity: 100}, battery.StateCharging},
		{"discharging", batteryStatus{Discharging: true, RemainingCapacity: 100}, battery.StateDischarging},
		{"empty", batteryStatus{Discharging: true, Critical: true}, battery.StateEmpty},
		{"full", batteryStatus{PowerOnline: true, RemainingCapacity: 54000}, battery.StateFull},
		{"idle", batteryStatus{PowerOnline: true, RemainingCapacity: 30000}, battery.StateUnknown},
		{"unknown capacity on mains", batteryStatus{PowerOnline: true, RemainingCapacity: wmiUnknownCapacity}, battery.StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := wmiLaptop()
			tt.status.InstanceName = wmiInstance
			q.status = []batteryStatus{tt.status}
			d := &wmiDevice{id: wmiInstance, q: q}
			r, err := d.Read(battery.FieldState)
			if err != nil {
				t.Fatalf("Read(state) error = %v", err)
			}
			if got := battery.ParseState(string(r.Text)); got != tt.want {
				t.Fatalf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWMI_UnknownValues(t *testing.T) {
	q := wmiLaptop()
	q.status = []batteryStatus{{
		InstanceName:      wmiInstance,
		Voltage:           wmiUnknownVoltage,
		RemainingCapacity: wmiUnknownCapacity,
		DischargeRate:     wmiUnknownRate,
		Discharging:       true,
	}}
	q.full = []batteryFullChargedCapacity{{InstanceName: wmiInstance, FullChargedCapacity: wmiUnknownCapacity}}

	b, err := battery.Normalize(&wmiDevice{id: wmiInstance, q: q})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for _, m := range []battery.Metric{
		battery.MetricVoltage,
		battery.MetricEnergy,
		battery.MetricEnergyFull,
		battery.MetricEnergyRate,
		battery.MetricTimeToEmpty,
		battery.MetricStateOfCharge,
		battery.MetricStateOfHealth,
	} {
		if v, ok := b.Metric(m); ok {
			t.Fatalf("%s = %v, want absent", m, v)
		}
	}
	if b.EnergyFullDesign == nil || math.Abs(*b.EnergyFullDesign-216000) > 1e-6 {
		t.Fatalf("EnergyFullDesign = %v, want 216000", b.EnergyFullDesign)
	}
	if b.State != battery.StateDischarging {
		t.Fatalf("State = %v, want discharging", b.State)
	}
}

func TestWMI_ChargingUnknownRate(t *testing.T) {
	q := wmiLaptop()
	q.status = []batteryStatus{{
		InstanceName:      wmiInstance,
		Voltage:           12000,
		RemainingCapacity: 27000,
		ChargeRate:        wmiUnknownRate,
		DischargeRate:     9000,
		Charging:          true,
		PowerOnline:       true,
	}}
	d := &wmiDevice{id: wmiInstance, q: q}

	r, err := d.Read(battery.FieldEnergyRate)
	if err != nil || !r.IsAbsent() {
		t.Fatalf("Read(energy_rate) = %+v, %v, want absent", r, err)
	}
}

func TestWMI_MissingOptionalClasses(t *testing.T) {
	q := wmiLaptop()
	q.full = nil
	q.cycles = nil
	d := &wmiDevice{id: wmiInstance, q: q}

	for _, f := range []battery.Field{battery.FieldEnergyFull, battery.FieldCycleCount} {
		r, err := d.Read(f)
		if err != nil || !r.IsAbsent() {
			t.Fatalf("Read(%s) = %+v, %v, want absent", f, r, err)
		}
	}
}

func TestWMI_QueryFailure(t *testing.T) {
	boom := errors.New("access denied")
	w := newWMI(&fakeWMI{err: boom})
	if _, err := w.Devices(); !errors.Is(err, boom) {
		t.Fatalf("Devices() error = %v, want %v", err, boom)
	}

	d := &wmiDevice{id: wmiInstance, q: &fakeWMI{err: boom}}
	var re *ReadError
	if _, err := d.Read(battery.FieldEnergy); !errors.As(err, &re) {
		t.Fatalf("Read() error = %v, want *ReadError", err)
	}
}

func TestDecodeChemistry(t *testing.T) {
	tests := []struct {
		code string
		want battery.Technology
	}{
		{"LION", battery.TechnologyLithiumIon},
		{"Li-I", battery.TechnologyLithiumIon},
		{"PbAc", battery.TechnologyLeadAcid},
		{"NiMH", battery.TechnologyNickelMetalHydride},
		{"RAM", battery.TechnologyRechargeableAlkalineManganese},
		{"????", battery.TechnologyUnknown},
	}
	for _, tt := range tests {
		if got := decodeChemistry(chemistry(tt.code)); got != tt.want {
			t.Fatalf("decodeChemistry(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
