package battery

import (
	"errors"
	"testing"
)

func TestChargeEnergyRoundTrip(t *testing.T) {
	tests := []struct {
		value float64
		unit  Unit
		volts float64
	}{
		{4400, UnitMilliampHour, 11.1},
		{3424000, UnitMicroampHour, 11.4},
		{2.2, UnitAmpHour, 7.4},
		{1, UnitMilliampHour, 3.85},
	}
	for _, tt := range tests {
		t.Run(tt.unit.String(), func(t *testing.T) {
			joules, err := ChargeToEnergy(tt.value, tt.unit, tt.volts)
			if err != nil {
				t.Fatalf("ChargeToEnergy() error = %v", err)
			}
			back, err := EnergyToCharge(joules, tt.unit, tt.volts)
			if err != nil {
				t.Fatalf("EnergyToCharge() error = %v", err)
			}
			if !approx(back, tt.value, tt.value*1e-12) {
				t.Fatalf("round trip = %v, want %v", back, tt.value)
			}
		})
	}
}

func TestChargeToEnergy_NeedsVoltage(t *testing.T) {
	if _, err := ChargeToEnergy(4400, UnitMilliampHour, 0); !errors.Is(err, ErrNoVoltage) {
		t.Fatalf("ChargeToEnergy() error = %v, want ErrNoVoltage", err)
	}
	if _, err := ChargeToEnergy(1, UnitWattHour, 12); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("ChargeToEnergy(Wh) error = %v, want ErrUnitMismatch", err)
	}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		conv func(Reading) (float64, error)
		in   Reading
		want float64
	}{
		{"Wh to J", func(r Reading) (float64, error) { return ToJoules(r, 0) }, Number(1, UnitWattHour), 3600},
		{"mWh to J", func(r Reading) (float64, error) { return ToJoules(r, 0) }, Number(1000, UnitMilliwattHour), 3600},
		{"mAh to J", func(r Reading) (float64, error) { return ToJoules(r, 10) }, Number(1000, UnitMilliampHour), 36000},
		{"mW to W", func(r Reading) (float64, error) { return ToWatts(r, 0) }, Number(2500, UnitMilliwatt), 2.5},
		{"mA to W", func(r Reading) (float64, error) { return ToWatts(r, 12) }, Number(500, UnitMilliamp), 6},
		{"mV to V", ToVolts, Number(11100, UnitMillivolt), 11.1},
		{"dC to K", ToKelvin, Number(258, UnitDeciCelsius), 298.95},
		{"dK to K", ToKelvin, Number(2982, UnitDeciKelvin), 298.2},
		{"C to K", ToKelvin, Number(30, UnitCelsius), 303.15},
		{"ratio to percent", ToPercent, Number(0.5, UnitRatio), 50},
		{"minutes to seconds", ToSeconds, Number(90, UnitMinute), 5400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.conv(tt.in)
			if err != nil {
				t.Fatalf("conversion error = %v", err)
			}
			if !approx(got, tt.want, 1e-9) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToCount(t *testing.T) {
	if n, err := ToCount(Number(42, UnitCount)); err != nil || n != 42 {
		t.Fatalf("ToCount(42) = %d, %v, want 42, nil", n, err)
	}
	if _, err := ToCount(Number(-1, UnitCount)); err == nil {
		t.Fatal("ToCount(-1) error = nil, want out of range")
	}
	if _, err := ToCount(Number(1, UnitVolt)); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("ToCount(V) error = %v, want ErrUnitMismatch", err)
	}
}
