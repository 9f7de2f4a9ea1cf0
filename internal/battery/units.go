package battery

import (
	"errors"
	"fmt"
)

// Unit is the unit a numeric Reading is expressed in.
type Unit uint8

const (
	UnitNone Unit = iota
	UnitJoule
	UnitWattHour
	UnitMilliwattHour
	UnitMicrowattHour
	UnitAmpHour
	UnitMilliampHour
	UnitMicroampHour
	UnitWatt
	UnitMilliwatt
	UnitMicrowatt
	UnitAmp
	UnitMilliamp
	UnitMicroamp
	UnitVolt
	UnitMillivolt
	UnitMicrovolt
	UnitKelvin
	UnitDeciKelvin
	UnitCelsius
	UnitDeciCelsius
	UnitPercent
	UnitRatio
	UnitSecond
	UnitMinute
	UnitHour
	UnitCount
)

type dimension uint8

const (
	dimNone dimension = iota
	dimEnergy
	dimCharge
	dimPower
	dimCurrent
	dimVoltage
	dimTemperature
	dimRatio
	dimTime
	dimCount
)

type unitInfo struct {
	name  string
	dim   dimension
	scale float64 // to J, C, W, A, V, K, %, s
	shift float64 // added after scaling, temperature only
}

var units = [...]unitInfo{
	UnitNone:          {"", dimNone, 1, 0},
	UnitJoule:         {"J", dimEnergy, 1, 0},
	UnitWattHour:      {"Wh", dimEnergy, 3600, 0},
	UnitMilliwattHour: {"mWh", dimEnergy, 3.6, 0},
	UnitMicrowattHour: {"µWh", dimEnergy, 3.6e-3, 0},
	UnitAmpHour:       {"Ah", dimCharge, 3600, 0},
	UnitMilliampHour:  {"mAh", dimCharge, 3.6, 0},
	UnitMicroampHour:  {"µAh", dimCharge, 3.6e-3, 0},
	UnitWatt:          {"W", dimPower, 1, 0},
	UnitMilliwatt:     {"mW", dimPower, 1e-3, 0},
	UnitMicrowatt:     {"µW", dimPower, 1e-6, 0},
	UnitAmp:           {"A", dimCurrent, 1, 0},
	UnitMilliamp:      {"mA", dimCurrent, 1e-3, 0},
	UnitMicroamp:      {"µA", dimCurrent, 1e-6, 0},
	UnitVolt:          {"V", dimVoltage, 1, 0},
	UnitMillivolt:     {"mV", dimVoltage, 1e-3, 0},
	UnitMicrovolt:     {"µV", dimVoltage, 1e-6, 0},
	UnitKelvin:        {"K", dimTemperature, 1, 0},
	UnitDeciKelvin:    {"dK", dimTemperature, 0.1, 0},
	UnitCelsius:       {"°C", dimTemperature, 1, 273.15},
	UnitDeciCelsius:   {"d°C", dimTemperature, 0.1, 273.15},
	UnitPercent:       {"%", dimRatio, 1, 0},
	UnitRatio:         {"ratio", dimRatio, 100, 0},
	UnitSecond:        {"s", dimTime, 1, 0},
	UnitMinute:        {"min", dimTime, 60, 0},
	UnitHour:          {"h", dimTime, 3600, 0},
	UnitCount:         {"count", dimCount, 1, 0},
}

func (u Unit) String() string {
	if int(u) < len(units) {
		return units[u].name
	}
	return "?"
}

func (u Unit) info() unitInfo {
	if int(u) < len(units) {
		return units[u]
	}
	return units[UnitNone]
}

var (
	// ErrNoVoltage is returned when a charge or current reading cannot be
	// converted because no voltage is known.
	ErrNoVoltage = errors.New("voltage required for conversion")
	// ErrUnitMismatch is returned when a reading has the wrong dimension.
	ErrUnitMismatch = errors.New("unit mismatch")
)

func base(r Reading, want dimension) (float64, error) {
	if r.Kind != KindNumber {
		return 0, fmt.Errorf("%w: not a number", ErrUnitMismatch)
	}
	info := r.Unit.info()
	if info.dim != want {
		return 0, fmt.Errorf("%w: %s", ErrUnitMismatch, r.Unit)
	}
	return r.Value*info.scale + info.shift, nil
}

// ChargeToEnergy converts a charge value in unit u to joules at the given voltage.
func ChargeToEnergy(v float64, u Unit, volts float64) (float64, error) {
	coulombs, err := base(Number(v, u), dimCharge)
	if err != nil {
		return 0, err
	}
	if !(volts > 0) {
		return 0, ErrNoVoltage
	}
	return coulombs * volts, nil
}

// EnergyToCharge converts joules back to a charge value in unit u at the given voltage.
func EnergyToCharge(joules float64, u Unit, volts float64) (float64, error) {
	info := u.info()
	if info.dim != dimCharge {
		return 0, fmt.Errorf("%w: %s", ErrUnitMismatch, u)
	}
	if !(volts > 0) {
		return 0, ErrNoVoltage
	}
	return joules / volts / info.scale, nil
}

// ToJoules converts an energy or charge reading to joules.
// Charge readings need volts > 0.
func ToJoules(r Reading, volts float64) (float64, error) {
	if r.Kind == KindNumber && r.Unit.info().dim == dimCharge {
		return ChargeToEnergy(r.Value, r.Unit, volts)
	}
	return base(r, dimEnergy)
}

// ToWatts converts a power or current reading to watts.
// Current readings need volts > 0.
func ToWatts(r Reading, volts float64) (float64, error) {
	if r.Kind == KindNumber && r.Unit.info().dim == dimCurrent {
		amps, err := base(r, dimCurrent)
		if err != nil {
			return 0, err
		}
		if !(volts > 0) {
			return 0, ErrNoVoltage
		}
		return amps * volts, nil
	}
	return base(r, dimPower)
}

func ToVolts(r Reading) (float64, error) {
	return base(r, dimVoltage)
}

func ToKelvin(r Reading) (float64, error) {
	return base(r, dimTemperature)
}

func ToSeconds(r Reading) (float64, error) {
	return base(r, dimTime)
}

func ToPercent(r Reading) (float64, error) {
	return base(r, dimRatio)
}

// ToCount converts a count reading. Fractions are truncated.
func ToCount(r Reading) (uint32, error) {
	v, err := base(r, dimCount)
	if err != nil {
		return 0, err
	}
	if !(v >= 0) || v > float64(^uint32(0)) {
		return 0, fmt.Errorf("count %v out of range", v)
	}
	return uint32(v), nil
}
