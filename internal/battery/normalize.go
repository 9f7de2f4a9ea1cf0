package battery

import (
	"errors"
	"fmt"
	"math"
)

const (
	maxTimeToFull  = 10 * 3600       // seconds
	maxTimeToEmpty = 10 * 24 * 3600  // seconds
	minTemperature = 273.15 - 100    // kelvin
	maxTemperature = 273.15 + 200    // kelvin
	maxHealth      = 200.0           // percent
	acpiOnesRate   = float64(0xffff) // watts, ACPI "unknown rate"
)

// FieldError records a field that could not be read or converted.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

type identified interface {
	ID() string
}

// snapshot reads every field of a source exactly once.
type snapshot struct {
	readings [len(fieldNames)]Reading
	errs     []error
}

func takeSnapshot(src Source) *snapshot {
	s := &snapshot{}
	for _, f := range Fields() {
		r, err := src.Read(f)
		if err != nil {
			s.errs = append(s.errs, &FieldError{Field: f, Err: err})
			continue
		}
		s.readings[f] = r
	}
	return s
}

func (s *snapshot) fail(f Field, err error) {
	s.errs = append(s.errs, &FieldError{Field: f, Err: err})
}

func (s *snapshot) text(f Field) *string {
	r := s.readings[f]
	switch r.Kind {
	case KindAbsent:
		return nil
	case KindText:
		if v, ok := DecodeText(r.Text, r.Encoding); ok {
			return &v
		}
		return nil
	}
	s.fail(f, fmt.Errorf("%w: want text", ErrUnitMismatch))
	return nil
}

func (s *snapshot) label(f Field) (string, bool) {
	r := s.readings[f]
	if r.Kind != KindText {
		return "", false
	}
	return DecodeText(r.Text, r.Encoding)
}

// code reads a numeric enum code no larger than max.
func (s *snapshot) code(f Field, max float64) (uint8, bool) {
	r := s.readings[f]
	if r.Kind != KindNumber || !(r.Value >= 0 && r.Value <= max) {
		return 0, false
	}
	return uint8(r.Value), true
}

// number converts a numeric field, recording conversion failures.
// ErrNoVoltage is not a failure: the value is simply not derivable.
func (s *snapshot) number(f Field, conv func(Reading) (float64, error)) *float64 {
	r := s.readings[f]
	if r.Kind == KindAbsent {
		return nil
	}
	v, err := conv(r)
	if err != nil {
		if !errors.Is(err, ErrNoVoltage) {
			s.fail(f, err)
		}
		return nil
	}
	return &v
}

func (s *snapshot) volts(f Field) *float64 {
	v := s.number(f, ToVolts)
	if v == nil || !(*v > 0) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Normalize builds a Battery from the raw readings of src. Every field is
// read once, at call time. Fields that fail to read are left absent and
// reported together in the returned error; the Battery is usable either way.
func Normalize(src Source) (Battery, error) {
	s := takeSnapshot(src)

	var b Battery
	if id, ok := src.(identified); ok {
		b.ID = id.ID()
	}
	b.Vendor = s.text(FieldVendor)
	b.Model = s.text(FieldModel)
	b.SerialNumber = s.text(FieldSerialNumber)
	if v, ok := s.label(FieldState); ok {
		b.State = ParseState(v)
	} else if code, ok := s.code(FieldState, float64(StateFull)); ok {
		b.State = State(code)
	}
	if v, ok := s.label(FieldTechnology); ok {
		b.Technology = ParseTechnology(v)
	} else if code, ok := s.code(FieldTechnology, float64(TechnologyRechargeableAlkalineManganese)); ok {
		b.Technology = Technology(code)
	}

	b.Voltage = s.volts(FieldVoltage)
	design := s.volts(FieldDesignVoltage)

	// Charge is converted at the design voltage, current at the present one.
	chargeVolts := firstOf(design, b.Voltage)
	currentVolts := firstOf(b.Voltage, design)
	toJoules := func(r Reading) (float64, error) { return ToJoules(r, chargeVolts) }
	toWatts := func(r Reading) (float64, error) { return ToWatts(r, currentVolts) }

	b.Energy = s.number(FieldEnergy, toJoules)
	b.EnergyFull = s.number(FieldEnergyFull, toJoules)
	b.EnergyFullDesign = s.number(FieldEnergyFullDesign, toJoules)
	b.EnergyRate = s.number(FieldEnergyRate, toWatts)
	b.TimeToFull = s.number(FieldTimeToFull, ToSeconds)
	b.TimeToEmpty = s.number(FieldTimeToEmpty, ToSeconds)
	b.StateOfCharge = s.number(FieldStateOfCharge, ToPercent)
	b.StateOfHealth = s.number(FieldStateOfHealth, ToPercent)
	b.Temperature = s.number(FieldTemperature, ToKelvin)
	if r := s.readings[FieldCycleCount]; r.Kind != KindAbsent {
		n, err := ToCount(r)
		if err != nil {
			s.fail(FieldCycleCount, err)
		} else {
			b.CycleCount = &n
		}
	}

	b = Sanitize(b)
	derive(&b)
	return Sanitize(b), errors.Join(s.errs...)
}

func firstOf(vs ...*float64) float64 {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

// derive fills computed fields from the ones that were read.
func derive(b *Battery) {
	if b.Energy == nil && b.StateOfCharge != nil && b.EnergyFull != nil {
		b.Energy = ptr(*b.StateOfCharge / 100 * *b.EnergyFull)
	}
	if b.Energy != nil && b.EnergyFull != nil && *b.EnergyFull > 0 {
		b.StateOfCharge = ptr(100 * *b.Energy / *b.EnergyFull)
	}
	if b.EnergyFull != nil && b.EnergyFullDesign != nil && *b.EnergyFullDesign > 0 {
		b.StateOfHealth = ptr(100 * *b.EnergyFull / *b.EnergyFullDesign)
	}
	if b.EnergyRate == nil || *b.EnergyRate <= 0 {
		return
	}
	rate := *b.EnergyRate
	if b.TimeToFull == nil && b.State == StateCharging && b.Energy != nil && b.EnergyFull != nil {
		b.TimeToFull = ptr((*b.EnergyFull - *b.Energy) / rate)
	}
	if b.TimeToEmpty == nil && b.State == StateDischarging && b.Energy != nil {
		b.TimeToEmpty = ptr(*b.Energy / rate)
	}
}

// Sanitize drops or clamps values that are not physically meaningful.
// It is idempotent.
func Sanitize(b Battery) Battery {
	if b.State > StateFull {
		b.State = StateUnknown
	}
	if b.Technology > TechnologyRechargeableAlkalineManganese {
		b.Technology = TechnologyUnknown
	}
	b.Energy = nonNegative(b.Energy)
	b.EnergyFull = nonNegative(b.EnergyFull)
	b.EnergyFullDesign = nonNegative(b.EnergyFullDesign)
	b.Voltage = nonNegative(b.Voltage)

	if r := finite(b.EnergyRate); r != nil {
		// Sign encodes direction on some drivers.
		v := math.Abs(*r)
		if math.Abs(v-acpiOnesRate) < 1e-6 {
			b.EnergyRate = nil
		} else {
			b.EnergyRate = &v
		}
	} else {
		b.EnergyRate = nil
	}

	b.TimeToFull = within(b.TimeToFull, 0, maxTimeToFull, false)
	b.TimeToEmpty = within(b.TimeToEmpty, 0, maxTimeToEmpty, false)
	b.Temperature = within(b.Temperature, minTemperature, maxTemperature, true)
	b.StateOfHealth = within(b.StateOfHealth, 0, maxHealth, true)

	if c := finite(b.StateOfCharge); c != nil {
		b.StateOfCharge = ptr(math.Min(100, math.Max(0, *c)))
	} else {
		b.StateOfCharge = nil
	}

	if b.CycleCount != nil && *b.CycleCount == 0 {
		b.CycleCount = nil
	}
	return b
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func nonNegative(v *float64) *float64 {
	if v = finite(v); v == nil || *v < 0 {
		return nil
	}
	return v
}

// within keeps v when it lies in the range. The lower bound is exclusive
// unless inclusive is set.
func within(v *float64, lo, hi float64, inclusive bool) *float64 {
	if v = finite(v); v == nil || *v > hi {
		return nil
	}
	if *v < lo || (!inclusive && *v == lo) {
		return nil
	}
	return v
}

// Source exposes a normalized record as readings in canonical units, so that
// Normalize(b.Source()) reproduces b.
func (b Battery) Source() Source {
	return canonical{b}
}

type canonical struct {
	b Battery
}

func (c canonical) ID() string {
	return c.b.ID
}

func (c canonical) Read(f Field) (Reading, error) {
	b := c.b
	str := func(s *string) Reading {
		if s == nil {
			return Absent()
		}
		return Text(*s)
	}
	num := func(v *float64, u Unit) Reading {
		if v == nil {
			return Absent()
		}
		return Number(*v, u)
	}
	switch f {
	case FieldVendor:
		return str(b.Vendor), nil
	case FieldModel:
		return str(b.Model), nil
	case FieldSerialNumber:
		return str(b.SerialNumber), nil
	case FieldState:
		return Text(b.State.String()), nil
	case FieldTechnology:
		return Text(b.Technology.String()), nil
	case FieldEnergy:
		return num(b.Energy, UnitJoule), nil
	case FieldEnergyFull:
		return num(b.EnergyFull, UnitJoule), nil
	case FieldEnergyFullDesign:
		return num(b.EnergyFullDesign, UnitJoule), nil
	case FieldEnergyRate:
		return num(b.EnergyRate, UnitWatt), nil
	case FieldVoltage:
		return num(b.Voltage, UnitVolt), nil
	case FieldTimeToFull:
		return num(b.TimeToFull, UnitSecond), nil
	case FieldTimeToEmpty:
		return num(b.TimeToEmpty, UnitSecond), nil
	case FieldStateOfCharge:
		return num(b.StateOfCharge, UnitPercent), nil
	case FieldStateOfHealth:
		return num(b.StateOfHealth, UnitPercent), nil
	case FieldTemperature:
		return num(b.Temperature, UnitKelvin), nil
	case FieldCycleCount:
		if b.CycleCount == nil {
			return Absent(), nil
		}
		return Number(float64(*b.CycleCount), UnitCount), nil
	}
	return Absent(), nil
}
