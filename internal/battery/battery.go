package battery

import "math"

// Battery is the normalized record for one power source.
// A nil field means the value is not available on this device.
//
// Units: energy in joules, rates in watts, voltage in volts,
// times in seconds, temperature in kelvin, charge and health in percent.
type Battery struct {
	ID               string     `json:"id"`
	Vendor           *string    `json:"vendor,omitempty"`
	Model            *string    `json:"model,omitempty"`
	SerialNumber     *string    `json:"serial_number,omitempty"`
	State            State      `json:"state"`
	Technology       Technology `json:"technology"`
	Energy           *float64   `json:"energy,omitempty"`
	EnergyFull       *float64   `json:"energy_full,omitempty"`
	EnergyFullDesign *float64   `json:"energy_full_design,omitempty"`
	EnergyRate       *float64   `json:"energy_rate,omitempty"`
	Voltage          *float64   `json:"voltage,omitempty"`
	TimeToFull       *float64   `json:"time_to_full,omitempty"`
	TimeToEmpty      *float64   `json:"time_to_empty,omitempty"`
	StateOfCharge    *float64   `json:"state_of_charge,omitempty"`
	StateOfHealth    *float64   `json:"state_of_health,omitempty"`
	Temperature      *float64   `json:"temperature,omitempty"`
	CycleCount       *uint32    `json:"cycle_count,omitempty"`
}

// Metric identifies one of the floating point quantities of a Battery.
type Metric uint8

const (
	MetricEnergy Metric = iota
	MetricEnergyFull
	MetricEnergyFullDesign
	MetricEnergyRate
	MetricVoltage
	MetricTimeToFull
	MetricTimeToEmpty
	MetricStateOfCharge
	MetricTemperature
	MetricStateOfHealth
)

var metricNames = [...]string{
	MetricEnergy:           "energy",
	MetricEnergyFull:       "energy_full",
	MetricEnergyFullDesign: "energy_full_design",
	MetricEnergyRate:       "energy_rate",
	MetricVoltage:          "voltage",
	MetricTimeToFull:       "time_to_full",
	MetricTimeToEmpty:      "time_to_empty",
	MetricStateOfCharge:    "state_of_charge",
	MetricTemperature:      "temperature",
	MetricStateOfHealth:    "state_of_health",
}

// Metrics lists every Metric in accessor order.
func Metrics() []Metric {
	out := make([]Metric, len(metricNames))
	for i := range metricNames {
		out[i] = Metric(i)
	}
	return out
}

func (m Metric) String() string {
	if int(m) < len(metricNames) {
		return metricNames[m]
	}
	return "unknown"
}

func (b *Battery) metricPtr(m Metric) **float64 {
	switch m {
	case MetricEnergy:
		return &b.Energy
	case MetricEnergyFull:
		return &b.EnergyFull
	case MetricEnergyFullDesign:
		return &b.EnergyFullDesign
	case MetricEnergyRate:
		return &b.EnergyRate
	case MetricVoltage:
		return &b.Voltage
	case MetricTimeToFull:
		return &b.TimeToFull
	case MetricTimeToEmpty:
		return &b.TimeToEmpty
	case MetricStateOfCharge:
		return &b.StateOfCharge
	case MetricTemperature:
		return &b.Temperature
	case MetricStateOfHealth:
		return &b.StateOfHealth
	}
	return nil
}

// Metric returns the value of m and whether it is present.
func (b *Battery) Metric(m Metric) (float64, bool) {
	p := b.metricPtr(m)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Equal reports whether two records carry the same values.
func (b Battery) Equal(o Battery) bool {
	if b.ID != o.ID || b.State != o.State || b.Technology != o.Technology {
		return false
	}
	if !equalString(b.Vendor, o.Vendor) || !equalString(b.Model, o.Model) || !equalString(b.SerialNumber, o.SerialNumber) {
		return false
	}
	for _, m := range Metrics() {
		x, xok := b.Metric(m)
		y, yok := o.Metric(m)
		if xok != yok || (xok && math.Float64bits(x) != math.Float64bits(y)) {
			return false
		}
	}
	if (b.CycleCount == nil) != (o.CycleCount == nil) {
		return false
	}
	return b.CycleCount == nil || *b.CycleCount == *o.CycleCount
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ptr[T any](v T) *T {
	return &v
}
