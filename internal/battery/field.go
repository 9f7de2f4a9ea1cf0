package battery

// Field identifies one raw attribute a backend can be asked for.
type Field uint8

const (
	FieldVendor Field = iota
	FieldModel
	FieldSerialNumber
	FieldState
	FieldTechnology
	FieldEnergy
	FieldEnergyFull
	FieldEnergyFullDesign
	FieldEnergyRate
	FieldVoltage
	FieldDesignVoltage
	FieldTimeToFull
	FieldTimeToEmpty
	FieldStateOfCharge
	FieldStateOfHealth
	FieldTemperature
	FieldCycleCount
)

var fieldNames = [...]string{
	FieldVendor:           "vendor",
	FieldModel:            "model",
	FieldSerialNumber:     "serial_number",
	FieldState:            "state",
	FieldTechnology:       "technology",
	FieldEnergy:           "energy",
	FieldEnergyFull:       "energy_full",
	FieldEnergyFullDesign: "energy_full_design",
	FieldEnergyRate:       "energy_rate",
	FieldVoltage:          "voltage",
	FieldDesignVoltage:    "design_voltage",
	FieldTimeToFull:       "time_to_full",
	FieldTimeToEmpty:      "time_to_empty",
	FieldStateOfCharge:    "state_of_charge",
	FieldStateOfHealth:    "state_of_health",
	FieldTemperature:      "temperature",
	FieldCycleCount:       "cycle_count",
}

// Fields lists every Field.
func Fields() []Field {
	out := make([]Field, len(fieldNames))
	for i := range fieldNames {
		out[i] = Field(i)
	}
	return out
}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "unknown"
}

// Kind tells which part of a Reading is populated.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNumber
	KindText
)

// Encoding names the byte encoding of a text Reading.
type Encoding uint8

const (
	// EncodingUnknown is decoded as UTF-8 when valid and as Windows-1252 otherwise.
	EncodingUnknown Encoding = iota
	EncodingUTF8
	EncodingUTF16LE
	EncodingLatin1
)

// Reading is one raw value as a backend reported it.
type Reading struct {
	Kind     Kind
	Value    float64
	Unit     Unit
	Text     []byte
	Encoding Encoding
}

// Absent is the zero Reading.
func Absent() Reading {
	return Reading{}
}

// Number returns a numeric reading in unit u.
func Number(v float64, u Unit) Reading {
	return Reading{Kind: KindNumber, Value: v, Unit: u}
}

// Text returns a text reading of a Go string.
func Text(s string) Reading {
	return Reading{Kind: KindText, Text: []byte(s), Encoding: EncodingUTF8}
}

// RawText returns a text reading of bytes in the given encoding.
func RawText(b []byte, enc Encoding) Reading {
	return Reading{Kind: KindText, Text: b, Encoding: enc}
}

func (r Reading) IsAbsent() bool {
	return r.Kind == KindAbsent
}

// Source is anything Normalize can read raw fields from.
// A non-nil error marks the field unreadable; other fields are still read.
type Source interface {
	Read(f Field) (Reading, error)
}
