package battery

import (
	"fmt"
	"strings"
)

// State is the charge state of a battery. The numeric values are part of the
// C ABI and must not change.
type State uint8

const (
	StateUnknown State = iota
	StateCharging
	StateDischarging
	StateEmpty
	StateFull
)

var stateNames = [...]string{
	StateUnknown:     "unknown",
	StateCharging:    "charging",
	StateDischarging: "discharging",
	StateEmpty:       "empty",
	StateFull:        "full",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return stateNames[StateUnknown]
}

// ParseState maps the state vocabularies of sysfs, UPower and ACPI onto a State.
// Anything unrecognized is StateUnknown.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "charging":
		return StateCharging
	case "discharging", "pending-discharge":
		return StateDischarging
	case "empty":
		return StateEmpty
	case "full", "fully-charged":
		return StateFull
	}
	return StateUnknown
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v := ParseState(string(b))
	if v == StateUnknown && !strings.EqualFold(strings.TrimSpace(string(b)), "unknown") {
		return fmt.Errorf("unknown battery state %q", b)
	}
	*s = v
	return nil
}
