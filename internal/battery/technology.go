package battery

import (
	"fmt"
	"strings"
)

// Technology is the cell chemistry. The numeric values are part of the C ABI.
type Technology uint8

const (
	TechnologyUnknown Technology = iota
	TechnologyLithiumIon
	TechnologyLeadAcid
	TechnologyLithiumPolymer
	TechnologyNickelMetalHydride
	TechnologyNickelCadmium
	TechnologyNickelZinc
	TechnologyLithiumIronPhosphate
	TechnologyRechargeableAlkalineManganese
)

var technologyNames = [...]string{
	TechnologyUnknown:                       "unknown",
	TechnologyLithiumIon:                    "lithium-ion",
	TechnologyLeadAcid:                      "lead-acid",
	TechnologyLithiumPolymer:                "lithium-polymer",
	TechnologyNickelMetalHydride:            "nickel-metal-hydride",
	TechnologyNickelCadmium:                 "nickel-cadmium",
	TechnologyNickelZinc:                    "nickel-zinc",
	TechnologyLithiumIronPhosphate:          "lithium-iron-phosphate",
	TechnologyRechargeableAlkalineManganese: "rechargeable-alkaline-manganese",
}

// technologyAliases covers the short codes used by sysfs, ACPI _BIF and
// the Windows battery class driver.
var technologyAliases = map[string]Technology{
	"li-i":    TechnologyLithiumIon,
	"li-ion":  TechnologyLithiumIon,
	"lion":    TechnologyLithiumIon,
	"pb":      TechnologyLeadAcid,
	"pbac":    TechnologyLeadAcid,
	"lip":     TechnologyLithiumPolymer,
	"lipo":    TechnologyLithiumPolymer,
	"li-poly": TechnologyLithiumPolymer,
	"nimh":    TechnologyNickelMetalHydride,
	"nicd":    TechnologyNickelCadmium,
	"nizn":    TechnologyNickelZinc,
	"life":    TechnologyLithiumIronPhosphate,
	"lifepo4": TechnologyLithiumIronPhosphate,
	"ram":     TechnologyRechargeableAlkalineManganese,
}

func (t Technology) String() string {
	if int(t) < len(technologyNames) {
		return technologyNames[t]
	}
	return technologyNames[TechnologyUnknown]
}

// ParseTechnology accepts both the canonical names and the short codes,
// case-insensitively. Anything else is TechnologyUnknown.
func ParseTechnology(s string) Technology {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := technologyAliases[key]; ok {
		return t
	}
	for i, name := range technologyNames {
		if name == key {
			return Technology(i)
		}
	}
	return TechnologyUnknown
}

func (t Technology) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Technology) UnmarshalText(b []byte) error {
	v := ParseTechnology(string(b))
	if v == TechnologyUnknown && !strings.EqualFold(strings.TrimSpace(string(b)), "unknown") {
		return fmt.Errorf("unknown battery technology %q", b)
	}
	*t = v
	return nil
}
