package maintenance

import (
	"regexp"
	"strings"
)

var (
	oilTypeFinal   = regexp.MustCompile(`^[0-9]{1,2}W-[0-9]{2}$`)
	oilTypePartial = regexp.MustCompile(`^[0-9]{0,2}(W)?(-)?[0-9]{0,2}$`)
)

const OilTypeFormatHint = "Format must be like 5W-30"

var OilBrands = []string{
	"Liqui Moly",
	"Castrol",
	"Mobil 1",
	"Shell",
	"TotalEnergies",
	"Motul",
	"Valvoline",
	"Ravenol",
	"Elf",
	"Fuchs",
	"Petronas",
	"ENEOS",
	"Wolf",
	"Other",
}

// IsOilType reports whether s is a complete viscosity grade such as "5W-30".
func IsOilType(s string) bool {
	return oilTypeFinal.MatchString(s)
}

// IsOilTypePrefix reports whether s could still grow into a valid grade.
func IsOilTypePrefix(s string) bool {
	return oilTypePartial.MatchString(strings.ToUpper(s))
}

func IsOilBrand(s string) bool {
	for _, b := range OilBrands {
		if b == s {
			return true
		}
	}
	return false
}
