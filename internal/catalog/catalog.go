// Package catalog holds the static vehicle selection tables used when a
// vehicle is registered or edited.
package catalog

import "sort"

var (
	EngineTypes   = []string{"Petrol", "Diesel", "Hybrid", "Electric"}
	Transmissions = []string{"Manual", "Automatic"}
	Drivetrains   = []string{"FWD", "RWD", "AWD"}
)

var makeModels = map[string][]string{
	"Audi":       {"A1", "A3", "A4", "A5", "A6", "Q3", "Q5", "Q7"},
	"BMW":        {"1 Series", "3 Series", "5 Series", "X1", "X3", "X5"},
	"Mercedes":   {"A-Class", "C-Class", "E-Class", "GLA", "GLC", "Sprinter"},
	"Volkswagen": {"Polo", "Golf", "Passat", "Tiguan", "Touran", "Transporter"},
	"Nissan":     {"Micra", "Juke", "Qashqai", "X-Trail", "Leaf"},
	"Toyota":     {"Yaris", "Corolla", "Camry", "RAV4", "Hilux"},
	"Ford":       {"Fiesta", "Focus", "Mondeo", "Kuga", "Transit"},
	"Renault":    {"Clio", "Megane", "Captur", "Kangoo"},
	"Peugeot":    {"208", "308", "2008", "3008", "Partner"},
	"Skoda":      {"Fabia", "Octavia", "Superb", "Kodiaq"},
}

var brandLogos = map[string]string{
	"Audi":       "/assets/brands/audi.png",
	"BMW":        "/assets/brands/bmw.png",
	"Mercedes":   "/assets/brands/mercedes.png",
	"Volkswagen": "/assets/brands/volkswagen.png",
	"Nissan":     "/assets/brands/nissan.png",
}

// Catalog is the serializable view of the tables.
type Catalog struct {
	Makes         map[string][]string `json:"makes"`
	EngineTypes   []string            `json:"engineTypes"`
	Transmissions []string            `json:"transmissions"`
	Drivetrains   []string            `json:"drivetrains"`
	Logos         map[string]string   `json:"logos"`
}

func Get() Catalog {
	makes := make(map[string][]string, len(makeModels))
	for k, v := range makeModels {
		makes[k] = append([]string(nil), v...)
	}
	logos := make(map[string]string, len(brandLogos))
	for k, v := range brandLogos {
		logos[k] = v
	}
	return Catalog{
		Makes:         makes,
		EngineTypes:   append([]string(nil), EngineTypes...),
		Transmissions: append([]string(nil), Transmissions...),
		Drivetrains:   append([]string(nil), Drivetrains...),
		Logos:         logos,
	}
}

// Makes returns the known makes in alphabetical order.
func Makes() []string {
	makes := make([]string, 0, len(makeModels))
	for k := range makeModels {
		makes = append(makes, k)
	}
	sort.Strings(makes)
	return makes
}

func ModelsFor(vehicleMake string) []string {
	return append([]string(nil), makeModels[vehicleMake]...)
}

func IsKnownMake(vehicleMake string) bool {
	_, ok := makeModels[vehicleMake]
	return ok
}

// IsKnownModel reports whether model is listed under make.
func IsKnownModel(vehicleMake, model string) bool {
	for _, m := range makeModels[vehicleMake] {
		if m == model {
			return true
		}
	}
	return false
}

// LogoFor returns the logo asset path for a make, or "" when there is none.
func LogoFor(vehicleMake string) string {
	return brandLogos[vehicleMake]
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func IsEngineType(v string) bool { return contains(EngineTypes, v) }
func IsTransmission(v string) bool { return contains(Transmissions, v) }
func IsDrivetrain(v string) bool { return contains(Drivetrains, v) }
