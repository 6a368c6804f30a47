package models

import (
	"strings"
)

// Indicator identifies a climate or economic series shown on the dashboard.
type Indicator string

const (
	IndicatorCO2         Indicator = "co2"
	IndicatorTemperature Indicator = "temperature"
	IndicatorRenewables  Indicator = "renewables"
	IndicatorSeaLevel    Indicator = "sea_level"
	IndicatorGDP         Indicator = "gdp"
	IndicatorInflation   Indicator = "inflation"
)

// Indicators returns every supported indicator in display order.
func Indicators() []Indicator {
	return []Indicator{
		IndicatorCO2,
		IndicatorTemperature,
		IndicatorRenewables,
		IndicatorSeaLevel,
		IndicatorGDP,
		IndicatorInflation,
	}
}

// ParseIndicator converts raw input into an Indicator.
func ParseIndicator(s string) (Indicator, bool) {
	ind := Indicator(strings.ToLower(strings.TrimSpace(s)))
	if !ind.Valid() {
		return "", false
	}
	return ind, true
}

// Valid reports whether i is a member of the indicator set.
func (i Indicator) Valid() bool {
	_, ok := i.Spec()
	return ok
}

// IndicatorSpec bundles the presentation and synthetic-generation constants of an indicator.
type IndicatorSpec struct {
	Label    string          `json:"label"`
	Unit     string          `json:"unit"`
	Category string          `json:"category"` // "climate" | "economic"
	Profile  SyntheticProfile `json:"-"`
}

// SyntheticProfile parameterizes generated series for one indicator.
type SyntheticProfile struct {
	Base       float64 `yaml:"base" json:"base"`
	Volatility float64 `yaml:"volatility" json:"volatility"` // noise amplitude as a fraction of Base
	Trend      float64 `yaml:"trend" json:"trend"`           // multiplicative drift per tick
}

// Spec is the single mapping from indicator to its constants. Every
// indicator must have a case; the models tests iterate Indicators() to
// catch a missing one.
func (i Indicator) Spec() (IndicatorSpec, bool) {
	switch i {
	case IndicatorCO2:
		return IndicatorSpec{
			Label: "CO₂ Emissions", Unit: "Mt", Category: "climate",
			Profile: SyntheticProfile{Base: 420, Volatility: 0.012, Trend: 0.0015},
		}, true
	case IndicatorTemperature:
		return IndicatorSpec{
			Label: "Temperature Anomaly", Unit: "°C", Category: "climate",
			Profile: SyntheticProfile{Base: 1.2, Volatility: 0.04, Trend: 0.002},
		}, true
	case IndicatorRenewables:
		return IndicatorSpec{
			Label: "Renewable Energy Share", Unit: "%", Category: "climate",
			Profile: SyntheticProfile{Base: 32, Volatility: 0.015, Trend: 0.003},
		}, true
	case IndicatorSeaLevel:
		return IndicatorSpec{
			Label: "Sea Level Rise", Unit: "mm", Category: "climate",
			Profile: SyntheticProfile{Base: 101, Volatility: 0.008, Trend: 0.0025},
		}, true
	case IndicatorGDP:
		return IndicatorSpec{
			Label: "GDP Growth", Unit: "%", Category: "economic",
			Profile: SyntheticProfile{Base: 2.4, Volatility: 0.06, Trend: -0.001},
		}, true
	case IndicatorInflation:
		return IndicatorSpec{
			Label: "Inflation Rate", Unit: "%", Category: "economic",
			Profile: SyntheticProfile{Base: 3.1, Volatility: 0.05, Trend: -0.002},
		}, true
	default:
		return IndicatorSpec{}, false
	}
}

// Label returns the display name, or the raw id for unknown values.
func (i Indicator) Label() string {
	if s, ok := i.Spec(); ok {
		return s.Label
	}
	return string(i)
}

// Unit returns the measurement unit.
func (i Indicator) Unit() string {
	s, _ := i.Spec()
	return s.Unit
}

// Category is "climate" or "economic".
func (i Indicator) Category() string {
	s, _ := i.Spec()
	return s.Category
}

// Profile returns the built-in synthetic profile.
func (i Indicator) Profile() SyntheticProfile {
	s, _ := i.Spec()
	return s.Profile
}

// IndicatorNames returns the ids of all indicators, used in validation messages.
func IndicatorNames() []string {
	all := Indicators()
	names := make([]string, len(all))
	for i, ind := range all {
		names[i] = string(ind)
	}
	return names
}
