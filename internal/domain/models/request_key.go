package models

import (
	"sort"
	"strings"
)

// OperationKind names a logical remote operation. It selects the cache TTL
// and the remote endpoint.
type OperationKind string

const (
	OpForecast   OperationKind = "forecast"
	OpNarrative  OperationKind = "narrative"
	OpTable      OperationKind = "table"
	OpSimilarity OperationKind = "similarity"
	OpLatest     OperationKind = "latest"
)

// TimeRange is the horizon of a forecast request.
type TimeRange string

const (
	Range6M  TimeRange = "6m"
	Range1Y  TimeRange = "1y"
	Range2Y  TimeRange = "2y"
	Range5Y  TimeRange = "5y"
	Range10Y TimeRange = "10y"
)

// TimeRanges returns the supported ranges, shortest first.
func TimeRanges() []TimeRange {
	return []TimeRange{Range6M, Range1Y, Range2Y, Range5Y, Range10Y}
}

// Months returns the number of monthly points in the range, 0 when unknown.
func (r TimeRange) Months() int {
	switch r {
	case Range6M:
		return 6
	case Range1Y:
		return 12
	case Range2Y:
		return 24
	case Range5Y:
		return 60
	case Range10Y:
		return 120
	default:
		return 0
	}
}

// Valid reports whether r is a supported range.
func (r TimeRange) Valid() bool { return r.Months() > 0 }

// Label returns a short human description of the range.
func (r TimeRange) Label() string {
	switch m := r.Months(); {
	case m == 0:
		return string(r)
	case m < 12:
		return strings.TrimSuffix(string(r), "m") + " months"
	case m == 12:
		return "1 year"
	default:
		return strings.TrimSuffix(string(r), "y") + " years"
	}
}

// TimeRangeNames returns the ids of all ranges.
func TimeRangeNames() []string {
	all := TimeRanges()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = string(r)
	}
	return names
}

// NormalizeRegion trims, lowercases and collapses inner whitespace so that
// "Germany", " germany " and "GERMANY" address the same data.
func NormalizeRegion(region string) string {
	return strings.ToLower(strings.Join(strings.Fields(region), " "))
}

// RequestKey identifies one logical request. Equal requests produce equal
// String() values regardless of how Params was populated.
type RequestKey struct {
	Kind      OperationKind
	Indicator Indicator
	Region    string
	TimeRange TimeRange
	Params    map[string]string
}

// String renders the key as "kind:indicator:region:range[:name=value...]"
// with params sorted by name.
func (k RequestKey) String() string {
	parts := []string{
		string(k.Kind),
		string(k.Indicator),
		NormalizeRegion(k.Region),
		string(k.TimeRange),
	}
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, name+"="+k.Params[name])
		}
	}
	return strings.Join(parts, ":")
}

// Topic returns the subscription topic for the key's indicator and region.
func (k RequestKey) Topic() TopicKey {
	return NewTopicKey(k.Indicator, k.Region)
}

// TopicKey identifies a subscription topic (indicator × region).
type TopicKey string

// NewTopicKey builds the topic key for an indicator and region.
func NewTopicKey(indicator Indicator, region string) TopicKey {
	return TopicKey(string(indicator) + ":" + NormalizeRegion(region))
}

func (t TopicKey) String() string { return string(t) }
