package models

import (
	"math"
	"time"
)

// Source labels where a result came from.
type Source string

const (
	SourceRemote    Source = "remote"    // analytics backend
	SourceSynthetic Source = "synthetic" // demo mode
	SourceFallback  Source = "fallback"  // backend failed, synthetic substitute
)

// Reliability is the trust tier shown next to a value.
type Reliability string

const (
	ReliabilityVerified  Reliability = "verified"
	ReliabilitySimulated Reliability = "simulated"
	ReliabilityDegraded  Reliability = "degraded"
)

// ReliabilityFor maps a source to its reliability tier.
func ReliabilityFor(s Source) Reliability {
	switch s {
	case SourceRemote:
		return ReliabilityVerified
	case SourceSynthetic:
		return ReliabilitySimulated
	default:
		return ReliabilityDegraded
	}
}

// IsSynthetic reports whether the source is generated rather than measured.
func (s Source) IsSynthetic() bool {
	return s == SourceSynthetic || s == SourceFallback
}

// DataPoint is a single refreshed observation for a topic.
type DataPoint struct {
	Timestamp     time.Time   `json:"timestamp"`
	Value         float64     `json:"value"`
	Change        float64     `json:"change"`
	ChangePercent float64     `json:"changePercent"`
	Source        Source      `json:"source"`
	Reliability   Reliability `json:"reliability"`
}

// ChangeFrom returns the absolute and percentage change of value relative to
// prev. Both are zero without a previous point; the percentage is zero when
// prev.Value is zero.
func ChangeFrom(prev *DataPoint, value float64) (change, percent float64) {
	if prev == nil {
		return 0, 0
	}
	change = value - prev.Value
	if prev.Value != 0 {
		percent = change / math.Abs(prev.Value) * 100
	}
	return change, percent
}
