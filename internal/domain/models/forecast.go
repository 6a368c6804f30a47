package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// StableBand is the relative first-to-last change below which a series is stable.
const StableBand = 0.01

type ForecastPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Value          float64   `json:"value"`
	ConfidenceLow  *float64  `json:"confidenceLow,omitempty"`
	ConfidenceHigh *float64  `json:"confidenceHigh,omitempty"`
}

type ForecastSummary struct {
	TrendDirection TrendDirection `json:"trendDirection"`
	Narrative      string         `json:"narrative"`
	Recommendation string         `json:"recommendation"`
	AccuracyScore  float64        `json:"accuracyScore"`
}

// ForecastSeries is the result of a forecast request.
type ForecastSeries struct {
	Indicator   Indicator       `json:"indicator"`
	Region      string          `json:"region"`
	TimeRange   TimeRange       `json:"timeRange"`
	Points      []ForecastPoint `json:"points"`
	Summary     ForecastSummary `json:"summary"`
	Source      Source          `json:"source"`
	Reliability Reliability     `json:"reliability"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// Bound returns a pointer to v for optional confidence bounds.
func Bound(v float64) *float64 { return &v }

// DeriveTrend classifies a series by comparing its first and last values.
func DeriveTrend(points []ForecastPoint) TrendDirection {
	if len(points) < 2 {
		return TrendStable
	}
	first, last := points[0].Value, points[len(points)-1].Value
	denom := math.Abs(first)
	if denom < 1e-9 {
		denom = 1
	}
	rel := (last - first) / denom
	switch {
	case rel >= StableBand:
		return TrendIncreasing
	case rel <= -StableBand:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

var ErrEmptySeries = errors.New("forecast has no points")

// Validate checks the structural invariants of the series: strictly
// ascending timestamps, finite values, bounds straddling the value when
// present and an accuracy score within [0,1].
func (f *ForecastSeries) Validate() error {
	if len(f.Points) == 0 {
		return ErrEmptySeries
	}
	for i, p := range f.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("point %d: value is not finite", i)
		}
		if i > 0 && !p.Timestamp.After(f.Points[i-1].Timestamp) {
			return fmt.Errorf("point %d: timestamp %s not after %s", i, p.Timestamp, f.Points[i-1].Timestamp)
		}
		if p.ConfidenceLow != nil && *p.ConfidenceLow > p.Value {
			return fmt.Errorf("point %d: confidenceLow %.4f above value %.4f", i, *p.ConfidenceLow, p.Value)
		}
		if p.ConfidenceHigh != nil && *p.ConfidenceHigh < p.Value {
			return fmt.Errorf("point %d: confidenceHigh %.4f below value %.4f", i, *p.ConfidenceHigh, p.Value)
		}
	}
	if s := f.Summary.AccuracyScore; math.IsNaN(s) || s < 0 || s > 1 {
		return fmt.Errorf("accuracyScore %.4f outside [0,1]", s)
	}
	return nil
}
