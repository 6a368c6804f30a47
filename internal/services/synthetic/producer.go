package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ClimaPulse/internal/domain/models"
)

type Option func(*Producer)

// WithSeed makes the generated sequence reproducible. Zero keeps a random seed.
func WithSeed(seed int64) Option {
	return func(p *Producer) {
		if seed != 0 {
			p.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Producer) { p.clock = c }
}

// WithProfile overrides the generator constants of one indicator.
func WithProfile(ind models.Indicator, profile models.SyntheticProfile) Option {
	return func(p *Producer) { p.profiles[ind] = profile }
}

// Producer generates plausible data with the same shape the backend returns.
// Values follow the indicator's trend with bounded noise controlled by its
// volatility; shapes and invariants are deterministic.
type Producer struct {
	mu       sync.Mutex
	rng      *rand.Rand
	clock    clockwork.Clock
	profiles map[models.Indicator]models.SyntheticProfile
}

func New(opts ...Option) *Producer {
	p := &Producer{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		clock:    clockwork.NewRealClock(),
		profiles: make(map[models.Indicator]models.SyntheticProfile),
	}
	for _, ind := range models.Indicators() {
		p.profiles[ind] = ind.Profile()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Profile returns the generator constants in use for ind.
func (p *Producer) Profile(ind models.Indicator) models.SyntheticProfile {
	return p.profiles[ind]
}

// noise returns a uniform sample in [-1, 1).
func (p *Producer) noise() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()*2 - 1
}

func (p *Producer) between(lo, hi float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Float64()*(hi-lo)
}

// step advances v by one tick of trend plus volatility-scaled noise.
func (p *Producer) step(prof models.SyntheticProfile, v float64) float64 {
	return v*(1+prof.Trend) + math.Abs(prof.Base)*prof.Volatility*p.noise()
}

// DataPoint produces the next observation for a topic, continuing from prev
// when given.
func (p *Producer) DataPoint(ind models.Indicator, region string, prev *models.DataPoint, source models.Source) models.DataPoint {
	prof := p.Profile(ind)
	v := prof.Base * regionFactor(region)
	if prev != nil {
		v = prev.Value
	}
	v = p.step(prof, v)

	change, pct := models.ChangeFrom(prev, v)
	return models.DataPoint{
		Timestamp:     p.clock.Now().UTC(),
		Value:         round(v),
		Change:        round(change),
		ChangePercent: round(pct),
		Source:        source,
		Reliability:   models.ReliabilityFor(source),
	}
}

// Latest implements repository.DataSource for demo mode.
func (p *Producer) Latest(_ context.Context, ind models.Indicator, region string, prev *models.DataPoint) (models.DataPoint, error) {
	return p.DataPoint(ind, region, prev, models.SourceSynthetic), nil
}

// Forecast produces one monthly point per month of tr, starting the month
// after now. Bounds widen with the horizon and always straddle the value.
func (p *Producer) Forecast(ind models.Indicator, region string, tr models.TimeRange, source models.Source) *models.ForecastSeries {
	prof := p.Profile(ind)
	now := p.clock.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	months := tr.Months()
	points := make([]models.ForecastPoint, 0, months)
	v := prof.Base * regionFactor(region)
	for i := 0; i < months; i++ {
		v = p.step(prof, v)
		spread := math.Abs(prof.Base) * prof.Volatility * (1 + 0.15*float64(i))
		value := round(v)
		points = append(points, models.ForecastPoint{
			Timestamp:      start.AddDate(0, i+1, 0),
			Value:          value,
			ConfidenceLow:  models.Bound(round(value - spread)),
			ConfidenceHigh: models.Bound(round(value + spread)),
		})
	}

	trend := models.DeriveTrend(points)
	return &models.ForecastSeries{
		Indicator: ind,
		Region:    region,
		TimeRange: tr,
		Points:    points,
		Summary: models.ForecastSummary{
			TrendDirection: trend,
			Narrative:      forecastNarrative(ind, region, tr, trend, points),
			Recommendation: recommendation(ind, trend),
			AccuracyScore:  round(p.between(0.72, 0.92)),
		},
		Source:      source,
		Reliability: models.ReliabilityFor(source),
		GeneratedAt: now,
	}
}

// Narrative produces a short text insight for a topic.
func (p *Producer) Narrative(ind models.Indicator, region string, source models.Source) *models.Narrative {
	dp := p.DataPoint(ind, region, nil, source)
	return &models.Narrative{
		Indicator: ind,
		Region:    region,
		Text: fmt.Sprintf("%s in %s currently reads %.2f %s. %s",
			ind.Label(), region, dp.Value, ind.Unit(), outlook(ind)),
		Source:      source,
		Reliability: models.ReliabilityFor(source),
		GeneratedAt: p.clock.Now().UTC(),
	}
}

var peerRegions = []string{
	"Germany", "France", "United Kingdom", "Japan", "Canada", "Australia",
	"Brazil", "India", "China", "United States", "South Africa", "Chile",
	"Norway", "Indonesia", "Mexico",
}

// SimilarRegions returns five peer regions ranked by a synthetic score.
func (p *Producer) SimilarRegions(ind models.Indicator, region string, source models.Source) *models.SimilarRegions {
	self := models.NormalizeRegion(region)
	results := make([]models.SimilarRegion, 0, 5)
	for _, r := range peerRegions {
		if models.NormalizeRegion(r) == self {
			continue
		}
		results = append(results, models.SimilarRegion{
			Region:    r,
			Score:     round(p.between(0.55, 0.98)),
			Rationale: fmt.Sprintf("comparable %s trajectory", strings.ToLower(ind.Label())),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > 5 {
		results = results[:5]
	}

	return &models.SimilarRegions{
		Indicator:   ind,
		Region:      region,
		Results:     results,
		Source:      source,
		Reliability: models.ReliabilityFor(source),
		GeneratedAt: p.clock.Now().UTC(),
	}
}

const tableRows = 5

// Table fills every requested column for a handful of rows. Columns that look
// numeric get numbers, the first column gets region names.
func (p *Producer) Table(columns []string, source models.Source) *models.Table {
	rows := make([]map[string]any, tableRows)
	for i := range rows {
		row := make(map[string]any, len(columns))
		for c, col := range columns {
			switch {
			case c == 0:
				row[col] = peerRegions[i%len(peerRegions)]
			case looksTextual(col):
				row[col] = fmt.Sprintf("%s %d", col, i+1)
			default:
				row[col] = round(p.between(0, 100))
			}
		}
		rows[i] = row
	}
	return &models.Table{
		Columns:     append([]string(nil), columns...),
		Rows:        rows,
		Source:      source,
		Reliability: models.ReliabilityFor(source),
		GeneratedAt: p.clock.Now().UTC(),
	}
}

func looksTextual(col string) bool {
	c := strings.ToLower(col)
	for _, hint := range []string{"name", "region", "country", "city", "note", "category", "sector"} {
		if strings.Contains(c, hint) {
			return true
		}
	}
	return false
}

// regionFactor spreads regions around the base value by up to ±10%, stable
// per region name.
func regionFactor(region string) float64 {
	var h uint32 = 2166136261
	for _, b := range []byte(models.NormalizeRegion(region)) {
		h ^= uint32(b)
		h *= 16777619
	}
	return 0.9 + float64(h%2001)/10000
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func forecastNarrative(ind models.Indicator, region string, tr models.TimeRange, trend models.TrendDirection, points []models.ForecastPoint) string {
	if len(points) == 0 {
		return ""
	}
	first, last := points[0].Value, points[len(points)-1].Value
	return fmt.Sprintf("%s in %s is projected to be %s over the next %s, moving from %.2f to %.2f %s.",
		ind.Label(), region, trend, tr.Label(), first, last, ind.Unit())
}

func recommendation(ind models.Indicator, trend models.TrendDirection) string {
	switch ind.Category() {
	case "economic":
		switch trend {
		case models.TrendIncreasing:
			return "Monitor for overheating and review policy buffers."
		case models.TrendDecreasing:
			return "Consider countercyclical measures to support activity."
		}
		return "Maintain current policy stance and review quarterly."
	default:
		switch trend {
		case models.TrendIncreasing:
			return "Prioritise mitigation measures and tighten monitoring."
		case models.TrendDecreasing:
			return "Sustain the measures driving the improvement."
		}
		return "Keep monitoring; no significant shift expected."
	}
}

func outlook(ind models.Indicator) string {
	return fmt.Sprintf("Recent readings sit within the expected band for %s.", strings.ToLower(ind.Label()))
}
