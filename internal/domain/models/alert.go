package models

import (
	"math"
	"time"
)

type ThresholdKind string

const (
	ThresholdAbsolute   ThresholdKind = "absolute"
	ThresholdPercentage ThresholdKind = "percentage"
)

type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionBoth     Direction = "both"
)

// AlertRule fires when a topic's change crosses Threshold in Direction.
// A topic holds at most one rule.
type AlertRule struct {
	Topic     TopicKey      `json:"topic"`
	Indicator Indicator     `json:"indicator"`
	Region    string        `json:"region"`
	Threshold float64       `json:"threshold"`
	Kind      ThresholdKind `json:"kind"`
	Direction Direction     `json:"direction"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Triggered evaluates the rule against a data point.
func (r AlertRule) Triggered(dp DataPoint) bool {
	magnitude := math.Abs(dp.Change)
	if r.Kind == ThresholdPercentage {
		magnitude = math.Abs(dp.ChangePercent)
	}
	if magnitude < r.Threshold {
		return false
	}
	switch r.Direction {
	case DirectionIncrease:
		return dp.Change > 0 || (dp.Change == 0 && dp.ChangePercent > 0)
	case DirectionDecrease:
		return dp.Change < 0 || (dp.Change == 0 && dp.ChangePercent < 0)
	default:
		return true
	}
}

// AlertEvent is emitted when a rule triggers.
type AlertEvent struct {
	Topic         TopicKey      `json:"topic"`
	Indicator     Indicator     `json:"indicator"`
	Region        string        `json:"region"`
	Value         float64       `json:"value"`
	Change        float64       `json:"change"`
	ChangePercent float64       `json:"changePercent"`
	Threshold     float64       `json:"threshold"`
	Kind          ThresholdKind `json:"kind"`
	Direction     Direction     `json:"direction"`
	Source        Source        `json:"source"`
	At            time.Time     `json:"at"`
}

// Notification is what a Notifier delivers.
type Notification struct {
	Title string     `json:"title"`
	Body  string     `json:"body"`
	Event AlertEvent `json:"event"`
}

// Subscription records one listener registration on a topic.
type Subscription struct {
	ID        string    `json:"id"`
	Topic     TopicKey  `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
}
