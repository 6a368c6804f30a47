package repository

import (
	"context"
	"encoding/json"
	"errors"

	"ClimaPulse/internal/domain/models"
)

// ErrRemoteNotConfigured is returned by a Remote with no backend address.
var ErrRemoteNotConfigured = errors.New("remote backend not configured")

// Remote is the opaque analytics backend. Invoke is fallible and may block
// until ctx is done.
type Remote interface {
	Invoke(ctx context.Context, kind models.OperationKind, payload interface{}) (json.RawMessage, error)
}

// DataSource produces the next DataPoint for a topic given the last known one.
type DataSource interface {
	Latest(ctx context.Context, indicator models.Indicator, region string, prev *models.DataPoint) (models.DataPoint, error)
}

// Notifier delivers alert notifications.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type HistoryStore interface {
	Record(ctx context.Context, indicator models.Indicator, region string, dp models.DataPoint) error
	Recent(ctx context.Context, indicator models.Indicator, region string, limit int) ([]models.DataPoint, error)
	Close() error
}

type Metrics interface {
	RecordCacheLookup(kind string, hit bool)
	RecordRemoteCall(kind string, err error, seconds float64)
	RecordRetry(kind string)
	RecordFallback(kind string)
	RecordTick(indicator string)
	RecordListenerFailure(indicator string)
	RecordAlert(indicator string)
	SetActiveTopics(n int)
}
