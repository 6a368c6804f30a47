package notify

import (
	"context"
	"errors"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	applogger "ClimaPulse/pkg/logger"
)

// LogNotifier writes notifications as structured log entries.
type LogNotifier struct {
	log *applogger.Logger
}

func NewLogNotifier(log *applogger.Logger) *LogNotifier {
	if log == nil {
		log = applogger.Nop()
	}
	return &LogNotifier{log: log.With(applogger.String("component", "notify"))}
}

func (n *LogNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.log.Info(msg.Title,
		applogger.String("body", msg.Body),
		applogger.String("topic", msg.Event.Topic.String()),
		applogger.Float64("change", msg.Event.Change),
		applogger.Float64("change_percent", msg.Event.ChangePercent),
		applogger.Float64("threshold", msg.Event.Threshold))
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []domrepo.Notifier

func (f Fanout) Notify(ctx context.Context, msg models.Notification) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
