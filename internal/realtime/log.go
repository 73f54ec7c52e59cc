// internal/realtime/log.go
package realtime

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
)

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *logrus.Entry
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogPublisher{logger: logger.WithField("component", "realtime")}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.logger.WithFields(logrus.Fields{
		"event_id": evt.ID,
		"topic":    evt.Topic,
		"type":     evt.Type,
	}).Debug("Realtime event")
	return nil
}
