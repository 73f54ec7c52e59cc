// internal/realtime/postgres.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
)

// pg_notify rejects payloads of 8000 bytes or more.
const maxNotifyPayload = 7900

// PGNotifyPublisher sends events through Postgres NOTIFY.
type PGNotifyPublisher struct {
	db      *gorm.DB
	channel string
}

func NewPGNotifyPublisher(db *gorm.DB, channel string) *PGNotifyPublisher {
	return &PGNotifyPublisher{db: db, channel: channel}
}

func (p *PGNotifyPublisher) Name() string { return "pg_notify" }

func (p *PGNotifyPublisher) Publish(ctx context.Context, evt events.Event) error {
	data, err := notifyPayload(evt)
	if err != nil {
		return err
	}

	if err := p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", p.channel, string(data)).Error; err != nil {
		return apperrors.Transport("pg_notify", err)
	}
	return nil
}

// notifyPayload strips the payload from events too large for NOTIFY.
// Subscribers refetch the request in that case.
func notifyPayload(evt events.Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if len(data) <= maxNotifyPayload {
		return data, nil
	}

	evt.Payload = nil
	return json.Marshal(evt)
}

// PGListener subscribes to a NOTIFY channel with lib/pq.
type PGListener struct {
	listener *pq.Listener
	channel  string
	logger   *logrus.Entry
}

func NewPGListener(dsn, channel string) (*PGListener, error) {
	logger := logrus.WithFields(logrus.Fields{"component": "realtime", "channel": channel})

	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithError(err).Warn("Postgres listener event")
		}
	})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}

	return &PGListener{listener: listener, channel: channel, logger: logger}, nil
}

// Run calls handle for every event until ctx is done.
func (l *PGListener) Run(ctx context.Context, handle func(events.Event)) error {
	defer l.listener.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-l.listener.Notify:
			if !ok {
				return errors.New("postgres listener closed")
			}
			// nil after a reconnect; events during the gap are lost
			if n == nil {
				l.logger.Info("Postgres listener reconnected")
				continue
			}
			evt, err := DecodeNotification(n)
			if err != nil {
				l.logger.WithError(err).Warn("Skipping malformed notification")
				continue
			}
			handle(evt)
		case <-time.After(90 * time.Second):
			go l.listener.Ping()
		}
	}
}

func DecodeNotification(n *pq.Notification) (events.Event, error) {
	var evt events.Event
	if err := json.Unmarshal([]byte(n.Extra), &evt); err != nil {
		return events.Event{}, fmt.Errorf("decode notification on %s: %w", n.Channel, err)
	}
	return evt, nil
}
