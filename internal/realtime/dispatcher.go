// internal/realtime/dispatcher.go
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/metrics"
)

// Publisher delivers one event to a transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt events.Event) error
}

type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	PublishTries   int
	PublishTimeout time.Duration
	RetryBackoff   time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize < 1 {
		c.QueueSize = 1024
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PublishTries < 1 {
		c.PublishTries = 1
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	return c
}

// Dispatcher fans events out to every publisher from a bounded queue.
// Dispatch never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	cfg        DispatcherConfig
	publishers []Publisher
	metrics    *metrics.Metrics
	logger     *logrus.Entry

	mu     sync.RWMutex
	closed bool
	queue  chan events.Event
	wg     sync.WaitGroup
	stop   chan struct{}
}

func NewDispatcher(cfg DispatcherConfig, m *metrics.Metrics, publishers ...Publisher) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:        cfg,
		publishers: publishers,
		metrics:    m,
		logger:     logrus.WithField("component", "realtime"),
		queue:      make(chan events.Event, cfg.QueueSize),
		stop:       make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) Dispatch(evts ...events.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, evt := range evts {
		if d.closed {
			d.drop(evt, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- evt:
		default:
			d.drop(evt, "queue full")
		}
	}
}

func (d *Dispatcher) drop(evt events.Event, reason string) {
	d.metrics.EventDropped()
	d.logger.WithFields(logrus.Fields{
		"event_id": evt.ID,
		"topic":    evt.Topic,
		"type":     evt.Type,
		"reason":   reason,
	}).Warn("Dropped realtime event")
}

// Close stops accepting events and drains the queue until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(d.stop)
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for evt := range d.queue {
		for _, p := range d.publishers {
			d.deliver(p, evt)
		}
	}
}

func (d *Dispatcher) deliver(p Publisher, evt events.Event) {
	var err error
	for attempt := 1; attempt <= d.cfg.PublishTries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
		err = p.Publish(ctx, evt)
		cancel()

		if err == nil {
			d.metrics.EventPublished(p.Name())
			return
		}
		if !apperrors.IsTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt < d.cfg.PublishTries {
			select {
			case <-time.After(d.cfg.RetryBackoff * time.Duration(attempt)):
			case <-d.stop:
				attempt = d.cfg.PublishTries
			}
		}
	}

	d.metrics.EventPublishFailed(p.Name())
	d.logger.WithError(err).WithFields(logrus.Fields{
		"publisher": p.Name(),
		"event_id":  evt.ID,
		"topic":     evt.Topic,
		"type":      evt.Type,
	}).Error("Failed to publish realtime event")
}
