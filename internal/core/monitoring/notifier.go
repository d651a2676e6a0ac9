package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
)

// EventType classifies a notification-worthy monitoring event.
type EventType string

const (
	EventIssueDetected  EventType = "issue_detected"
	EventIssueEscalated EventType = "issue_escalated"
	EventAutoResolution EventType = "auto_resolution"
	EventTestAlert      EventType = "test_alert"
)

// Event is one notification unit handed to every configured channel.
type Event struct {
	Type    EventType
	Issue   *models.Issue
	Detail  string
	Created time.Time
}

// Notifier is one delivery channel for monitoring events.
type Notifier interface {
	Name() string
	Send(ctx context.Context, event *Event) error
}

// Dispatcher fans monitoring events out to channels from a single worker.
// Repeat events for the same issue are deduplicated inside a rolling
// window; escalations always go through.
type Dispatcher struct {
	channels []Notifier
	records  repositories.NotificationRepository
	logger   *logrus.Logger

	queue       chan *Event
	recent      *cache.Cache
	maxAttempts int
	baseWait    time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher creates a dispatcher for the given channels.
func NewDispatcher(cfg config.NotificationsConfig, channels []Notifier, records repositories.NotificationRepository, logger *logrus.Logger) *Dispatcher {
	window := config.Duration(cfg.DedupWindow, 15*time.Minute)
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Dispatcher{
		channels:    channels,
		records:     records,
		logger:      logger,
		queue:       make(chan *Event, queueSize),
		recent:      cache.New(window, window),
		maxAttempts: maxAttempts,
		baseWait:    config.Duration(cfg.RetryBaseWait, time.Second),
		done:        make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop drains the queue and stops the worker.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	<-d.done
}

// Dispatch enqueues an event without blocking the evaluation cycle. Events
// are dropped when the queue is full; a dropped event does not consume its
// dedup window.
func (d *Dispatcher) Dispatch(eventType EventType, issue *models.Issue, detail string) {
	if issue == nil {
		return
	}
	key := dedupKey(eventType, issue)
	if d.suppressed(eventType, key) {
		d.logger.WithFields(logrus.Fields{
			"issue_id": issue.IssueID,
			"event":    eventType,
		}).Debug("Notification deduplicated")
		return
	}

	event := &Event{
		Type:    eventType,
		Issue:   issue,
		Detail:  detail,
		Created: time.Now().UTC(),
	}

	select {
	case d.queue <- event:
		if eventType != EventTestAlert {
			d.recent.SetDefault(key, struct{}{})
		}
	default:
		d.logger.WithField("issue_id", issue.IssueID).Warn("Notification queue full, event dropped")
	}
}

// dedupKey scopes the window to one issue and one event type, so a
// detection never swallows the auto-resolution outcome that follows it.
func dedupKey(eventType EventType, issue *models.Issue) string {
	return issue.IssueID + "|" + string(eventType)
}

// suppressed applies the dedup window. Escalations and test alerts bypass
// it; escalations still reset their key on enqueue.
func (d *Dispatcher) suppressed(eventType EventType, key string) bool {
	if eventType == EventTestAlert || eventType == EventIssueEscalated {
		return false
	}
	_, seen := d.recent.Get(key)
	return seen
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		for _, channel := range d.channels {
			d.deliver(channel, event)
		}
	}
}

// deliver sends one event on one channel with bounded retries and doubling
// backoff, then records the outcome in the notification log.
func (d *Dispatcher) deliver(channel Notifier, event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var lastErr error
	attempts := 0
	wait := d.baseWait

	for attempts < d.maxAttempts {
		attempts++
		lastErr = channel.Send(ctx, event)
		if lastErr == nil {
			break
		}
		if attempts < d.maxAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}

	status := "sent"
	if lastErr != nil {
		status = "dropped"
		notificationsDroppedTotal.WithLabelValues(channel.Name()).Inc()
		d.logger.WithError(lastErr).WithFields(logrus.Fields{
			"channel":  channel.Name(),
			"issue_id": event.Issue.IssueID,
			"attempts": attempts,
		}).Error("Notification dropped after retries")
	} else {
		notificationsSentTotal.WithLabelValues(channel.Name()).Inc()
	}

	record := &models.NotificationRecord{
		ID:         uuid.New().String(),
		CustomerID: event.Issue.CustomerID,
		IssueID:    event.Issue.IssueID,
		Event:      string(event.Type),
		Channel:    channel.Name(),
		Status:     status,
		Attempts:   attempts,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.records.Record(ctx, record); err != nil {
		d.logger.WithError(err).Warn("Failed to write notification log entry")
	}
}
