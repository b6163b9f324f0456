package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubmissionEvent announces a lifecycle status change.
type SubmissionEvent struct {
	EventID      string    `json:"event_id"`
	SubmissionID string    `json:"submission_id"`
	ProjectID    uint      `json:"project_id"`
	UserID       uint      `json:"user_id"`
	Status       string    `json:"status"`
	Source       string    `json:"source,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher broadcasts lifecycle events. Publishing is explicitly
// best-effort: the returned error is for the caller's log line only and
// must never gate a state transition.
type EventPublisher interface {
	PublishSubmissionEvent(event SubmissionEvent) error
}

type natsEventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSEventPublisher constructs a publisher over an existing NATS
// connection.
func NewNATSEventPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) EventPublisher {
	if subject == "" {
		subject = "codegrade.submissions"
	}
	return &natsEventPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) PublishSubmissionEvent(event SubmissionEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return err
	}

	p.logger.Debug().Str("submission_id", event.SubmissionID).Str("status", event.Status).Msg("submission event published")
	return nil
}

// NopEventPublisher drops every event; used when NATS is not configured.
type NopEventPublisher struct{}

// PublishSubmissionEvent implements EventPublisher.
func (NopEventPublisher) PublishSubmissionEvent(SubmissionEvent) error {
	return nil
}
