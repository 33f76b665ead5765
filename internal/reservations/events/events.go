// Package events publishes reservation lifecycle events for downstream
// consumers (push notifications, analytics). Events are emitted after the
// database commit; a publish failure is logged and dropped, it never rolls
// back or fails the reservation itself.
package events

import (
	"context"
	"time"

	"gymbook/pkg/kafka"
	"gymbook/pkg/logger"
)

const (
	Topic    = "reservation-events"
	DLQTopic = "reservation-events-dlq"

	TypeReservationConfirmed = "reservation.confirmed"
	TypeReservationQueued    = "reservation.queued"
	TypeReservationCancelled = "reservation.cancelled"
	TypeWaitlistPromoted     = "waitlist.promoted"
	TypeMemberCheckedIn      = "member.checked_in"
	TypeMemberUnenrolled     = "member.unenrolled"

	source = "reservations"
)

// Event is the payload shared by all lifecycle event types.
type Event struct {
	Type       string    `json:"type"`
	ClassID    string    `json:"class_id"`
	MemberID   string    `json:"member_id"`
	Refunded   bool      `json:"refunded,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Publisher emits lifecycle events keyed by class id, so consumers see the
// events of one class in order.
type Publisher struct {
	producer producer
	log      *logger.Logger
}

func NewPublisher(producer producer, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log.WithComponent("events"),
	}
}

// Publish emits one event. A nil publisher or a publish error is logged and
// swallowed: the reservation mutation already committed.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.producer == nil {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	msg := kafka.NewMessage().
		WithKey(event.ClassID).
		WithValue(event).
		WithEventType(event.Type).
		WithSource(source).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish reservation event",
			"type", event.Type,
			"class_id", event.ClassID,
			"member_id", event.MemberID,
			"error", err,
		)
		return
	}

	p.log.Debug("Reservation event published",
		"type", event.Type,
		"class_id", event.ClassID,
		"member_id", event.MemberID,
	)
}
