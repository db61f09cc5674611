// Package notify publishes user-facing notification requests. Delivery
// (email, SMS, push) is owned by downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const SubjectPrefix = "therapy.notifications."

type Kind string

const (
	KindBookingConfirmed    Kind = "booking-confirmed"
	KindAppointmentCanceled Kind = "appointment-canceled"
	KindPaymentReminder     Kind = "payment-reminder"
	KindEmailReminder       Kind = "email-reminder"
	KindSMSReminder         Kind = "sms-reminder"
)

type Notification struct {
	Kind          Kind          `json:"kind"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Recipients    []uuid.UUID   `json:"recipients"`
	StartTime     time.Time     `json:"start_time"`
	Reason        string        `json:"reason,omitempty"`
	Before        time.Duration `json:"before,omitempty"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	SentAt        time.Time     `json:"sent_at"`
}

func Subject(k Kind) string {
	return SubjectPrefix + string(k)
}

type Publisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

func NewPublisher(natsURL string, log zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("therapy-booking"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log = log.With().Str("component", "notify").Logger()
	log.Info().Str("url", natsURL).Msg("connected to NATS")

	return &Publisher{nc: nc, log: log}, nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Connected reports whether the NATS connection is usable.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *Publisher) Notify(_ context.Context, n Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := p.nc.Publish(Subject(n.Kind), data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.log.Debug().
		Str("kind", string(n.Kind)).
		Str("appointment_id", n.AppointmentID.String()).
		Msg("published notification")
	return nil
}
