// Package jobs arms and disarms the delayed callbacks that drive an
// appointment through its lifecycle.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindHoldExpiry      Kind = "hold-expiry"
	KindStatusUpdate    Kind = "status-update"
	KindCancelUnpaid    Kind = "cancel-unpaid"
	KindPaymentReminder Kind = "payment-reminder"
	KindEmailReminder   Kind = "email-reminder"
	KindSMSReminder     Kind = "sms-reminder"
)

var ErrUnknownKind = errors.New("unknown job kind")

// Payload is the closed set of callbacks a job can carry. Handlers switch on
// the concrete type.
type Payload interface {
	Kind() Kind
	AppointmentID() uuid.UUID
	// Key identifies the job among the appointment's jobs. At most one task
	// is active per key.
	Key() string
	sealed()
}

// HoldExpiry releases a temporary reservation that was never confirmed.
type HoldExpiry struct {
	Appointment uuid.UUID `json:"appointment_id"`
}

// StatusUpdate resolves a confirmed appointment at its end time.
type StatusUpdate struct {
	Appointment uuid.UUID `json:"appointment_id"`
}

// CancelUnpaid cancels a pay-later appointment whose deadline passed.
type CancelUnpaid struct {
	Appointment uuid.UUID `json:"appointment_id"`
}

type PaymentReminder struct {
	Appointment uuid.UUID     `json:"appointment_id"`
	Before      time.Duration `json:"before"`
}

type EmailReminder struct {
	Appointment uuid.UUID     `json:"appointment_id"`
	Before      time.Duration `json:"before"`
}

type SMSReminder struct {
	Appointment uuid.UUID     `json:"appointment_id"`
	Before      time.Duration `json:"before"`
}

func (HoldExpiry) Kind() Kind      { return KindHoldExpiry }
func (StatusUpdate) Kind() Kind    { return KindStatusUpdate }
func (CancelUnpaid) Kind() Kind    { return KindCancelUnpaid }
func (PaymentReminder) Kind() Kind { return KindPaymentReminder }
func (EmailReminder) Kind() Kind   { return KindEmailReminder }
func (SMSReminder) Kind() Kind     { return KindSMSReminder }

func (p HoldExpiry) AppointmentID() uuid.UUID      { return p.Appointment }
func (p StatusUpdate) AppointmentID() uuid.UUID    { return p.Appointment }
func (p CancelUnpaid) AppointmentID() uuid.UUID    { return p.Appointment }
func (p PaymentReminder) AppointmentID() uuid.UUID { return p.Appointment }
func (p EmailReminder) AppointmentID() uuid.UUID   { return p.Appointment }
func (p SMSReminder) AppointmentID() uuid.UUID     { return p.Appointment }

func (p HoldExpiry) Key() string      { return string(KindHoldExpiry) }
func (p StatusUpdate) Key() string    { return string(KindStatusUpdate) }
func (p CancelUnpaid) Key() string    { return string(KindCancelUnpaid) }
func (p PaymentReminder) Key() string { return reminderKey(KindPaymentReminder, p.Before) }
func (p EmailReminder) Key() string   { return reminderKey(KindEmailReminder, p.Before) }
func (p SMSReminder) Key() string     { return reminderKey(KindSMSReminder, p.Before) }

func (HoldExpiry) sealed()      {}
func (StatusUpdate) sealed()    {}
func (CancelUnpaid) sealed()    {}
func (PaymentReminder) sealed() {}
func (EmailReminder) sealed()   {}
func (SMSReminder) sealed()     {}

func reminderKey(k Kind, before time.Duration) string {
	return fmt.Sprintf("%s:%s", k, before)
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes p into the task body stored on the queue.
func Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// Decode is the inverse of Encode.
func Decode(body []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode job envelope: %w", err)
	}

	switch env.Kind {
	case KindHoldExpiry:
		return decodeAs[HoldExpiry](env)
	case KindStatusUpdate:
		return decodeAs[StatusUpdate](env)
	case KindCancelUnpaid:
		return decodeAs[CancelUnpaid](env)
	case KindPaymentReminder:
		return decodeAs[PaymentReminder](env)
	case KindEmailReminder:
		return decodeAs[EmailReminder](env)
	case KindSMSReminder:
		return decodeAs[SMSReminder](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

func decodeAs[T Payload](env envelope) (Payload, error) {
	var p T
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	if p.AppointmentID() == uuid.Nil {
		return nil, fmt.Errorf("decode %s payload: missing appointment id", env.Kind)
	}
	return p, nil
}
