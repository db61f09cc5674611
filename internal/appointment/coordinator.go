package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/interval"
	"github.com/hackgods/therapy-booking/internal/sessiontype"
)

type CoordinatorConfig struct {
	// HoldTTL is how long a temporary reservation waits for confirmation.
	HoldTTL time.Duration
	// CalendarLocation decides which calendar day an appointment is filed
	// under in the participants' buckets.
	CalendarLocation *time.Location
	Now              func() time.Time
}

// Coordinator owns every mutation of appointments and of the calendar
// buckets that index them. Each operation is a single store transaction.
type Coordinator struct {
	store   Store
	holdTTL time.Duration
	loc     *time.Location
	now     func() time.Time
}

func NewCoordinator(store Store, cfg CoordinatorConfig) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CalendarLocation == nil {
		cfg.CalendarLocation = time.UTC
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 10 * time.Minute
	}
	return &Coordinator{
		store:   store,
		holdTTL: cfg.HoldTTL,
		loc:     cfg.CalendarLocation,
		now:     cfg.Now,
	}
}

// HoldRequest describes the slot a client selected.
type HoldRequest struct {
	ClientID    uuid.UUID
	HostID      uuid.UUID
	Start       time.Time
	SessionType sessiontype.SessionType
}

func (r HoldRequest) validate(now time.Time) error {
	if r.SessionType.ID == "" || r.SessionType.DurationMinutes <= 0 {
		return ErrUnknownSessionType
	}
	if r.ClientID == uuid.Nil || r.HostID == uuid.Nil || r.ClientID == r.HostID {
		return ErrInvalidParty
	}
	if !r.Start.After(now) {
		return ErrStartInPast
	}
	return nil
}

// PaymentTerms is the outcome of the client's payment step.
type PaymentTerms struct {
	Method PaymentMethod
	// Deadline is required for pay-later and ignored otherwise.
	Deadline        *time.Time
	CustomerID      string
	PaymentMethodID string
}

func (t PaymentTerms) validate(now time.Time) error {
	switch t.Method {
	case MethodCard, MethodCredits:
		return nil
	case MethodPayLater:
		if t.Deadline == nil || !t.Deadline.After(now) {
			return fmt.Errorf("%w: pay-later deadline must be in the future", ErrInvalidPayment)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidPayment, t.Method)
	}
}

// CreateHold inserts a temporarily reserved appointment and files it under
// both parties' temporarily reserved bucket for its day.
func (c *Coordinator) CreateHold(ctx context.Context, req HoldRequest) (*Appointment, error) {
	now := c.now()
	if err := req.validate(now); err != nil {
		return nil, err
	}

	start := req.Start.UTC()
	span := interval.FromDuration(start, req.SessionType.Duration())
	expires := now.Add(c.holdTTL).UTC()

	appt := &Appointment{
		ID:            uuid.New(),
		HostID:        req.HostID,
		Participants:  []Participant{{UserID: req.ClientID}},
		SessionTypeID: req.SessionType.ID,
		StartTime:     span.Start,
		EndTime:       span.End,
		Status:        StatusTemporarilyReserved,
		Payment: Payment{
			Status:    PaymentPending,
			ExpiresAt: &expires,
			Amount:    req.SessionType.Price,
		},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}

	err := c.run(ctx, "create hold", func(ctx context.Context, tx Tx) error {
		if err := tx.LockHost(ctx, req.HostID); err != nil {
			return err
		}
		taken, err := tx.HasActiveOverlap(ctx, req.HostID, span)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if taken {
			return ErrSlotUnavailable
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		return c.file(ctx, tx, appt, BucketTemporarilyReserved)
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Confirm moves a hold into the booked buckets and applies the payment
// terms. Confirming anything but a live hold fails with
// ErrAppointmentNotReservable or ErrHoldExpired.
func (c *Coordinator) Confirm(ctx context.Context, id uuid.UUID, terms PaymentTerms) (*Appointment, error) {
	now := c.now()
	if err := terms.validate(now); err != nil {
		return nil, err
	}

	var out *Appointment
	err := c.run(ctx, "confirm", func(ctx context.Context, tx Tx) error {
		appt, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusTemporarilyReserved {
			return ErrAppointmentNotReservable
		}
		if appt.Payment.ExpiresAt != nil && !now.Before(*appt.Payment.ExpiresAt) {
			return ErrHoldExpired
		}

		appt.Status = StatusConfirmed
		appt.Payment.Method = terms.Method
		appt.Payment.CustomerID = terms.CustomerID
		appt.Payment.PaymentMethodID = terms.PaymentMethodID
		if terms.Method == MethodPayLater {
			deadline := terms.Deadline.UTC()
			appt.Payment.Status = PaymentPending
			appt.Payment.ExpiresAt = &deadline
		} else {
			appt.Payment.Status = PaymentPaid
			appt.Payment.ExpiresAt = nil
		}
		appt.UpdatedAt = now.UTC()

		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := c.unfile(ctx, tx, appt, BucketTemporarilyReserved); err != nil {
			return err
		}
		if err := c.file(ctx, tx, appt, BucketBooked); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseHold deletes a never-confirmed hold and removes it from both
// parties' buckets.
func (c *Coordinator) ReleaseHold(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var out *Appointment
	err := c.run(ctx, "release hold", func(ctx context.Context, tx Tx) error {
		appt, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusTemporarilyReserved {
			return ErrAppointmentNotReservable
		}
		if err := c.drop(ctx, tx, appt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel ends an appointment. A hold is deleted outright; a confirmed
// appointment is kept as canceled history and stays in the booked buckets.
// The returned snapshot carries the cancellation in both cases.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID, why Cancellation) (*Appointment, error) {
	if !why.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	now := c.now()

	var out *Appointment
	err := c.run(ctx, "cancel", func(ctx context.Context, tx Tx) error {
		appt, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}

		prev := appt.Status
		if prev.Terminal() {
			return ErrInvalidStatusTransition
		}
		appt.Status = StatusCanceled
		appt.Cancellation = &why
		appt.UpdatedAt = now.UTC()

		if prev == StatusTemporarilyReserved {
			if err := c.drop(ctx, tx, appt); err != nil {
				return err
			}
		} else if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Complete marks a confirmed appointment as held. Calendar buckets do not
// change.
func (c *Coordinator) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return c.mutateConfirmed(ctx, "complete", id, func(a *Appointment) error {
		a.Status = StatusCompleted
		return nil
	})
}

// Resolve settles a confirmed appointment at its end time from the
// attendance flags of the locked row: both present completes it, any absence
// cancels it with the matching no-show reason. The returned snapshot carries
// the outcome.
func (c *Coordinator) Resolve(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return c.mutateConfirmed(ctx, "resolve", id, func(a *Appointment) error {
		reason, noShow := a.NoShow()
		if !noShow {
			a.Status = StatusCompleted
			return nil
		}
		a.Status = StatusCanceled
		a.Cancellation = &Cancellation{Reason: reason}
		return nil
	})
}

// CancelUnpaid cancels a confirmed appointment for non-payment. It fails
// with ErrPaymentNotPending when the payment was settled first.
func (c *Coordinator) CancelUnpaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return c.mutateConfirmed(ctx, "cancel unpaid", id, func(a *Appointment) error {
		if a.Payment.Status != PaymentPending {
			return ErrPaymentNotPending
		}
		a.Status = StatusCanceled
		a.Cancellation = &Cancellation{Reason: ReasonNonPayment}
		return nil
	})
}

// RecordAttendance sets the attendance flag of the host or the participant.
func (c *Coordinator) RecordAttendance(ctx context.Context, id, userID uuid.UUID, attended bool) (*Appointment, error) {
	return c.mutateConfirmed(ctx, "record attendance", id, func(a *Appointment) error {
		if userID == a.HostID {
			a.HostAttended = attended
			return nil
		}
		for i := range a.Participants {
			if a.Participants[i].UserID == userID {
				a.Participants[i].Attended = attended
				return nil
			}
		}
		return ErrNotAParty
	})
}

// MarkPaid settles a pay-later appointment.
func (c *Coordinator) MarkPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return c.mutateConfirmed(ctx, "mark paid", id, func(a *Appointment) error {
		if a.Payment.Status != PaymentPending {
			return ErrPaymentNotPending
		}
		a.Payment.Status = PaymentPaid
		a.Payment.ExpiresAt = nil
		return nil
	})
}

func (c *Coordinator) mutateConfirmed(ctx context.Context, op string, id uuid.UUID, fn func(*Appointment) error) (*Appointment, error) {
	now := c.now()

	var out *Appointment
	err := c.run(ctx, op, func(ctx context.Context, tx Tx) error {
		appt, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusConfirmed {
			return ErrInvalidStatusTransition
		}
		if err := fn(appt); err != nil {
			return err
		}
		appt.UpdatedAt = now.UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) drop(ctx context.Context, tx Tx, appt *Appointment) error {
	if err := tx.DeleteAppointment(ctx, appt.ID); err != nil {
		return err
	}
	return c.unfile(ctx, tx, appt, BucketTemporarilyReserved)
}

func (c *Coordinator) file(ctx context.Context, tx Tx, appt *Appointment, b Bucket) error {
	day := DayOf(appt.StartTime, c.loc)
	for _, user := range appt.Parties() {
		if err := tx.AddToBucket(ctx, user, day, b, appt.ID); err != nil {
			return fmt.Errorf("add %s to %s bucket of %s: %w", appt.ID, b, user, err)
		}
	}
	return nil
}

func (c *Coordinator) unfile(ctx context.Context, tx Tx, appt *Appointment, b Bucket) error {
	day := DayOf(appt.StartTime, c.loc)
	for _, user := range appt.Parties() {
		if err := tx.RemoveFromBucket(ctx, user, day, b, appt.ID); err != nil {
			return fmt.Errorf("remove %s from %s bucket of %s: %w", appt.ID, b, user, err)
		}
	}
	return nil
}

// run executes fn in one transaction. Domain errors pass through unchanged;
// anything else means the store gave up and nothing was written.
func (c *Coordinator) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	err := c.store.WithTx(ctx, fn)
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransactionAborted, err)
}

// Day returns the calendar day an instant is filed under.
func (c *Coordinator) Day(t time.Time) time.Time {
	return DayOf(t, c.loc)
}
