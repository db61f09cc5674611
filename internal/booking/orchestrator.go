// Package booking drives appointments through their lifecycle: it checks
// availability, calls the coordinator for every state change, and arms or
// disarms the delayed jobs each state needs.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/availability"
	"github.com/hackgods/therapy-booking/internal/jobs"
	"github.com/hackgods/therapy-booking/internal/notify"
	"github.com/hackgods/therapy-booking/internal/payment"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
	"github.com/hackgods/therapy-booking/internal/sessiontype"
)

type Slots interface {
	Slots(ctx context.Context, hostID uuid.UUID, session sessiontype.SessionType, date time.Time) ([]availability.Slot, error)
	IsBookable(ctx context.Context, hostID uuid.UUID, session sessiontype.SessionType, start time.Time) (bool, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, runAt time.Time, p jobs.Payload) (string, error)
	CancelForAppointment(ctx context.Context, appointmentID uuid.UUID, kinds ...jobs.Kind) error
}

type Payments interface {
	ChargeStoredMethod(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

type Deps struct {
	Coordinator *appointment.Coordinator
	Reader      appointment.Reader
	Slots       Slots
	Catalog     *sessiontype.Catalog
	Jobs        Scheduler
	Locker      redisclient.Locker
	Payments    Payments
	Notifier    Notifier
}

type Config struct {
	// PayLaterLeadTime is how long before the session a pay-later
	// appointment must be paid.
	PayLaterLeadTime time.Duration
	// PaymentReminders are offsets before the payment deadline.
	PaymentReminders    []time.Duration
	EmailReminderBefore time.Duration
	SMSReminderBefore   time.Duration
	Now                 func() time.Time
}

var DefaultPaymentReminders = []time.Duration{24 * time.Hour, 6 * time.Hour, time.Hour}

type Orchestrator struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger
}

func NewOrchestrator(deps Deps, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PayLaterLeadTime <= 0 {
		cfg.PayLaterLeadTime = 24 * time.Hour
	}
	if cfg.PaymentReminders == nil {
		cfg.PaymentReminders = DefaultPaymentReminders
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log.With().Str("component", "booking").Logger(),
	}
}

// Result is a successful state change. Warnings list the side effects
// (timers, notifications) that could not be completed; the appointment
// state itself is committed.
type Result struct {
	Appointment *appointment.Appointment `json:"appointment"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

func (r *Result) Degraded() bool {
	return len(r.Warnings) > 0
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (o *Orchestrator) sessionType(id string) (sessiontype.SessionType, error) {
	st, err := o.deps.Catalog.Get(id)
	if err != nil {
		return sessiontype.SessionType{}, fmt.Errorf("%w: %q", appointment.ErrUnknownSessionType, id)
	}
	return st, nil
}

// AvailableSlots lists the bookable slots of a provider on the civil date of
// date.
func (o *Orchestrator) AvailableSlots(ctx context.Context, hostID uuid.UUID, sessionTypeID string, date time.Time) ([]availability.Slot, error) {
	st, err := o.sessionType(sessionTypeID)
	if err != nil {
		return nil, err
	}
	return o.deps.Slots.Slots(ctx, hostID, st, date)
}

type BookRequest struct {
	ClientID      uuid.UUID
	HostID        uuid.UUID
	SessionTypeID string
	Start         time.Time
}

// Book places a temporary hold on a slot and arms its expiry.
func (o *Orchestrator) Book(ctx context.Context, req BookRequest) (*Result, error) {
	st, err := o.sessionType(req.SessionTypeID)
	if err != nil {
		return nil, err
	}

	var appt *appointment.Appointment
	err = o.deps.Locker.WithSlotLock(ctx, req.HostID, req.Start, func(lockCtx context.Context) error {
		ok, err := o.deps.Slots.IsBookable(lockCtx, req.HostID, st, req.Start)
		if err != nil {
			if errors.Is(err, availability.ErrProviderNotFound) {
				return appointment.ErrSlotUnavailable
			}
			return fmt.Errorf("check availability: %w", err)
		}
		if !ok {
			return appointment.ErrSlotUnavailable
		}

		appt, err = o.deps.Coordinator.CreateHold(lockCtx, appointment.HoldRequest{
			ClientID:    req.ClientID,
			HostID:      req.HostID,
			Start:       req.Start,
			SessionType: st,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: %w", appointment.ErrSlotUnavailable, err)
		}
		return nil, err
	}

	res := &Result{Appointment: appt}
	log := o.log.With().Str("appointment_id", appt.ID.String()).Logger()
	log.Info().
		Str("host_id", appt.HostID.String()).
		Time("start", appt.StartTime).
		Msg("slot held")

	o.arm(ctx, res, log, *appt.Payment.ExpiresAt, jobs.HoldExpiry{Appointment: appt.ID})
	return res, nil
}

// PaymentChoice is the client's answer to the payment step.
type PaymentChoice struct {
	PayLater        bool
	Method          appointment.PaymentMethod
	CustomerID      string
	PaymentMethodID string
}

// Confirm books a held slot. Pay-later appointments get a payment deadline
// of PayLaterLeadTime before the session, reminders before it, and an
// unpaid-cancellation timer at it.
func (o *Orchestrator) Confirm(ctx context.Context, id uuid.UUID, choice PaymentChoice) (*Result, error) {
	current, err := o.deps.Reader.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	terms := appointment.PaymentTerms{
		Method:          choice.Method,
		CustomerID:      choice.CustomerID,
		PaymentMethodID: choice.PaymentMethodID,
	}
	if choice.PayLater {
		deadline := current.StartTime.Add(-o.cfg.PayLaterLeadTime)
		if !deadline.After(o.cfg.Now()) {
			return nil, fmt.Errorf("%w: session starts within %s, pay-later unavailable", appointment.ErrInvalidPayment, o.cfg.PayLaterLeadTime)
		}
		terms.Method = appointment.MethodPayLater
		terms.Deadline = &deadline
	} else if terms.Method == appointment.MethodNone {
		terms.Method = appointment.MethodCard
	}

	appt, err := o.deps.Coordinator.Confirm(ctx, id, terms)
	if err != nil {
		if errors.Is(err, appointment.ErrHoldExpired) {
			o.expireHold(ctx, id)
		}
		return nil, err
	}

	res := &Result{Appointment: appt}
	log := o.log.With().Str("appointment_id", appt.ID.String()).Logger()
	log.Info().Str("payment_method", string(appt.Payment.Method)).Msg("appointment confirmed")

	o.disarm(ctx, res, log, jobs.KindHoldExpiry)
	o.arm(ctx, res, log, appt.EndTime, jobs.StatusUpdate{Appointment: appt.ID})
	o.armIfFuture(ctx, res, log, appt.StartTime.Add(-o.cfg.EmailReminderBefore), jobs.EmailReminder{Appointment: appt.ID, Before: o.cfg.EmailReminderBefore})
	o.armIfFuture(ctx, res, log, appt.StartTime.Add(-o.cfg.SMSReminderBefore), jobs.SMSReminder{Appointment: appt.ID, Before: o.cfg.SMSReminderBefore})

	if appt.Payment.Method == appointment.MethodPayLater && appt.Payment.ExpiresAt != nil {
		deadline := *appt.Payment.ExpiresAt
		o.arm(ctx, res, log, deadline, jobs.CancelUnpaid{Appointment: appt.ID})
		for _, before := range o.cfg.PaymentReminders {
			o.armIfFuture(ctx, res, log, deadline.Add(-before), jobs.PaymentReminder{Appointment: appt.ID, Before: before})
		}
	}

	o.notify(ctx, res, log, notify.Notification{
		Kind:          notify.KindBookingConfirmed,
		AppointmentID: appt.ID,
		Recipients:    appt.Parties(),
		StartTime:     appt.StartTime,
		Deadline:      appt.Payment.ExpiresAt,
	})
	return res, nil
}

// Abandon releases a hold the client walked away from.
func (o *Orchestrator) Abandon(ctx context.Context, id uuid.UUID) (*Result, error) {
	appt, err := o.deps.Coordinator.ReleaseHold(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &Result{Appointment: appt}
	log := o.log.With().Str("appointment_id", id.String()).Logger()
	log.Info().Msg("hold abandoned")
	o.disarm(ctx, res, log)
	return res, nil
}

// Cancel ends a held or confirmed appointment on behalf of a party.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID, why appointment.Cancellation) (*Result, error) {
	appt, err := o.deps.Coordinator.Cancel(ctx, id, why)
	if err != nil {
		return nil, err
	}
	res := &Result{Appointment: appt}
	log := o.log.With().Str("appointment_id", id.String()).Logger()
	log.Info().Str("reason", string(why.Reason)).Msg("appointment canceled")

	o.disarm(ctx, res, log)
	o.notify(ctx, res, log, notify.Notification{
		Kind:          notify.KindAppointmentCanceled,
		AppointmentID: appt.ID,
		Recipients:    appt.Parties(),
		StartTime:     appt.StartTime,
		Reason:        string(why.Reason),
	})
	return res, nil
}

// MarkPaid settles a pay-later appointment and drops its payment timers.
func (o *Orchestrator) MarkPaid(ctx context.Context, id uuid.UUID) (*Result, error) {
	appt, err := o.deps.Coordinator.MarkPaid(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &Result{Appointment: appt}
	log := o.log.With().Str("appointment_id", id.String()).Logger()
	log.Info().Msg("payment settled")
	o.disarm(ctx, res, log, jobs.KindCancelUnpaid, jobs.KindPaymentReminder)
	return res, nil
}

func (o *Orchestrator) RecordAttendance(ctx context.Context, id, userID uuid.UUID, attended bool) (*appointment.Appointment, error) {
	return o.deps.Coordinator.RecordAttendance(ctx, id, userID, attended)
}

func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return o.deps.Reader.GetAppointment(ctx, id)
}

// CalendarDay returns the user's buckets for the calendar day containing t.
func (o *Orchestrator) CalendarDay(ctx context.Context, userID uuid.UUID, t time.Time) (*appointment.CalendarDay, error) {
	return o.deps.Reader.GetCalendarDay(ctx, userID, o.deps.Coordinator.Day(t))
}

// CalendarDate returns the user's buckets for the civil date of date.
func (o *Orchestrator) CalendarDate(ctx context.Context, userID uuid.UUID, date time.Time) (*appointment.CalendarDay, error) {
	y, m, d := date.Date()
	return o.deps.Reader.GetCalendarDay(ctx, userID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func (o *Orchestrator) expireHold(ctx context.Context, id uuid.UUID) {
	log := o.log.With().Str("appointment_id", id.String()).Logger()
	if _, err := o.deps.Coordinator.ReleaseHold(ctx, id); err != nil && !appointment.IsDomainError(err) {
		log.Warn().Err(err).Msg("failed to release expired hold")
		return
	}
	if err := o.deps.Jobs.CancelForAppointment(ctx, id); err != nil {
		log.Warn().Err(err).Msg("failed to disarm jobs of expired hold")
	}
}

func (o *Orchestrator) arm(ctx context.Context, res *Result, log zerolog.Logger, runAt time.Time, p jobs.Payload) {
	if _, err := o.deps.Jobs.Schedule(ctx, runAt, p); err != nil {
		log.Warn().Err(err).Str("job_kind", string(p.Kind())).Msg("failed to schedule job")
		if res != nil {
			res.warn("%s timer not scheduled", p.Kind())
		}
	}
}

func (o *Orchestrator) armIfFuture(ctx context.Context, res *Result, log zerolog.Logger, runAt time.Time, p jobs.Payload) {
	if !runAt.After(o.cfg.Now()) {
		return
	}
	o.arm(ctx, res, log, runAt, p)
}

func (o *Orchestrator) disarm(ctx context.Context, res *Result, log zerolog.Logger, kinds ...jobs.Kind) {
	if err := o.deps.Jobs.CancelForAppointment(ctx, res.Appointment.ID, kinds...); err != nil {
		log.Warn().Err(err).Msg("failed to disarm jobs")
		res.warn("some timers could not be canceled")
	}
}

func (o *Orchestrator) notify(ctx context.Context, res *Result, log zerolog.Logger, n notify.Notification) {
	n.SentAt = o.cfg.Now().UTC()
	if err := o.deps.Notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("failed to send notification")
		if res != nil {
			res.warn("%s notification not sent", n.Kind)
		}
	}
}
