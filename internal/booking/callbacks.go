package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/jobs"
	"github.com/hackgods/therapy-booking/internal/notify"
	"github.com/hackgods/therapy-booking/internal/payment"
)

// HandleJob runs a fired timer. Every branch re-reads the appointment and
// does nothing when it is gone or no longer in the state the timer was
// armed for, so duplicate and late deliveries are harmless. A returned
// error asks for redelivery.
func (o *Orchestrator) HandleJob(ctx context.Context, p jobs.Payload) error {
	log := o.log.With().
		Str("job_kind", string(p.Kind())).
		Str("appointment_id", p.AppointmentID().String()).
		Logger()

	appt, err := o.deps.Reader.GetAppointment(ctx, p.AppointmentID())
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			log.Debug().Msg("appointment gone, ignoring job")
			return nil
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	switch p := p.(type) {
	case jobs.HoldExpiry:
		return o.onHoldExpiry(ctx, log, appt)
	case jobs.StatusUpdate:
		return o.onStatusUpdate(ctx, log, appt)
	case jobs.CancelUnpaid:
		return o.onCancelUnpaid(ctx, log, appt)
	case jobs.PaymentReminder:
		if appt.Status != appointment.StatusConfirmed || appt.Payment.Status != appointment.PaymentPending {
			return skip(log, appt)
		}
		return o.remind(ctx, log, appt, notify.Notification{
			Kind:       notify.KindPaymentReminder,
			Recipients: []uuid.UUID{appt.ClientID()},
			Before:     p.Before,
			Deadline:   appt.Payment.ExpiresAt,
		})
	case jobs.EmailReminder:
		if appt.Status != appointment.StatusConfirmed {
			return skip(log, appt)
		}
		return o.remind(ctx, log, appt, notify.Notification{
			Kind:       notify.KindEmailReminder,
			Recipients: appt.Parties(),
			Before:     p.Before,
		})
	case jobs.SMSReminder:
		if appt.Status != appointment.StatusConfirmed {
			return skip(log, appt)
		}
		return o.remind(ctx, log, appt, notify.Notification{
			Kind:       notify.KindSMSReminder,
			Recipients: appt.Parties(),
			Before:     p.Before,
		})
	default:
		return fmt.Errorf("%w: %T", jobs.ErrUnknownKind, p)
	}
}

func skip(log zerolog.Logger, appt *appointment.Appointment) error {
	log.Debug().Str("status", string(appt.Status)).Msg("appointment not in expected state, ignoring job")
	return nil
}

// ignorable reports whether a coordinator error means another actor already
// moved the appointment on.
func ignorable(err error) bool {
	return errors.Is(err, appointment.ErrAppointmentNotFound) ||
		errors.Is(err, appointment.ErrAppointmentNotReservable) ||
		errors.Is(err, appointment.ErrInvalidStatusTransition) ||
		errors.Is(err, appointment.ErrPaymentNotPending)
}

func (o *Orchestrator) onHoldExpiry(ctx context.Context, log zerolog.Logger, appt *appointment.Appointment) error {
	if appt.Status != appointment.StatusTemporarilyReserved {
		return skip(log, appt)
	}
	if _, err := o.deps.Coordinator.ReleaseHold(ctx, appt.ID); err != nil {
		if ignorable(err) {
			return nil
		}
		return err
	}
	log.Info().Msg("hold expired")
	o.disarmQuietly(ctx, log, appt.ID)
	return nil
}

// onStatusUpdate resolves a session at its end time. The outcome is decided
// by the coordinator from the locked row, so attendance recorded after this
// job loaded its snapshot still counts.
func (o *Orchestrator) onStatusUpdate(ctx context.Context, log zerolog.Logger, appt *appointment.Appointment) error {
	if appt.Status != appointment.StatusConfirmed {
		return skip(log, appt)
	}

	resolved, err := o.deps.Coordinator.Resolve(ctx, appt.ID)
	if err != nil {
		if ignorable(err) {
			return nil
		}
		return err
	}
	o.disarmQuietly(ctx, log, resolved.ID)

	if resolved.Status == appointment.StatusCompleted {
		log.Info().Msg("appointment completed")
		return nil
	}

	reason := resolved.Cancellation.Reason
	log.Info().Str("reason", string(reason)).Msg("no-show recorded")

	// Only the delivery whose transaction performed the cancel gets here,
	// so the fee is attempted once.
	if reason == appointment.ReasonNoShowParticipant {
		o.chargeNoShow(ctx, log, resolved)
	}
	o.notify(ctx, nil, log, notify.Notification{
		Kind:          notify.KindAppointmentCanceled,
		AppointmentID: resolved.ID,
		Recipients:    resolved.Parties(),
		StartTime:     resolved.StartTime,
		Reason:        string(reason),
	})
	return nil
}

func (o *Orchestrator) chargeNoShow(ctx context.Context, log zerolog.Logger, appt *appointment.Appointment) {
	st, err := o.deps.Catalog.Get(appt.SessionTypeID)
	if err != nil {
		log.Error().Err(err).Str("session_type", appt.SessionTypeID).Msg("no-show fee skipped: unknown session type")
		return
	}
	if !st.ChargesNoShow() {
		return
	}

	charge, err := o.deps.Payments.ChargeStoredMethod(ctx, payment.ChargeRequest{
		CustomerID:      appt.Payment.CustomerID,
		PaymentMethodID: appt.Payment.PaymentMethodID,
		Amount:          st.NoShowFee,
		Description:     fmt.Sprintf("no-show fee for %s session", st.Name),
		IdempotencyKey:  "no-show:" + appt.ID.String(),
	})
	if err != nil {
		log.Error().Err(err).Int64("amount", st.NoShowFee).Msg("no-show fee charge failed")
		return
	}
	log.Info().Str("charge_id", charge.ID).Int64("amount", st.NoShowFee).Msg("no-show fee charged")
}

func (o *Orchestrator) onCancelUnpaid(ctx context.Context, log zerolog.Logger, appt *appointment.Appointment) error {
	if appt.Status != appointment.StatusConfirmed || appt.Payment.Status != appointment.PaymentPending {
		return skip(log, appt)
	}

	canceled, err := o.deps.Coordinator.CancelUnpaid(ctx, appt.ID)
	if err != nil {
		if ignorable(err) {
			return nil
		}
		return err
	}
	log.Info().Msg("canceled for non-payment")
	o.disarmQuietly(ctx, log, appt.ID)
	o.notify(ctx, nil, log, notify.Notification{
		Kind:          notify.KindAppointmentCanceled,
		AppointmentID: canceled.ID,
		Recipients:    canceled.Parties(),
		StartTime:     canceled.StartTime,
		Reason:        string(appointment.ReasonNonPayment),
	})
	return nil
}

func (o *Orchestrator) remind(ctx context.Context, log zerolog.Logger, appt *appointment.Appointment, n notify.Notification) error {
	n.AppointmentID = appt.ID
	n.StartTime = appt.StartTime
	o.notify(ctx, nil, log, n)
	return nil
}

func (o *Orchestrator) disarmQuietly(ctx context.Context, log zerolog.Logger, id uuid.UUID) {
	if err := o.deps.Jobs.CancelForAppointment(ctx, id); err != nil {
		log.Warn().Err(err).Msg("failed to disarm remaining jobs")
	}
}
