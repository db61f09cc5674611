package appointment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/sessiontype"
	"github.com/hackgods/therapy-booking/internal/testfixtures"
)

var standard = sessiontype.SessionType{ID: "standard", Name: "Standard", DurationMinutes: 30, Price: 9000, NoShowFee: 4500}

type fixture struct {
	store  *testfixtures.MemoryStore
	clock  *testfixtures.Clock
	coord  *appointment.Coordinator
	host   uuid.UUID
	client uuid.UUID
	start  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	store := testfixtures.NewMemoryStore()
	return &fixture{
		store: store,
		clock: clock,
		coord: appointment.NewCoordinator(store, appointment.CoordinatorConfig{
			HoldTTL: 10 * time.Minute,
			Now:     clock.Now,
		}),
		host:   uuid.New(),
		client: uuid.New(),
		start:  time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC),
	}
}

func (f *fixture) hold(t *testing.T) *appointment.Appointment {
	t.Helper()
	appt, err := f.coord.CreateHold(context.Background(), appointment.HoldRequest{
		ClientID:    f.client,
		HostID:      f.host,
		Start:       f.start,
		SessionType: standard,
	})
	if err != nil {
		t.Fatalf("CreateHold: %v", err)
	}
	return appt
}

func (f *fixture) day(t *testing.T, user uuid.UUID) *appointment.CalendarDay {
	t.Helper()
	d, err := f.store.GetCalendarDay(context.Background(), user, f.coord.Day(f.start))
	if err != nil {
		t.Fatalf("GetCalendarDay: %v", err)
	}
	return d
}

func (f *fixture) expectBucket(t *testing.T, id uuid.UUID, want appointment.Bucket) {
	t.Helper()
	for _, user := range []uuid.UUID{f.host, f.client} {
		got, ok := f.day(t, user).Contains(id)
		if want == "" {
			if ok {
				t.Fatalf("user %s still has %s in %s", user, id, got)
			}
			continue
		}
		if !ok || got != want {
			t.Fatalf("user %s bucket = %q (present %v), want %q", user, got, ok, want)
		}
	}
}

func TestCreateHold(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)

	if appt.Status != appointment.StatusTemporarilyReserved {
		t.Fatalf("status = %s", appt.Status)
	}
	if !appt.EndTime.Equal(f.start.Add(30 * time.Minute)) {
		t.Fatalf("end = %v", appt.EndTime)
	}
	if appt.Payment.ExpiresAt == nil || !appt.Payment.ExpiresAt.Equal(f.clock.Now().Add(10*time.Minute)) {
		t.Fatalf("hold expiry = %v", appt.Payment.ExpiresAt)
	}
	if appt.Payment.Amount != standard.Price {
		t.Fatalf("amount = %d", appt.Payment.Amount)
	}
	f.expectBucket(t, appt.ID, appointment.BucketTemporarilyReserved)
}

func TestCreateHoldRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.hold(t)

	f.start = f.start.Add(15 * time.Minute)
	f.client = uuid.New()
	_, err := f.coord.CreateHold(context.Background(), appointment.HoldRequest{
		ClientID: f.client, HostID: f.host, Start: f.start, SessionType: standard,
	})
	if !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatalf("err = %v, want ErrSlotUnavailable", err)
	}
	if !errors.Is(err, appointment.ErrConflict) {
		t.Fatalf("err = %v, want conflict category", err)
	}
	if f.store.Count() != 1 {
		t.Fatalf("stored %d appointments", f.store.Count())
	}
}

func TestCreateHoldAdjacentSlotsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	f.hold(t)

	f.start = f.start.Add(30 * time.Minute)
	f.hold(t)
	if f.store.Count() != 2 {
		t.Fatalf("stored %d appointments", f.store.Count())
	}
}

func TestCreateHoldValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  appointment.HoldRequest
		want error
	}{
		{"same party", appointment.HoldRequest{ClientID: f.host, HostID: f.host, Start: f.start, SessionType: standard}, appointment.ErrInvalidParty},
		{"past start", appointment.HoldRequest{ClientID: f.client, HostID: f.host, Start: f.clock.Now().Add(-time.Hour), SessionType: standard}, appointment.ErrStartInPast},
		{"no session", appointment.HoldRequest{ClientID: f.client, HostID: f.host, Start: f.start}, appointment.ErrUnknownSessionType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.CreateHold(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, appointment.ErrValidation) {
				t.Fatalf("err = %v, want validation category", err)
			}
		})
	}
}

func TestConfirmMovesBuckets(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)

	got, err := f.coord.Confirm(context.Background(), appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Status != appointment.StatusConfirmed || got.Payment.Status != appointment.PaymentPaid {
		t.Fatalf("got status %s payment %s", got.Status, got.Payment.Status)
	}
	if got.Payment.ExpiresAt != nil {
		t.Fatalf("paid appointment kept expiry %v", got.Payment.ExpiresAt)
	}
	f.expectBucket(t, appt.ID, appointment.BucketBooked)

	day := f.day(t, f.client)
	if len(day.TemporarilyReserved) != 0 {
		t.Fatalf("temporarily reserved = %v", day.TemporarilyReserved)
	}
}

func TestConfirmPayLater(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)
	deadline := f.start.Add(-24 * time.Hour)

	got, err := f.coord.Confirm(context.Background(), appt.ID, appointment.PaymentTerms{
		Method:   appointment.MethodPayLater,
		Deadline: &deadline,
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Payment.Status != appointment.PaymentPending {
		t.Fatalf("payment status = %s", got.Payment.Status)
	}
	if got.Payment.ExpiresAt == nil || !got.Payment.ExpiresAt.Equal(deadline) {
		t.Fatalf("deadline = %v", got.Payment.ExpiresAt)
	}

	paid, err := f.coord.MarkPaid(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if paid.Payment.Status != appointment.PaymentPaid {
		t.Fatalf("payment status = %s", paid.Payment.Status)
	}
	if _, err := f.coord.MarkPaid(context.Background(), appt.ID); !errors.Is(err, appointment.ErrPaymentNotPending) {
		t.Fatalf("second MarkPaid err = %v", err)
	}
}

func TestConfirmTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)
	ctx := context.Background()
	terms := appointment.PaymentTerms{Method: appointment.MethodCredits}

	if _, err := f.coord.Confirm(ctx, appt.ID, terms); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	_, err := f.coord.Confirm(ctx, appt.ID, terms)
	if !errors.Is(err, appointment.ErrAppointmentNotReservable) {
		t.Fatalf("err = %v, want ErrAppointmentNotReservable", err)
	}
	f.expectBucket(t, appt.ID, appointment.BucketBooked)
}

func TestConfirmAfterHoldExpired(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)
	f.clock.Advance(10 * time.Minute)

	_, err := f.coord.Confirm(context.Background(), appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard})
	if !errors.Is(err, appointment.ErrHoldExpired) {
		t.Fatalf("err = %v, want ErrHoldExpired", err)
	}
}

func TestConfirmRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)
	f.store.FailOn("AddToBucket", 2)

	_, err := f.coord.Confirm(context.Background(), appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard})
	if !errors.Is(err, appointment.ErrTransactionAborted) {
		t.Fatalf("err = %v, want ErrTransactionAborted", err)
	}

	stored, err := f.store.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if stored.Status != appointment.StatusTemporarilyReserved {
		t.Fatalf("status after failed confirm = %s", stored.Status)
	}
	f.expectBucket(t, appt.ID, appointment.BucketTemporarilyReserved)
}

func TestReleaseHoldRestoresCalendar(t *testing.T) {
	f := newFixture(t)
	before := f.day(t, f.client)

	appt := f.hold(t)
	if _, err := f.coord.ReleaseHold(context.Background(), appt.ID); err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}

	after := f.day(t, f.client)
	if len(after.TemporarilyReserved) != len(before.TemporarilyReserved) || len(after.Booked) != len(before.Booked) {
		t.Fatalf("calendar changed: before %+v after %+v", before, after)
	}
	if _, err := f.store.GetAppointment(context.Background(), appt.ID); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("GetAppointment err = %v", err)
	}
}

func TestReleaseHoldOfConfirmedIsRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)
	ctx := context.Background()
	if _, err := f.coord.Confirm(ctx, appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := f.coord.ReleaseHold(ctx, appt.ID); !errors.Is(err, appointment.ErrAppointmentNotReservable) {
		t.Fatalf("err = %v", err)
	}
	f.expectBucket(t, appt.ID, appointment.BucketBooked)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("hold is deleted", func(t *testing.T) {
		f := newFixture(t)
		appt := f.hold(t)
		got, err := f.coord.Cancel(ctx, appt.ID, appointment.Cancellation{Reason: appointment.ReasonClientCanceled})
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if got.Status != appointment.StatusCanceled {
			t.Fatalf("status = %s", got.Status)
		}
		if f.store.Count() != 0 {
			t.Fatalf("hold still stored")
		}
		f.expectBucket(t, appt.ID, "")
	})

	t.Run("confirmed stays booked", func(t *testing.T) {
		f := newFixture(t)
		appt := f.hold(t)
		if _, err := f.coord.Confirm(ctx, appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard}); err != nil {
			t.Fatalf("Confirm: %v", err)
		}
		got, err := f.coord.Cancel(ctx, appt.ID, appointment.Cancellation{Reason: appointment.ReasonOther, CustomText: "moving"})
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if got.Cancellation == nil || got.Cancellation.CustomText != "moving" {
			t.Fatalf("cancellation = %+v", got.Cancellation)
		}
		f.expectBucket(t, appt.ID, appointment.BucketBooked)

		if _, err := f.coord.Cancel(ctx, appt.ID, appointment.Cancellation{Reason: appointment.ReasonOther}); !errors.Is(err, appointment.ErrInvalidStatusTransition) {
			t.Fatalf("second cancel err = %v", err)
		}
	})

	t.Run("canceled slot can be held again", func(t *testing.T) {
		f := newFixture(t)
		appt := f.hold(t)
		if _, err := f.coord.Confirm(ctx, appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard}); err != nil {
			t.Fatalf("Confirm: %v", err)
		}
		if _, err := f.coord.Cancel(ctx, appt.ID, appointment.Cancellation{Reason: appointment.ReasonHostCanceled}); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		f.client = uuid.New()
		f.hold(t)
	})

	t.Run("invalid reason", func(t *testing.T) {
		f := newFixture(t)
		appt := f.hold(t)
		_, err := f.coord.Cancel(ctx, appt.ID, appointment.Cancellation{Reason: "bored"})
		if !errors.Is(err, appointment.ErrInvalidReason) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestRecordAttendanceAndComplete(t *testing.T) {
	f := newFixture(t)
	appt := f.hold(t)
	ctx := context.Background()
	if _, err := f.coord.Confirm(ctx, appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if _, err := f.coord.RecordAttendance(ctx, appt.ID, f.host, true); err != nil {
		t.Fatalf("host attendance: %v", err)
	}
	got, err := f.coord.RecordAttendance(ctx, appt.ID, f.client, true)
	if err != nil {
		t.Fatalf("client attendance: %v", err)
	}
	if !got.HostAttended || !got.ParticipantAttended() {
		t.Fatalf("attendance not recorded: %+v", got)
	}
	if _, err := f.coord.RecordAttendance(ctx, appt.ID, uuid.New(), true); !errors.Is(err, appointment.ErrNotAParty) {
		t.Fatalf("stranger err = %v", err)
	}

	done, err := f.coord.Complete(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != appointment.StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	f.expectBucket(t, appt.ID, appointment.BucketBooked)

	if _, err := f.coord.Complete(ctx, appt.ID); !errors.Is(err, appointment.ErrInvalidStatusTransition) {
		t.Fatalf("second Complete err = %v", err)
	}
}

func TestCancelUnpaid(t *testing.T) {
	ctx := context.Background()
	confirmPayLater := func(t *testing.T, f *fixture) *appointment.Appointment {
		t.Helper()
		appt := f.hold(t)
		deadline := f.start.Add(-time.Hour)
		if _, err := f.coord.Confirm(ctx, appt.ID, appointment.PaymentTerms{Method: appointment.MethodPayLater, Deadline: &deadline}); err != nil {
			t.Fatalf("Confirm: %v", err)
		}
		return appt
	}

	t.Run("pending payment is canceled", func(t *testing.T) {
		f := newFixture(t)
		appt := confirmPayLater(t, f)

		got, err := f.coord.CancelUnpaid(ctx, appt.ID)
		if err != nil {
			t.Fatalf("CancelUnpaid: %v", err)
		}
		if got.Status != appointment.StatusCanceled || got.Cancellation == nil || got.Cancellation.Reason != appointment.ReasonNonPayment {
			t.Fatalf("appointment = %s %+v", got.Status, got.Cancellation)
		}
		f.expectBucket(t, appt.ID, appointment.BucketBooked)
	})

	t.Run("settled payment wins", func(t *testing.T) {
		f := newFixture(t)
		appt := confirmPayLater(t, f)
		if _, err := f.coord.MarkPaid(ctx, appt.ID); err != nil {
			t.Fatalf("MarkPaid: %v", err)
		}

		if _, err := f.coord.CancelUnpaid(ctx, appt.ID); !errors.Is(err, appointment.ErrPaymentNotPending) {
			t.Fatalf("err = %v, want ErrPaymentNotPending", err)
		}
		a, _ := f.store.GetAppointment(ctx, appt.ID)
		if a.Status != appointment.StatusConfirmed || a.Cancellation != nil {
			t.Fatalf("paid appointment changed: %s %+v", a.Status, a.Cancellation)
		}
	})

	t.Run("hold is not a confirmed appointment", func(t *testing.T) {
		f := newFixture(t)
		appt := f.hold(t)
		if _, err := f.coord.CancelUnpaid(ctx, appt.ID); !errors.Is(err, appointment.ErrInvalidStatusTransition) {
			t.Fatalf("err = %v, want ErrInvalidStatusTransition", err)
		}
	})
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		host, guest bool
		wantStatus  appointment.Status
		wantReason  appointment.CancellationReason
	}{
		{"both attended", true, true, appointment.StatusCompleted, ""},
		{"nobody came", false, false, appointment.StatusCanceled, appointment.ReasonNoShowBoth},
		{"host missing", false, true, appointment.StatusCanceled, appointment.ReasonNoShowHost},
		{"participant missing", true, false, appointment.StatusCanceled, appointment.ReasonNoShowParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			appt := f.hold(t)
			if _, err := f.coord.Confirm(ctx, appt.ID, appointment.PaymentTerms{Method: appointment.MethodCard}); err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if _, err := f.coord.RecordAttendance(ctx, appt.ID, f.host, tt.host); err != nil {
				t.Fatalf("host attendance: %v", err)
			}
			if _, err := f.coord.RecordAttendance(ctx, appt.ID, f.client, tt.guest); err != nil {
				t.Fatalf("client attendance: %v", err)
			}

			got, err := f.coord.Resolve(ctx, appt.ID)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Fatalf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantReason == "" && got.Cancellation != nil {
				t.Fatalf("completed appointment has cancellation %+v", got.Cancellation)
			}
			if tt.wantReason != "" && (got.Cancellation == nil || got.Cancellation.Reason != tt.wantReason) {
				t.Fatalf("cancellation = %+v, want %s", got.Cancellation, tt.wantReason)
			}
			f.expectBucket(t, appt.ID, appointment.BucketBooked)

			if _, err := f.coord.Resolve(ctx, appt.ID); !errors.Is(err, appointment.ErrInvalidStatusTransition) {
				t.Fatalf("second Resolve err = %v", err)
			}
		})
	}
}
