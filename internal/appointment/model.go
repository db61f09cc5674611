package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusTemporarilyReserved Status = "temporarily-reserved"
	StatusConfirmed           Status = "confirmed"
	StatusCompleted           Status = "completed"
	StatusCanceled            Status = "canceled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Active reports whether the appointment occupies the provider's time.
func (s Status) Active() bool {
	return s == StatusTemporarilyReserved || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type PaymentMethod string

const (
	MethodNone     PaymentMethod = ""
	MethodCard     PaymentMethod = "card"
	MethodCredits  PaymentMethod = "credits"
	MethodPayLater PaymentMethod = "pay-later"
)

type CancellationReason string

const (
	ReasonNoShowBoth        CancellationReason = "no-show-both"
	ReasonNoShowHost        CancellationReason = "no-show-host"
	ReasonNoShowParticipant CancellationReason = "no-show-participant"
	ReasonNonPayment        CancellationReason = "non-payment"
	ReasonClientCanceled    CancellationReason = "client-canceled"
	ReasonHostCanceled      CancellationReason = "host-canceled"
	ReasonOther             CancellationReason = "other"
)

func (r CancellationReason) Valid() bool {
	switch r {
	case ReasonNoShowBoth, ReasonNoShowHost, ReasonNoShowParticipant,
		ReasonNonPayment, ReasonClientCanceled, ReasonHostCanceled, ReasonOther:
		return true
	}
	return false
}

// Payment tracks how and whether the session has been paid. ExpiresAt is
// the hold deadline while temporarily reserved and the pay-later deadline
// once confirmed.
type Payment struct {
	Method          PaymentMethod `json:"method"`
	Status          PaymentStatus `json:"status"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	Amount          int64         `json:"amount"`
	CustomerID      string        `json:"customer_id,omitempty"`
	PaymentMethodID string        `json:"payment_method_id,omitempty"`
}

type Cancellation struct {
	Reason     CancellationReason `json:"reason"`
	CustomText string             `json:"custom_text,omitempty"`
}

type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	Attended bool      `json:"attended"`
}

type Appointment struct {
	ID            uuid.UUID     `json:"id"`
	HostID        uuid.UUID     `json:"host_id"`
	HostAttended  bool          `json:"host_attended"`
	Participants  []Participant `json:"participants"`
	SessionTypeID string        `json:"session_type_id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Status        Status        `json:"status"`
	Payment       Payment       `json:"payment"`
	Cancellation  *Cancellation `json:"cancellation,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ClientID returns the single participant's user id.
func (a *Appointment) ClientID() uuid.UUID {
	if len(a.Participants) == 0 {
		return uuid.Nil
	}
	return a.Participants[0].UserID
}

// ParticipantAttended reports the client's attendance flag.
func (a *Appointment) ParticipantAttended() bool {
	return len(a.Participants) > 0 && a.Participants[0].Attended
}

// NoShow reports which party missed the session according to the
// attendance flags. ok is false when both attended.
func (a *Appointment) NoShow() (reason CancellationReason, ok bool) {
	host, participant := a.HostAttended, a.ParticipantAttended()
	switch {
	case host && participant:
		return "", false
	case !host && !participant:
		return ReasonNoShowBoth, true
	case !host:
		return ReasonNoShowHost, true
	default:
		return ReasonNoShowParticipant, true
	}
}

// Parties returns the host followed by every participant.
func (a *Appointment) Parties() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(a.Participants)+1)
	out = append(out, a.HostID)
	for _, p := range a.Participants {
		out = append(out, p.UserID)
	}
	return out
}

// Bucket names one of the per-day appointment id sets of a user.
type Bucket string

const (
	BucketTemporarilyReserved Bucket = "temporarily_reserved"
	BucketBooked              Bucket = "booked"
)

// CalendarDay is the denormalized per-user, per-day appointment index.
type CalendarDay struct {
	UserID              uuid.UUID   `json:"user_id"`
	Day                 time.Time   `json:"day"`
	TemporarilyReserved []uuid.UUID `json:"temporarily_reserved"`
	Booked              []uuid.UUID `json:"booked"`
}

// Contains reports which bucket holds id, if any.
func (d *CalendarDay) Contains(id uuid.UUID) (Bucket, bool) {
	for _, x := range d.TemporarilyReserved {
		if x == id {
			return BucketTemporarilyReserved, true
		}
	}
	for _, x := range d.Booked {
		if x == id {
			return BucketBooked, true
		}
	}
	return "", false
}

// DayOf truncates t to its calendar day in loc, expressed as UTC midnight.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
