package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/interval"
)

// Reader serves lookups outside of a transaction.
type Reader interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetCalendarDay returns an empty day when the user has nothing on it.
	GetCalendarDay(ctx context.Context, userID uuid.UUID, day time.Time) (*CalendarDay, error)
	ActiveHostRanges(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) ([]interval.TimeRange, error)
}

// Store is the transactional document store behind the coordinator. Every
// write to an appointment or a calendar day happens inside WithTx; fn either
// commits as a whole or not at all.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes available inside one transaction.
type Tx interface {
	// LockHost serializes hold creation for one provider until commit.
	LockHost(ctx context.Context, hostID uuid.UUID) error
	// LockAppointment loads the appointment and locks it until commit.
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasActiveOverlap(ctx context.Context, hostID uuid.UUID, r interval.TimeRange) (bool, error)

	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// AddToBucket is a no-op when id is already present.
	AddToBucket(ctx context.Context, userID uuid.UUID, day time.Time, b Bucket, id uuid.UUID) error
	RemoveFromBucket(ctx context.Context, userID uuid.UUID, day time.Time, b Bucket, id uuid.UUID) error
}
