package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/interval"
)

var ErrProviderNotFound = errors.New("provider availability not configured")

// Repository loads provider calendar rules.
type Repository interface {
	LoadSettings(ctx context.Context, hostID uuid.UUID) (Settings, error)
	// LoadRules returns the recurring rules plus the overrides and blocked
	// ranges intersecting window. Settings are left zero.
	LoadRules(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) (Rules, error)
}

// BusySource reports time already taken by held or confirmed appointments.
type BusySource interface {
	ActiveHostRanges(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) ([]interval.TimeRange, error)
}
