package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/interval"
	"github.com/hackgods/therapy-booking/internal/sessiontype"
)

// Service resolves slots from stored rules, treating the provider's active
// appointments as additional blocked ranges.
type Service struct {
	repo Repository
	busy BusySource
	log  zerolog.Logger
}

func NewService(repo Repository, busy BusySource, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		busy: busy,
		log:  log.With().Str("component", "availability").Logger(),
	}
}

// Location returns the provider's calendar location.
func (s *Service) Location(ctx context.Context, hostID uuid.UUID) (*time.Location, error) {
	settings, err := s.repo.LoadSettings(ctx, hostID)
	if err != nil {
		return nil, err
	}
	return settings.location(), nil
}

// Slots returns the bookable slots for the civil date of date.
func (s *Service) Slots(ctx context.Context, hostID uuid.UUID, session sessiontype.SessionType, date time.Time) ([]Slot, error) {
	settings, err := s.repo.LoadSettings(ctx, hostID)
	if err != nil {
		return nil, err
	}
	loc := settings.location()

	y, m, d := date.Date()
	window := interval.TimeRange{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(session.Duration()),
	}

	rules, err := s.repo.LoadRules(ctx, hostID, window)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	rules.Settings = settings

	taken, err := s.busy.ActiveHostRanges(ctx, hostID, window)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}
	rules.Blocked = append(rules.Blocked, taken...)

	slots := ResolveSlots(rules, session, date)

	s.log.Debug().
		Str("host_id", hostID.String()).
		Str("session_type", session.ID).
		Str("date", window.Start.Format(time.DateOnly)).
		Int("slots", len(slots)).
		Msg("resolved slots")

	return slots, nil
}

// IsBookable reports whether start is the start of a currently free slot.
func (s *Service) IsBookable(ctx context.Context, hostID uuid.UUID, session sessiontype.SessionType, start time.Time) (bool, error) {
	loc, err := s.Location(ctx, hostID)
	if err != nil {
		return false, err
	}

	slots, err := s.Slots(ctx, hostID, session, start.In(loc))
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}
