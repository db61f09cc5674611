package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/availability"
	"github.com/hackgods/therapy-booking/internal/booking"
)

// BookingService is the orchestrator surface the HTTP API needs.
type BookingService interface {
	AvailableSlots(ctx context.Context, hostID uuid.UUID, sessionTypeID string, date time.Time) ([]availability.Slot, error)
	Book(ctx context.Context, req booking.BookRequest) (*booking.Result, error)
	Confirm(ctx context.Context, id uuid.UUID, choice booking.PaymentChoice) (*booking.Result, error)
	Abandon(ctx context.Context, id uuid.UUID) (*booking.Result, error)
	Cancel(ctx context.Context, id uuid.UUID, why appointment.Cancellation) (*booking.Result, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*booking.Result, error)
	RecordAttendance(ctx context.Context, id, userID uuid.UUID, attended bool) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CalendarDay(ctx context.Context, userID uuid.UUID, t time.Time) (*appointment.CalendarDay, error)
	CalendarDate(ctx context.Context, userID uuid.UUID, date time.Time) (*appointment.CalendarDay, error)
}

type RouterConfig struct {
	Service BookingService
	Checks  []Check
	Log     zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/providers/{hostID}/slots", listSlotsHandler(cfg.Service))
	r.Get("/users/{id}/calendar", calendarHandler(cfg.Service))

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/{id}/confirm", confirmHandler(cfg.Service))
		r.Post("/{id}/abandon", abandonHandler(cfg.Service))
		r.Post("/{id}/cancel", cancelHandler(cfg.Service))
		r.Post("/{id}/attendance", attendanceHandler(cfg.Service))
		r.Post("/{id}/paid", markPaidHandler(cfg.Service))
	})

	return r
}
