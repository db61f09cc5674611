package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/availability"
	"github.com/hackgods/therapy-booking/internal/booking"
)

func listSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostID, ok := uuidParam(w, r, "hostID")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}
		sessionType := r.URL.Query().Get("session_type")
		if sessionType == "" {
			writeError(w, r, http.StatusBadRequest, "missing_session_type", "session_type is required")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), hostID, sessionType, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := SlotsResponse{
			HostID:      hostID.String(),
			SessionType: sessionType,
			Date:        date.Format(time.DateOnly),
			Slots:       make([]SlotEntry, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotEntry{Start: s.Start, End: s.End})
		}
		writeJSON(w, r, http.StatusOK, resp)
	}
}

func bookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}
		hostID, err := uuid.Parse(req.HostID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_host_id", "host_id must be a valid UUID")
			return
		}
		if req.Start.IsZero() {
			writeError(w, r, http.StatusBadRequest, "invalid_start", "start is required")
			return
		}

		res, err := svc.Book(r.Context(), booking.BookRequest{
			ClientID:      clientID,
			HostID:        hostID,
			SessionTypeID: req.SessionTypeID,
			Start:         req.Start,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, res)
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, appt)
	}
}

func confirmHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req ConfirmRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.Confirm(r.Context(), id, booking.PaymentChoice{
			PayLater:        req.PayLater,
			Method:          appointment.PaymentMethod(req.Method),
			CustomerID:      req.CustomerID,
			PaymentMethodID: req.PaymentMethodID,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func abandonHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		res, err := svc.Abandon(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func cancelHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.Cancel(r.Context(), id, appointment.Cancellation{
			Reason:     appointment.CancellationReason(req.Reason),
			CustomText: req.Text,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func attendanceHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req AttendanceRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		appt, err := svc.RecordAttendance(r.Context(), id, userID, req.Attended)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, appt)
	}
}

func markPaidHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		res, err := svc.MarkPaid(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func calendarHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var (
			day *appointment.CalendarDay
			err error
		)
		// at names an instant, e.g. an appointment start, and selects the
		// calendar day it is filed under.
		if raw := r.URL.Query().Get("at"); raw != "" {
			at, perr := time.Parse(time.RFC3339, raw)
			if perr != nil {
				writeError(w, r, http.StatusBadRequest, "invalid_at", "at must be an RFC 3339 timestamp")
				return
			}
			day, err = svc.CalendarDay(r.Context(), userID, at)
		} else {
			date, ok := dateQuery(w, r)
			if !ok {
				return
			}
			day, err = svc.CalendarDate(r.Context(), userID, date)
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, day)
	}
}

// Helpers

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func dateQuery(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, r, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, availability.ErrProviderNotFound):
		writeError(w, r, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, r, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrHoldExpired):
		writeError(w, r, http.StatusConflict, "hold_expired", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotReservable):
		writeError(w, r, http.StatusConflict, "appointment_not_reservable", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, r, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrPaymentNotPending):
		writeError(w, r, http.StatusConflict, "payment_not_pending", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrTransactionAborted):
		writeError(w, r, http.StatusInternalServerError, "transaction_aborted", "the operation was rolled back and can be retried")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, details string) {
	writeJSON(w, r, status, ErrorResponse{Error: code, Details: details})
}
