package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/api"
	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/availability"
	"github.com/hackgods/therapy-booking/internal/booking"
)

type fakeService struct {
	err error

	slots       []availability.Slot
	appt        *appointment.Appointment
	day         *appointment.CalendarDay
	warnings    []string
	lastBook    booking.BookRequest
	lastChoice  booking.PaymentChoice
	lastCancel  appointment.Cancellation
	lastSlotDay time.Time
	lastAt      time.Time
}

func (f *fakeService) result() (*booking.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &booking.Result{Appointment: f.appt, Warnings: f.warnings}, nil
}

func (f *fakeService) AvailableSlots(_ context.Context, _ uuid.UUID, _ string, date time.Time) ([]availability.Slot, error) {
	f.lastSlotDay = date
	return f.slots, f.err
}

func (f *fakeService) Book(_ context.Context, req booking.BookRequest) (*booking.Result, error) {
	f.lastBook = req
	return f.result()
}

func (f *fakeService) Confirm(_ context.Context, _ uuid.UUID, choice booking.PaymentChoice) (*booking.Result, error) {
	f.lastChoice = choice
	return f.result()
}

func (f *fakeService) Abandon(context.Context, uuid.UUID) (*booking.Result, error) {
	return f.result()
}

func (f *fakeService) Cancel(_ context.Context, _ uuid.UUID, why appointment.Cancellation) (*booking.Result, error) {
	f.lastCancel = why
	return f.result()
}

func (f *fakeService) MarkPaid(context.Context, uuid.UUID) (*booking.Result, error) {
	return f.result()
}

func (f *fakeService) RecordAttendance(context.Context, uuid.UUID, uuid.UUID, bool) (*appointment.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) Get(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) CalendarDay(_ context.Context, _ uuid.UUID, t time.Time) (*appointment.CalendarDay, error) {
	f.lastAt = t
	return f.day, f.err
}

func (f *fakeService) CalendarDate(context.Context, uuid.UUID, time.Time) (*appointment.CalendarDay, error) {
	return f.day, f.err
}

func newServer(t *testing.T, svc api.BookingService, checks ...api.Check) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Service: svc,
		Checks:  checks,
		Log:     zerolog.Nop(),
		Env:     "test",
		Version: "dev",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var e api.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode error body %q: %v", data, err)
	}
	return e.Error
}

func sampleAppointment() *appointment.Appointment {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	return &appointment.Appointment{
		ID:            uuid.New(),
		HostID:        uuid.New(),
		Participants:  []appointment.Participant{{UserID: uuid.New()}},
		SessionTypeID: "intro-50",
		StartTime:     start,
		EndTime:       start.Add(50 * time.Minute),
		Status:        appointment.StatusTemporarilyReserved,
	}
}

func TestBookHandler(t *testing.T) {
	svc := &fakeService{appt: sampleAppointment()}
	srv := newServer(t, svc)

	clientID, hostID := uuid.New(), uuid.New()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	resp, data := do(t, http.MethodPost, srv.URL+"/appointments", api.BookRequest{
		ClientID:      clientID.String(),
		HostID:        hostID.String(),
		SessionTypeID: "intro-50",
		Start:         start,
	})

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if svc.lastBook.ClientID != clientID || svc.lastBook.HostID != hostID || !svc.lastBook.Start.Equal(start) {
		t.Errorf("service got %+v", svc.lastBook)
	}

	var res booking.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Appointment == nil || res.Appointment.ID != svc.appt.ID {
		t.Errorf("response appointment = %+v", res.Appointment)
	}
}

func TestBookHandlerRejectsBadInput(t *testing.T) {
	srv := newServer(t, &fakeService{})

	tests := []struct {
		name string
		body any
		code string
	}{
		{"not json", "nope", "invalid_request_body"},
		{"bad client", api.BookRequest{ClientID: "x", HostID: uuid.NewString(), Start: time.Now()}, "invalid_client_id"},
		{"bad host", api.BookRequest{ClientID: uuid.NewString(), HostID: "x", Start: time.Now()}, "invalid_host_id"},
		{"no start", api.BookRequest{ClientID: uuid.NewString(), HostID: uuid.NewString()}, "invalid_start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, http.MethodPost, srv.URL+"/appointments", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if got := errorCode(t, data); got != tt.code {
				t.Errorf("error = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{appointment.ErrUnknownSessionType, http.StatusBadRequest, "validation_failed"},
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{availability.ErrProviderNotFound, http.StatusNotFound, "provider_not_found"},
		{fmt.Errorf("wrapped: %w", appointment.ErrSlotUnavailable), http.StatusConflict, "slot_unavailable"},
		{appointment.ErrHoldExpired, http.StatusConflict, "hold_expired"},
		{appointment.ErrAppointmentNotReservable, http.StatusConflict, "appointment_not_reservable"},
		{appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{appointment.ErrPaymentNotPending, http.StatusConflict, "payment_not_pending"},
		{fmt.Errorf("confirm: %w: %w", appointment.ErrTransactionAborted, io.ErrUnexpectedEOF), http.StatusInternalServerError, "transaction_aborted"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := newServer(t, &fakeService{err: tt.err})
			resp, data := do(t, http.MethodPost, srv.URL+"/appointments/"+uuid.NewString()+"/abandon", nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := errorCode(t, data); got != tt.code {
				t.Errorf("error = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestConfirmHandlerPassesPaymentChoice(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = appointment.StatusConfirmed
	svc := &fakeService{appt: appt, warnings: []string{"arm status-update: queue down"}}
	srv := newServer(t, svc)

	resp, data := do(t, http.MethodPost, srv.URL+"/appointments/"+appt.ID.String()+"/confirm", api.ConfirmRequest{
		PayLater:   true,
		Method:     "pay-later",
		CustomerID: "cus_1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if !svc.lastChoice.PayLater || svc.lastChoice.Method != appointment.MethodPayLater || svc.lastChoice.CustomerID != "cus_1" {
		t.Errorf("choice = %+v", svc.lastChoice)
	}

	var res booking.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want the degraded notice", res.Warnings)
	}
}

func TestCancelHandler(t *testing.T) {
	appt := sampleAppointment()
	svc := &fakeService{appt: appt}
	srv := newServer(t, svc)

	resp, _ := do(t, http.MethodPost, srv.URL+"/appointments/"+appt.ID.String()+"/cancel", api.CancelRequest{
		Reason: string(appointment.ReasonOther),
		Text:   "moving house",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if svc.lastCancel.Reason != appointment.ReasonOther || svc.lastCancel.CustomText != "moving house" {
		t.Errorf("cancellation = %+v", svc.lastCancel)
	}
}

func TestAppointmentIDMustBeUUID(t *testing.T) {
	srv := newServer(t, &fakeService{})

	resp, data := do(t, http.MethodGet, srv.URL+"/appointments/not-a-uuid", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := errorCode(t, data); got != "invalid_id" {
		t.Errorf("error = %q", got)
	}
}

func TestListSlotsHandler(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	svc := &fakeService{slots: []availability.Slot{
		{Start: start, End: start.Add(50 * time.Minute)},
		{Start: start.Add(15 * time.Minute), End: start.Add(65 * time.Minute)},
	}}
	srv := newServer(t, svc)
	hostID := uuid.New()

	t.Run("ok", func(t *testing.T) {
		resp, data := do(t, http.MethodGet, srv.URL+"/providers/"+hostID.String()+"/slots?date=2024-03-04&session_type=intro-50", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, data)
		}
		var out api.SlotsResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.HostID != hostID.String() || out.Date != "2024-03-04" || len(out.Slots) != 2 {
			t.Errorf("response = %+v", out)
		}
		if !svc.lastSlotDay.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("date passed = %v", svc.lastSlotDay)
		}
	})

	t.Run("bad date", func(t *testing.T) {
		resp, data := do(t, http.MethodGet, srv.URL+"/providers/"+hostID.String()+"/slots?date=04/03/2024&session_type=intro-50", nil)
		if resp.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_date" {
			t.Errorf("status = %d, body %s", resp.StatusCode, data)
		}
	})

	t.Run("missing session type", func(t *testing.T) {
		resp, data := do(t, http.MethodGet, srv.URL+"/providers/"+hostID.String()+"/slots?date=2024-03-04", nil)
		if resp.StatusCode != http.StatusBadRequest || errorCode(t, data) != "missing_session_type" {
			t.Errorf("status = %d, body %s", resp.StatusCode, data)
		}
	})
}

func TestCalendarHandler(t *testing.T) {
	userID := uuid.New()
	id := uuid.New()
	svc := &fakeService{day: &appointment.CalendarDay{
		UserID:              userID,
		Day:                 time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		TemporarilyReserved: []uuid.UUID{},
		Booked:              []uuid.UUID{id},
	}}
	srv := newServer(t, svc)

	resp, data := do(t, http.MethodGet, srv.URL+"/users/"+userID.String()+"/calendar?date=2024-03-04", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if !bytes.Contains(data, []byte(id.String())) {
		t.Errorf("calendar body %s does not list %s", data, id)
	}
}

func TestCalendarHandlerByInstant(t *testing.T) {
	userID := uuid.New()
	svc := &fakeService{day: &appointment.CalendarDay{UserID: userID}}
	srv := newServer(t, svc)

	resp, data := do(t, http.MethodGet, srv.URL+"/users/"+userID.String()+"/calendar?at=2024-03-04T23:30:00-05:00", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	want := time.Date(2024, 3, 5, 4, 30, 0, 0, time.UTC)
	if !svc.lastAt.Equal(want) {
		t.Errorf("instant passed = %v, want %v", svc.lastAt, want)
	}

	resp, data = do(t, http.MethodGet, srv.URL+"/users/"+userID.String()+"/calendar?at=tomorrow", nil)
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_at" {
		t.Errorf("status = %d, body %s", resp.StatusCode, data)
	}
}
