package api

import (
	"time"
)

type BookRequest struct {
	ClientID      string    `json:"client_id"`
	HostID        string    `json:"host_id"`
	SessionTypeID string    `json:"session_type_id"`
	Start         time.Time `json:"start"`
}

type ConfirmRequest struct {
	PayLater        bool   `json:"pay_later"`
	Method          string `json:"method"`
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
	Text   string `json:"text"`
}

type AttendanceRequest struct {
	UserID   string `json:"user_id"`
	Attended bool   `json:"attended"`
}

type SlotsResponse struct {
	HostID      string      `json:"host_id"`
	SessionType string      `json:"session_type"`
	Date        string      `json:"date"`
	Slots       []SlotEntry `json:"slots"`
}

type SlotEntry struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
