package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(url string) *Client {
	return NewClient(Config{
		BaseURL:      url,
		APIKey:       "sk_test",
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, zerolog.Nop())
}

var validCharge = ChargeRequest{
	CustomerID:      "cus_1",
	PaymentMethodID: "pm_1",
	Amount:          4500,
	IdempotencyKey:  "no-show:abc",
}

func TestChargeStoredMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/charges" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "no-show:abc" {
			t.Errorf("idempotency key = %q", r.Header.Get("Idempotency-Key"))
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var req ChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount != 4500 {
			t.Errorf("body = %+v, %v", req, err)
		}
		_ = json.NewEncoder(w).Encode(Charge{ID: "ch_1", Status: "succeeded", Amount: req.Amount})
	}))
	defer srv.Close()

	ch, err := testClient(srv.URL).ChargeStoredMethod(context.Background(), validCharge)
	if err != nil {
		t.Fatalf("ChargeStoredMethod: %v", err)
	}
	if ch.ID != "ch_1" || ch.Amount != 4500 {
		t.Fatalf("charge = %+v", ch)
	}
}

func TestChargeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Charge{ID: "ch_2", Status: "succeeded"})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).ChargeStoredMethod(context.Background(), validCharge); err != nil {
		t.Fatalf("ChargeStoredMethod: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestChargeDeclined(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "card expired", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChargeStoredMethod(context.Background(), validCharge)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("declines must not be retried, calls = %d", calls.Load())
	}
}

func TestChargeRequiresStoredMethod(t *testing.T) {
	req := validCharge
	req.PaymentMethodID = ""
	_, err := testClient("http://127.0.0.1:0").ChargeStoredMethod(context.Background(), req)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v", err)
	}
}
