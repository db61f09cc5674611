// Package payment talks to the external payment gateway. Only stored-method
// charges are needed here: the no-show fee.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

var (
	ErrDeclined = errors.New("charge declined")
	ErrGateway  = errors.New("payment gateway error")
)

type ChargeRequest struct {
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description,omitempty"`
	// IdempotencyKey makes redelivered charges collapse into one on the
	// gateway side.
	IdempotencyKey string `json:"-"`
}

type Charge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = nil

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		log:     log.With().Str("component", "payment").Logger(),
	}
}

// ChargeStoredMethod charges a previously captured payment method. 5xx and
// transport failures are retried; a 4xx answer is a decline.
func (c *Client) ChargeStoredMethod(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		return nil, fmt.Errorf("%w: no stored payment method", ErrDeclined)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode charge: %w", err)
	}

	httpReq, err := retryablehttp.NewRequest(http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq = httpReq.WithContext(ctx)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrGateway, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ch Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: decode charge: %w", ErrGateway, err)
		}
		c.log.Info().
			Str("charge_id", ch.ID).
			Int64("amount", req.Amount).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("stored method charged")
		return &ch, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrDeclined, resp.StatusCode, strings.TrimSpace(string(raw)))
	default:
		return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
}
