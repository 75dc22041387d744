package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type CaptureInput struct {
	AppointmentID  int64
	ClientID       int64
	AmountCents    int64
	IdempotencyKey string
}

type CaptureResult struct {
	Reference string
}

// PaymentGateway is the external card-capture collaborator. Callers must
// never hold a storage lock across these calls.
type PaymentGateway interface {
	Capture(ctx context.Context, input CaptureInput) (*CaptureResult, error)
	Refund(ctx context.Context, reference string, amountCents int64) error
}

type CreateSubscriptionInput struct {
	ClientID        int64
	OfferingID      int64
	Interval        string
	AmountCents     int64
	FirstCycleStart time.Time
}

type Subscription struct {
	ID              string    `json:"id"`
	CurrentCycleEnd time.Time `json:"current_cycle_end"`
}

// BillingGateway is the external recurring-billing collaborator.
type BillingGateway interface {
	HasPaymentMethod(ctx context.Context, clientID int64) (bool, error)
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*Subscription, error)
}

// PaymentAPIClient talks to the hosted payment platform over HTTP and
// implements both gateway interfaces. A capture that times out is an
// ambiguous result: it surfaces as PaymentTimeoutError carrying the
// idempotency key the platform can be queried with later.
type PaymentAPIClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewPaymentAPIClient(baseURL, secretKey string, timeout time.Duration) *PaymentAPIClient {
	return &PaymentAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *PaymentAPIClient) Capture(ctx context.Context, input CaptureInput) (*CaptureResult, error) {
	payload := map[string]any{
		"appointment_id":  input.AppointmentID,
		"client_id":       input.ClientID,
		"amount_cents":    input.AmountCents,
		"idempotency_key": input.IdempotencyKey,
	}

	var response struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := c.post(ctx, "/v1/captures", payload, &response); err != nil {
		if isTimeout(err) {
			return nil, &PaymentTimeoutError{ExternalReference: input.IdempotencyKey}
		}
		return nil, err
	}
	if response.Status != "captured" {
		return nil, fmt.Errorf("%w: status %s", ErrPaymentDeclined, response.Status)
	}
	if response.Reference == "" {
		return nil, fmt.Errorf("capture reference missing from response")
	}
	return &CaptureResult{Reference: response.Reference}, nil
}

func (c *PaymentAPIClient) Refund(ctx context.Context, reference string, amountCents int64) error {
	payload := map[string]any{
		"reference":    reference,
		"amount_cents": amountCents,
	}
	return c.post(ctx, "/v1/refunds", payload, nil)
}

func (c *PaymentAPIClient) HasPaymentMethod(ctx context.Context, clientID int64) (bool, error) {
	url := fmt.Sprintf("%s/v1/customers/%d/payment-methods", c.baseURL, clientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build payment method request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("list payment methods: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, fmt.Errorf("list payment methods: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		PaymentMethods []json.RawMessage `json:"payment_methods"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, fmt.Errorf("decode payment methods: %w", err)
	}
	return len(response.PaymentMethods) > 0, nil
}

func (c *PaymentAPIClient) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*Subscription, error) {
	payload := map[string]any{
		"client_id":         input.ClientID,
		"offering_id":       input.OfferingID,
		"interval":          input.Interval,
		"amount_cents":      input.AmountCents,
		"first_cycle_start": input.FirstCycleStart.Format(time.RFC3339),
	}

	var subscription Subscription
	if err := c.post(ctx, "/v1/subscriptions", payload, &subscription); err != nil {
		return nil, err
	}
	if subscription.ID == "" {
		return nil, fmt.Errorf("subscription id missing from response")
	}
	return &subscription, nil
}

func (c *PaymentAPIClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s", ErrPaymentDeclined, strings.TrimSpace(string(responseBody)))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
