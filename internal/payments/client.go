// Package payments talks to the external card-processing provider: it
// creates hosted checkout sessions and verifies the signatures on the
// webhook notifications the provider sends back.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/beauzead/order-engine/internal/domain"
)

var (
	// ErrGatewayUnavailable covers network failures, timeouts and provider
	// 5xx responses. The caller discards the draft and the buyer retries.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected covers provider 4xx responses.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
	// ErrMissingFields is returned before any network call when required
	// session fields are absent.
	ErrMissingFields = errors.New("missing required fields")
)

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient builds a gateway client. The http.Client must carry a bounded
// timeout; a hung provider call must never hold a checkout open.
func NewClient(baseURL, secretKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: httpClient,
	}
}

type SessionRequest struct {
	ProductID  string                 `json:"product_id"`
	Quantity   int                    `json:"quantity"`
	Currency   string                 `json:"currency"`
	Amount     int64                  `json:"amount"`
	BuyerEmail string                 `json:"buyer_email"`
	Address    domain.ShippingAddress `json:"shipping_address"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
	SuccessURL string                 `json:"success_url,omitempty"`
	CancelURL  string                 `json:"cancel_url,omitempty"`
}

type Session struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ClientSecret string `json:"client_secret"`
}

type SessionDetails struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (r *SessionRequest) missingFields() []string {
	var missing []string
	if r.ProductID == "" {
		missing = append(missing, "product_id")
	}
	if r.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if r.Currency == "" {
		missing = append(missing, "currency")
	}
	if r.Amount <= 0 {
		missing = append(missing, "amount")
	}
	if r.BuyerEmail == "" {
		missing = append(missing, "buyer_email")
	}
	return missing
}

// CreateSession asks the provider for a hosted checkout session. Nothing is
// persisted here; the order is only written once this call has succeeded.
func (c *Client) CreateSession(ctx context.Context, sessionReq SessionRequest) (*Session, error) {
	if missing := sessionReq.missingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	data, err := json.Marshal(sessionReq)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: provider returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, body.Error)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("%w: provider returned no session id or url", ErrGatewayRejected)
	}

	return &session, nil
}

// RetrieveSession reads a session back for post-redirect confirmation.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*SessionDetails, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id", ErrMissingFields)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("create retrieve request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: provider returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}

	var details SessionDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("decode session details: %w", err)
	}

	return &details, nil
}
