// Package webhook reconciles the payment provider's at-least-once,
// unordered notifications with the order store.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the closed set of event shapes the engine understands. Everything
// else decodes to KindUnknown and is acknowledged without processing, so the
// provider can add event types without breaking us.
type Kind int

const (
	KindUnknown Kind = iota
	KindCheckoutCompleted
	KindChargeFailed
	KindPaymentIntentFailed
	KindRefundCreated
)

const (
	typeCheckoutCompleted   = "checkout.session.completed"
	typeChargeFailed        = "charge.failed"
	typePaymentIntentFailed = "payment_intent.payment_failed"
	typeRefundCreated       = "refund.created"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is the decoded notification. Fields are populated per kind:
// SessionID for everything order-bound, Paid only for checkout completion,
// RefundID/Amount/Currency only for refunds.
type Event struct {
	ID        string
	Type      string
	Kind      Kind
	SessionID string
	Paid      bool
	RefundID  string
	Amount    int64
	Currency  string
}

type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID              string `json:"id"`
			PaymentStatus   string `json:"payment_status"`
			CheckoutSession string `json:"checkout_session"`
			Amount          int64  `json:"amount"`
			Currency        string `json:"currency"`
		} `json:"object"`
	} `json:"data"`
}

// Decode parses the raw payload exactly once, at the boundary. The payload
// must already be signature-verified.
func Decode(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}

	event := &Event{
		ID:   raw.ID,
		Type: raw.Type,
	}

	switch raw.Type {
	case typeCheckoutCompleted:
		event.Kind = KindCheckoutCompleted
		event.SessionID = raw.Data.Object.ID
		event.Paid = raw.Data.Object.PaymentStatus == "paid"
	case typeChargeFailed:
		event.Kind = KindChargeFailed
		event.SessionID = raw.Data.Object.CheckoutSession
	case typePaymentIntentFailed:
		event.Kind = KindPaymentIntentFailed
		event.SessionID = raw.Data.Object.CheckoutSession
	case typeRefundCreated:
		event.Kind = KindRefundCreated
		event.RefundID = raw.Data.Object.ID
		event.SessionID = raw.Data.Object.CheckoutSession
		event.Amount = raw.Data.Object.Amount
		event.Currency = raw.Data.Object.Currency
	default:
		event.Kind = KindUnknown
	}

	return event, nil
}
