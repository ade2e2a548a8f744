package domain

import "time"

// PaymentOutcomeEvent is published after a payment webhook has been durably
// reconciled. Consumers handle the slow side effects (emails) so the webhook
// handler can acknowledge before the provider starts redelivering.
type PaymentOutcomeEvent struct {
	OrderID     string        `json:"order_id"`
	BuyerEmail  string        `json:"buyer_email"`
	ProductID   string        `json:"product_id"`
	TotalPaid   int64         `json:"total_paid"`
	Outcome     PaymentStatus `json:"outcome"`
	OrderStatus OrderStatus   `json:"order_status"`
	Timestamp   time.Time     `json:"timestamp"`
}
