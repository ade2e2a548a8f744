// Package worker handles the slow side effects of a reconciled payment:
// buyer emails move off the webhook path onto the consumer.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/beauzead/order-engine/internal/domain"
)

type OutcomeHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewOutcomeHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

// Handle consumes one payment outcome event. Returning an error leaves the
// Kafka offset uncommitted so the event is retried.
func (h *OutcomeHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.PaymentOutcomeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal payment outcome event: %w", err)
	}

	h.logger.Info("processing payment outcome", "order_id", event.OrderID, "outcome", event.Outcome)

	if event.BuyerEmail == "" {
		h.logger.Warn("skipping outcome without a buyer email", "order_id", event.OrderID)
		return nil
	}

	var err error
	switch event.Outcome {
	case domain.PaymentStatusSuccess:
		err = h.sendConfirmationEmail(ctx, event)
	case domain.PaymentStatusFailed:
		err = h.sendFailureEmail(ctx, event)
	default:
		h.logger.Warn("skipping unexpected payment outcome", "order_id", event.OrderID, "outcome", event.Outcome)
		return nil
	}

	if err != nil {
		h.logger.Error("failed to send outcome email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send outcome email: %w", err)
	}

	h.logger.Info("payment outcome processed", "order_id", event.OrderID)
	return nil
}

func (h *OutcomeHandler) sendConfirmationEmail(ctx context.Context, event domain.PaymentOutcomeEvent) error {
	body := map[string]string{
		"to":      event.BuyerEmail,
		"subject": "Order Confirmation: " + event.OrderID,
		"body": fmt.Sprintf("Thank you for your purchase. Your payment of %d.%02d was received and order %s is being processed.",
			event.TotalPaid/100, event.TotalPaid%100, event.OrderID),
	}

	return h.sendEmail(ctx, body)
}

func (h *OutcomeHandler) sendFailureEmail(ctx context.Context, event domain.PaymentOutcomeEvent) error {
	body := map[string]string{
		"to":      event.BuyerEmail,
		"subject": "Payment Failed: " + event.OrderID,
		"body":    fmt.Sprintf("Your payment for order %s did not go through, so the order was not placed. No money was taken.", event.OrderID),
	}

	return h.sendEmail(ctx, body)
}

func (h *OutcomeHandler) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
