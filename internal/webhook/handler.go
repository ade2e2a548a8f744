package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/beauzead/order-engine/internal/domain"
	"github.com/beauzead/order-engine/internal/orders"
	"github.com/beauzead/order-engine/internal/payments"
)

// EventStore is the slice of the order store the reconciler needs. The
// contract that matters is ReconcileEvent: event dedup and order mutation
// commit or roll back together.
type EventStore interface {
	ReconcileEvent(ctx context.Context, eventID, eventType, sessionID string, now time.Time, apply func(order *domain.Order) error) (*domain.Order, error)
	RecordEvent(ctx context.Context, eventID, eventType string, now time.Time) error
	RecordRefund(ctx context.Context, refundID string, orderID *string, amount int64, currency string, now time.Time) error
	GetByCheckoutSession(ctx context.Context, sessionID string) (*domain.Order, error)
}

// OutcomePublisher pushes the post-commit follow-up event. Publish failures
// never fail the webhook response: the outcome is already durable.
type OutcomePublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	store     EventStore
	secret    string
	publisher OutcomePublisher
	logger    *slog.Logger
}

// NewHandler builds the webhook endpoint. publisher may be nil when the
// service runs without Kafka.
func NewHandler(store EventStore, secret string, publisher OutcomePublisher, logger *slog.Logger) *Handler {
	return &Handler{store: store, secret: secret, publisher: publisher, logger: logger}
}

// HandleEvent processes POST /webhooks/payment. Responses are chosen for the
// provider's retry loop: 2xx means "never send this again", non-2xx means
// "retry later". Anything we cannot act on but will never be able to act on
// (unknown types, orders we don't have) is acknowledged, not failed.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// Verify over the raw bytes, before any parsing.
	now := time.Now().UTC()
	if err := payments.VerifySignature(h.secret, r.Header.Get(payments.SignatureHeader), payload, now); err != nil {
		h.logger.Warn("rejected webhook with bad signature", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	event, err := Decode(payload)
	if err != nil {
		h.logger.Warn("rejected malformed webhook payload", "error", err)
		h.writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	switch event.Kind {
	case KindCheckoutCompleted, KindChargeFailed, KindPaymentIntentFailed:
		h.reconcileOutcome(r.Context(), w, event, now)
	case KindRefundCreated:
		h.recordRefund(r.Context(), w, event, now)
	default:
		// Unrecognized types are recorded and acknowledged so the provider
		// stops redelivering them.
		if err := h.store.RecordEvent(r.Context(), event.ID, event.Type, now); err != nil && !errors.Is(err, orders.ErrEventAlreadyApplied) {
			h.logger.Error("failed to record webhook event", "error", err, "event_id", event.ID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		h.logger.Info("acknowledged unhandled webhook type", "event_id", event.ID, "event_type", event.Type)
		h.ack(w)
	}
}

// reconcileOutcome applies a payment outcome to the bound order. The dedup
// row and the order mutation land in one transaction; redelivered events and
// late arrivals for orders that already moved on are both safe no-ops.
func (h *Handler) reconcileOutcome(ctx context.Context, w http.ResponseWriter, event *Event, now time.Time) {
	succeeded := event.Kind == KindCheckoutCompleted && event.Paid

	order, err := h.store.ReconcileEvent(ctx, event.ID, event.Type, event.SessionID, now, func(order *domain.Order) error {
		if succeeded {
			order.PaymentStatus = domain.PaymentStatusSuccess
			if order.OrderStatus == domain.OrderStatusPending {
				return domain.Apply(order, domain.TransitionPaymentSucceeded, now, "payment confirmed by provider")
			}
			return nil
		}

		// Only a still-pending order is marked NOT_PLACED; a failure event
		// arriving after the order progressed is stale and changes nothing.
		if order.OrderStatus != domain.OrderStatusPending {
			return nil
		}
		order.PaymentStatus = domain.PaymentStatusFailed
		return domain.Apply(order, domain.TransitionPaymentFailed, now, "payment failed at provider")
	})

	switch {
	case err == nil:
	case errors.Is(err, orders.ErrEventAlreadyApplied):
		h.logger.Info("skipped already applied webhook event", "event_id", event.ID)
		h.ack(w)
		return
	case errors.Is(err, orders.ErrOrderNotFound):
		// No order was persisted for this session, so retrying can never
		// succeed. Acknowledge and keep the evidence in the logs.
		h.logger.Warn("acknowledged webhook for unknown order",
			"event_id", event.ID,
			"session_id", event.SessionID,
		)
		h.ack(w)
		return
	default:
		h.logger.Error("failed to reconcile webhook event", "error", err, "event_id", event.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("reconciled payment outcome",
		"event_id", event.ID,
		"event_type", event.Type,
		"order_id", order.ID,
		"payment_status", order.PaymentStatus,
		"order_status", order.OrderStatus,
	)

	h.publishOutcome(ctx, order)
	h.ack(w)
}

func (h *Handler) recordRefund(ctx context.Context, w http.ResponseWriter, event *Event, now time.Time) {
	var orderID *string
	if event.SessionID != "" {
		order, err := h.store.GetByCheckoutSession(ctx, event.SessionID)
		if err != nil {
			h.logger.Error("failed to resolve order for refund", "error", err, "event_id", event.ID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if order != nil {
			orderID = &order.ID
		}
	}

	if err := h.store.RecordRefund(ctx, event.RefundID, orderID, event.Amount, event.Currency, now); err != nil {
		h.logger.Error("failed to record refund", "error", err, "event_id", event.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.store.RecordEvent(ctx, event.ID, event.Type, now); err != nil && !errors.Is(err, orders.ErrEventAlreadyApplied) {
		h.logger.Error("failed to record webhook event", "error", err, "event_id", event.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("recorded refund", "event_id", event.ID, "refund_id", event.RefundID)
	h.ack(w)
}

func (h *Handler) publishOutcome(ctx context.Context, order *domain.Order) {
	if h.publisher == nil {
		return
	}

	outcome := domain.PaymentOutcomeEvent{
		OrderID:     order.ID,
		BuyerEmail:  order.Address.Email,
		ProductID:   order.ProductID,
		TotalPaid:   order.TotalPaid,
		Outcome:     order.PaymentStatus,
		OrderStatus: order.OrderStatus,
		Timestamp:   time.Now().UTC(),
	}

	if err := h.publisher.Publish(ctx, order.ID, outcome); err != nil {
		// The reconciliation is committed; losing the follow-up only delays
		// the buyer's email.
		h.logger.Error("failed to publish payment outcome", "error", err, "order_id", order.ID)
	}
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
