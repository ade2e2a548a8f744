package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beauzead/order-engine/internal/domain"
	"github.com/beauzead/order-engine/internal/orders"
	"github.com/beauzead/order-engine/internal/payments"
)

const testSecret = "whsec_test"

type recordedRefund struct {
	refundID string
	orderID  *string
	amount   int64
	currency string
}

// fakeStore mirrors the real store's dedup contract in memory: an event id is
// only marked applied together with a successful order mutation.
type fakeStore struct {
	ordersBySession map[string]*domain.Order
	applied         map[string]bool
	refunds         []recordedRefund
	failReconcile   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ordersBySession: map[string]*domain.Order{},
		applied:         map[string]bool{},
	}
}

func (f *fakeStore) ReconcileEvent(_ context.Context, eventID, _, sessionID string, _ time.Time, apply func(order *domain.Order) error) (*domain.Order, error) {
	if f.failReconcile != nil {
		return nil, f.failReconcile
	}
	if f.applied[eventID] {
		return nil, orders.ErrEventAlreadyApplied
	}
	order, ok := f.ordersBySession[sessionID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	if err := apply(order); err != nil {
		return nil, err
	}
	f.applied[eventID] = true
	return order, nil
}

func (f *fakeStore) RecordEvent(_ context.Context, eventID, _ string, _ time.Time) error {
	if f.applied[eventID] {
		return orders.ErrEventAlreadyApplied
	}
	f.applied[eventID] = true
	return nil
}

func (f *fakeStore) RecordRefund(_ context.Context, refundID string, orderID *string, amount int64, currency string, _ time.Time) error {
	f.refunds = append(f.refunds, recordedRefund{refundID: refundID, orderID: orderID, amount: amount, currency: currency})
	return nil
}

func (f *fakeStore) GetByCheckoutSession(_ context.Context, sessionID string) (*domain.Order, error) {
	return f.ordersBySession[sessionID], nil
}

type fakePublisher struct {
	events []domain.PaymentOutcomeEvent
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	f.events = append(f.events, event.(domain.PaymentOutcomeEvent))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingOrder(sessionID string) *domain.Order {
	return &domain.Order{
		ID:                "ord-1",
		BuyerID:           "u-1",
		ProductID:         "p-1",
		TotalPaid:         24200,
		PaymentStatus:     domain.PaymentStatusPending,
		OrderStatus:       domain.OrderStatusPending,
		CheckoutSessionID: sessionID,
		CreatedAt:         time.Now().UTC(),
		Address:           domain.ShippingAddress{Email: "ada@example.com"},
	}
}

func completedPayload(eventID, sessionID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":"checkout.session.completed","data":{"object":{"id":%q,"payment_status":%q}}}`,
		eventID, sessionID, paymentStatus,
	))
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(string(payload)))
	req.Header.Set(payments.SignatureHeader, payments.Sign(testSecret, time.Now().UTC(), payload))
	return req
}

func TestHandleEvent_CheckoutCompleted(t *testing.T) {
	store := newFakeStore()
	store.ordersBySession["cs_1"] = pendingOrder("cs_1")
	publisher := &fakePublisher{}
	handler := NewHandler(store, testSecret, publisher, discardLogger())

	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, completedPayload("evt_1", "cs_1", "paid")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	order := store.ordersBySession["cs_1"]
	if order.PaymentStatus != domain.PaymentStatusSuccess {
		t.Fatalf("expected payment success, got %s", order.PaymentStatus)
	}
	if order.OrderStatus != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", order.OrderStatus)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published outcome, got %d", len(publisher.events))
	}
	outcome := publisher.events[0]
	if outcome.OrderID != "ord-1" || outcome.Outcome != domain.PaymentStatusSuccess {
		t.Fatalf("unexpected outcome event: %+v", outcome)
	}
}

func TestHandleEvent_RedeliveryIsAcknowledgedOnce(t *testing.T) {
	store := newFakeStore()
	store.ordersBySession["cs_1"] = pendingOrder("cs_1")
	publisher := &fakePublisher{}
	handler := NewHandler(store, testSecret, publisher, discardLogger())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.HandleEvent(rec, signedRequest(t, completedPayload("evt_1", "cs_1", "paid")))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}

	order := store.ordersBySession["cs_1"]
	if len(order.StatusHistory) != 1 {
		t.Fatalf("expected a single status change, got %d", len(order.StatusHistory))
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published outcome across redeliveries, got %d", len(publisher.events))
	}
}

func TestHandleEvent_PaymentFailure(t *testing.T) {
	t.Run("pending order becomes NOT_PLACED", func(t *testing.T) {
		store := newFakeStore()
		store.ordersBySession["cs_1"] = pendingOrder("cs_1")
		handler := NewHandler(store, testSecret, nil, discardLogger())

		payload := []byte(`{"id":"evt_f1","type":"charge.failed","data":{"object":{"checkout_session":"cs_1"}}}`)
		rec := httptest.NewRecorder()
		handler.HandleEvent(rec, signedRequest(t, payload))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		order := store.ordersBySession["cs_1"]
		if order.OrderStatus != domain.OrderStatusNotPlaced {
			t.Fatalf("expected NOT_PLACED, got %s", order.OrderStatus)
		}
		if order.PaymentStatus != domain.PaymentStatusFailed {
			t.Fatalf("expected failed payment, got %s", order.PaymentStatus)
		}
	})

	t.Run("stale failure after success changes nothing", func(t *testing.T) {
		store := newFakeStore()
		order := pendingOrder("cs_1")
		order.OrderStatus = domain.OrderStatusProcessing
		order.PaymentStatus = domain.PaymentStatusSuccess
		store.ordersBySession["cs_1"] = order
		handler := NewHandler(store, testSecret, nil, discardLogger())

		payload := []byte(`{"id":"evt_f2","type":"payment_intent.payment_failed","data":{"object":{"checkout_session":"cs_1"}}}`)
		rec := httptest.NewRecorder()
		handler.HandleEvent(rec, signedRequest(t, payload))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if order.OrderStatus != domain.OrderStatusProcessing {
			t.Fatalf("stale failure mutated status to %s", order.OrderStatus)
		}
		if order.PaymentStatus != domain.PaymentStatusSuccess {
			t.Fatalf("stale failure mutated payment status to %s", order.PaymentStatus)
		}
	})
}

func TestHandleEvent_BadSignature(t *testing.T) {
	store := newFakeStore()
	store.ordersBySession["cs_1"] = pendingOrder("cs_1")
	handler := NewHandler(store, testSecret, nil, discardLogger())

	payload := completedPayload("evt_1", "cs_1", "paid")

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(string(payload)))
		req.Header.Set(payments.SignatureHeader, payments.Sign("whsec_other", time.Now().UTC(), payload))
		rec := httptest.NewRecorder()
		handler.HandleEvent(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(string(payload)))
		rec := httptest.NewRecorder()
		handler.HandleEvent(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	if store.ordersBySession["cs_1"].OrderStatus != domain.OrderStatusPending {
		t.Fatal("rejected webhook must not touch the order")
	}
}

func TestHandleEvent_UnknownTypeIsAcknowledged(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store, testSecret, nil, discardLogger())

	payload := []byte(`{"id":"evt_u1","type":"invoice.finalized","data":{"object":{"id":"in_1"}}}`)
	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !store.applied["evt_u1"] {
		t.Fatal("unknown event should still be recorded for dedup")
	}

	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !resp["received"] {
		t.Fatalf("expected received ack, got %v", resp)
	}
}

func TestHandleEvent_UnknownOrderIsAcknowledged(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store, testSecret, nil, discardLogger())

	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, completedPayload("evt_1", "cs_ghost", "paid")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown order, got %d", rec.Code)
	}
	if store.applied["evt_1"] {
		t.Fatal("event for an unknown order must not be marked applied")
	}
}

func TestHandleEvent_StorageFailureIsRetryable(t *testing.T) {
	store := newFakeStore()
	store.failReconcile = fmt.Errorf("connection refused")
	handler := NewHandler(store, testSecret, nil, discardLogger())

	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, completedPayload("evt_1", "cs_1", "paid")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider retries, got %d", rec.Code)
	}
}

func TestHandleEvent_RefundCreated(t *testing.T) {
	store := newFakeStore()
	order := pendingOrder("cs_1")
	order.OrderStatus = domain.OrderStatusCancelled
	store.ordersBySession["cs_1"] = order
	handler := NewHandler(store, testSecret, nil, discardLogger())

	payload := []byte(`{"id":"evt_r1","type":"refund.created","data":{"object":{"id":"re_1","checkout_session":"cs_1","amount":24200,"currency":"gbp"}}}`)
	rec := httptest.NewRecorder()
	handler.HandleEvent(rec, signedRequest(t, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(store.refunds) != 1 {
		t.Fatalf("expected 1 recorded refund, got %d", len(store.refunds))
	}
	refund := store.refunds[0]
	if refund.refundID != "re_1" || refund.amount != 24200 || refund.currency != "gbp" {
		t.Fatalf("unexpected refund record: %+v", refund)
	}
	if refund.orderID == nil || *refund.orderID != "ord-1" {
		t.Fatalf("expected refund bound to ord-1, got %v", refund.orderID)
	}

	t.Run("refund without a known order keeps a null reference", func(t *testing.T) {
		payload := []byte(`{"id":"evt_r2","type":"refund.created","data":{"object":{"id":"re_2","checkout_session":"cs_ghost","amount":100,"currency":"gbp"}}}`)
		rec := httptest.NewRecorder()
		handler.HandleEvent(rec, signedRequest(t, payload))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if store.refunds[1].orderID != nil {
			t.Fatalf("expected null order reference, got %v", *store.refunds[1].orderID)
		}
	})
}
