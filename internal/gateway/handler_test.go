package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beauzead/order-engine/internal/payments"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleStorefront(t *testing.T) {
	t.Run("proxies GET /orders", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders" {
				t.Errorf("expected /orders, got %s", r.URL.Path)
			}
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"id":"ord-1"}]`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client()), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `[{"id":"ord-1"}]` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("proxies POST /checkout with body", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/checkout" {
				t.Errorf("expected /checkout, got %s", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"buyer_id":"u-1"}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"order_id":"ord-1"}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client()), discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"buyer_id":"u-1"}`))
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
	})

	t.Run("preserves downstream error status", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"order not found"}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client()), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders/ghost", nil)
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when orders service unavailable", func(t *testing.T) {
		handler := NewHandler(NewServiceProxy("http://localhost:99999", &http.Client{}), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandleWebhook(t *testing.T) {
	t.Run("forwards body and signature header untouched", func(t *testing.T) {
		const signature = "t=1700000000,v1=deadbeef"

		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/webhooks/payment" {
				t.Errorf("expected /webhooks/payment, got %s", r.URL.Path)
			}
			if got := r.Header.Get(payments.SignatureHeader); got != signature {
				t.Errorf("signature header mangled: %s", got)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"id":"evt_1"}` {
				t.Errorf("body mangled: %s", body)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"received":true}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client()), discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set(payments.SignatureHeader, signature)
		rec := httptest.NewRecorder()

		handler.HandleWebhook(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}
