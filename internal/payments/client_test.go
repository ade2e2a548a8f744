package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func validSessionRequest() SessionRequest {
	return SessionRequest{
		ProductID:  "p-1",
		Quantity:   2,
		Currency:   "GBP",
		Amount:     24200,
		BuyerEmail: "buyer@example.com",
	}
}

func TestCreateSession(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/checkout/sessions" {
				t.Errorf("expected /v1/checkout/sessions, got %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
				t.Errorf("unexpected auth header: %s", auth)
			}

			var req SessionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Amount != 24200 {
				t.Errorf("expected amount 24200, got %d", req.Amount)
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Session{ID: "cs_1", URL: "https://pay.example.com/cs_1", ClientSecret: "secret_1"})
		}))
		defer server.Close()

		client := NewClient(server.URL, "sk_test", server.Client())
		session, err := client.CreateSession(context.Background(), validSessionRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.ID != "cs_1" {
			t.Fatalf("expected session cs_1, got %s", session.ID)
		}
		if session.URL == "" {
			t.Fatal("expected redirect url")
		}
	})

	t.Run("missing fields fail before any call", func(t *testing.T) {
		client := NewClient("http://unused", "sk_test", http.DefaultClient)

		req := validSessionRequest()
		req.BuyerEmail = ""
		req.ProductID = ""

		_, err := client.CreateSession(context.Background(), req)
		if !errors.Is(err, ErrMissingFields) {
			t.Fatalf("expected ErrMissingFields, got %v", err)
		}
		for _, field := range []string{"product_id", "buyer_email"} {
			if !strings.Contains(err.Error(), field) {
				t.Fatalf("expected error to enumerate %s: %v", field, err)
			}
		}
	})

	t.Run("provider 5xx maps to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewClient(server.URL, "sk_test", server.Client())
		_, err := client.CreateSession(context.Background(), validSessionRequest())
		if !errors.Is(err, ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
	})

	t.Run("provider 4xx maps to rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "currency not supported"})
		}))
		defer server.Close()

		client := NewClient(server.URL, "sk_test", server.Client())
		_, err := client.CreateSession(context.Background(), validSessionRequest())
		if !errors.Is(err, ErrGatewayRejected) {
			t.Fatalf("expected ErrGatewayRejected, got %v", err)
		}
	})

	t.Run("timeout maps to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		client := NewClient(server.URL, "sk_test", &http.Client{Timeout: 20 * time.Millisecond})
		_, err := client.CreateSession(context.Background(), validSessionRequest())
		if !errors.Is(err, ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
	})
}

func TestRetrieveSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions/cs_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(SessionDetails{
			ID:            "cs_1",
			PaymentStatus: "paid",
			CustomerEmail: "buyer@example.com",
			AmountTotal:   24200,
			Currency:      "GBP",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", server.Client())
	details, err := client.RetrieveSession(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.PaymentStatus != "paid" {
		t.Fatalf("expected paid, got %s", details.PaymentStatus)
	}
}
