package webhook

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	t.Run("checkout session completed", func(t *testing.T) {
		event, err := Decode([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"paid"}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Kind != KindCheckoutCompleted || event.SessionID != "cs_1" || !event.Paid {
			t.Fatalf("unexpected event: %+v", event)
		}
	})

	t.Run("completed but unpaid", func(t *testing.T) {
		event, err := Decode([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"unpaid"}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Paid {
			t.Fatal("unpaid session decoded as paid")
		}
	})

	t.Run("refund created", func(t *testing.T) {
		event, err := Decode([]byte(`{"id":"evt_2","type":"refund.created","data":{"object":{"id":"re_1","checkout_session":"cs_1","amount":24200,"currency":"gbp"}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Kind != KindRefundCreated || event.RefundID != "re_1" || event.Amount != 24200 {
			t.Fatalf("unexpected event: %+v", event)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		event, err := Decode([]byte(`{"id":"evt_3","type":"customer.created","data":{"object":{"id":"cus_1"}}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Kind != KindUnknown {
			t.Fatalf("expected KindUnknown, got %v", event.Kind)
		}
		if event.Type != "customer.created" {
			t.Fatalf("raw type should be preserved, got %s", event.Type)
		}
	})

	t.Run("malformed payloads", func(t *testing.T) {
		for _, payload := range []string{"not json", `{"type":"charge.failed"}`, `{"id":"evt_4"}`} {
			if _, err := Decode([]byte(payload)); !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("payload %q: expected ErrMalformedEvent, got %v", payload, err)
			}
		}
	})
}
