package countries

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	t.Run("known country", func(t *testing.T) {
		rule, err := Lookup("United Kingdom")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rule.Currency != "GBP" || rule.Symbol != "£" {
			t.Fatalf("unexpected rule: %+v", rule)
		}
		if rule.ShippingFee != 150 {
			t.Fatalf("expected UK shipping fee 150, got %d", rule.ShippingFee)
		}
	})

	t.Run("unknown country", func(t *testing.T) {
		_, err := Lookup("Atlantis")
		if !errors.Is(err, ErrUnknownCountry) {
			t.Fatalf("expected ErrUnknownCountry, got %v", err)
		}
	})
}

func TestDefault(t *testing.T) {
	if Default().Name != "United Kingdom" {
		t.Fatalf("expected United Kingdom as default, got %s", Default().Name)
	}
}

func TestPostcodePatterns(t *testing.T) {
	cases := []struct {
		country  string
		postcode string
		valid    bool
	}{
		{"United Kingdom", "SW1A 1AA", true},
		{"United Kingdom", "M1 1AE", true},
		{"United Kingdom", "12345", false},
		{"United States", "90210", true},
		{"United States", "90210-1234", true},
		{"United States", "ABCDE", false},
		{"Canada", "K1A 0B1", true},
		{"Australia", "2000", true},
		{"India", "110001", true},
		{"India", "1100", false},
	}

	for _, tc := range cases {
		t.Run(tc.country+"/"+tc.postcode, func(t *testing.T) {
			rule, err := Lookup(tc.country)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if got := rule.PostcodePattern.MatchString(tc.postcode); got != tc.valid {
				t.Fatalf("expected valid=%v for %q", tc.valid, tc.postcode)
			}
		})
	}
}
