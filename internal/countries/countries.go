// Package countries is the read-only reference table for shipping, currency
// and address validation rules. The table is fixed at compile time; callers
// that cannot resolve a country fall back to Default (the first entry).
package countries

import (
	"errors"
	"regexp"
)

var ErrUnknownCountry = errors.New("unknown country")

type Rule struct {
	Name            string
	Code            string
	Currency        string
	Symbol          string
	PhonePrefix     string
	MinPhoneDigits  int
	PostcodePattern *regexp.Regexp
	// ShippingFee is in canonical pence.
	ShippingFee int64
	// ConversionRate converts canonical amounts into the country's display
	// currency. Display only; stored amounts never pass through it.
	ConversionRate float64
}

var table = []Rule{
	{
		Name:            "United Kingdom",
		Code:            "GB",
		Currency:        "GBP",
		Symbol:          "£",
		PhonePrefix:     "+44",
		MinPhoneDigits:  10,
		PostcodePattern: regexp.MustCompile(`(?i)^[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}$`),
		ShippingFee:     150,
		ConversionRate:  1.0,
	},
	{
		Name:            "United States",
		Code:            "US",
		Currency:        "USD",
		Symbol:          "$",
		PhonePrefix:     "+1",
		MinPhoneDigits:  10,
		PostcodePattern: regexp.MustCompile(`^\d{5}(-\d{4})?$`),
		ShippingFee:     450,
		ConversionRate:  1.27,
	},
	{
		Name:            "Canada",
		Code:            "CA",
		Currency:        "CAD",
		Symbol:          "C$",
		PhonePrefix:     "+1",
		MinPhoneDigits:  10,
		PostcodePattern: regexp.MustCompile(`(?i)^[A-Z]\d[A-Z]\s*\d[A-Z]\d$`),
		ShippingFee:     500,
		ConversionRate:  1.72,
	},
	{
		Name:            "Australia",
		Code:            "AU",
		Currency:        "AUD",
		Symbol:          "A$",
		PhonePrefix:     "+61",
		MinPhoneDigits:  9,
		PostcodePattern: regexp.MustCompile(`^\d{4}$`),
		ShippingFee:     550,
		ConversionRate:  1.92,
	},
	{
		Name:            "India",
		Code:            "IN",
		Currency:        "INR",
		Symbol:          "₹",
		PhonePrefix:     "+91",
		MinPhoneDigits:  10,
		PostcodePattern: regexp.MustCompile(`^\d{6}$`),
		ShippingFee:     250,
		ConversionRate:  105.0,
	},
}

// Lookup returns the rule for the given country name.
func Lookup(name string) (Rule, error) {
	for _, r := range table {
		if r.Name == name {
			return r, nil
		}
	}
	return Rule{}, ErrUnknownCountry
}

// Default is the documented fallback when no country matches.
func Default() Rule {
	return table[0]
}

// All returns a copy of the table, ordered as presented to buyers.
func All() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}
