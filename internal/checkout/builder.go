// Package checkout turns a cart snapshot into a persisted PENDING order.
// The builder itself is pure: validation and arithmetic only, no I/O. The
// handler owns the ordering guarantee (create provider session first, persist
// the order second, hand the redirect URL out last).
package checkout

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/beauzead/order-engine/internal/countries"
	"github.com/beauzead/order-engine/internal/domain"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidPostcode = errors.New("invalid postcode for country")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrUnknownProduct  = errors.New("product not in catalog")
)

// PlatformFee is the flat per-order fee in canonical pence.
const PlatformFee int64 = 50

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigitPattern = regexp.MustCompile(`\D`)
)

// CartLine is one entry of the buyer's cart snapshot. Prices are NOT taken
// from here; the catalog record at build time is the single freeze point.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Product is the read-only catalog view consumed at order creation.
type Product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SellerID string `json:"seller_id"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
}

// Draft is the immutable not-yet-persisted order. It has no ID and no
// checkout session yet; both are assigned after the gateway call succeeds.
type Draft struct {
	BuyerID        string
	ProductID      string
	SellerID       string
	ProductTitle   string
	UnitPrice      int64
	Quantity       int
	Subtotal       int64
	DeliveryCharge int64
	PlatformFee    int64
	TotalPaid      int64
	CurrencySymbol string
	Currency       string
	ConversionRate float64
	Address        domain.ShippingAddress
	CreatedAt      time.Time
}

// BuildDraft validates the address against the selected country's rules,
// freezes catalog prices into the draft and computes the totals. Amounts are
// canonical pence; the country conversion rate is carried for display only.
func BuildDraft(buyerID string, lines []CartLine, catalog map[string]Product, address domain.ShippingAddress, countryName string, now time.Time) (*Draft, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	rule, err := countries.Lookup(countryName)
	if err != nil {
		rule = countries.Default()
	}

	if err := validateAddress(address, rule); err != nil {
		return nil, err
	}

	var subtotal int64
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductID)
		}
		subtotal += product.Price * int64(line.Quantity)
	}

	// The checkout flow carries a single lead product; its identity is
	// frozen on the order alongside the cart-wide totals.
	lead := catalog[lines[0].ProductID]

	draft := &Draft{
		BuyerID:        buyerID,
		ProductID:      lead.ID,
		SellerID:       lead.SellerID,
		ProductTitle:   lead.Title,
		UnitPrice:      lead.Price,
		Quantity:       lines[0].Quantity,
		Subtotal:       subtotal,
		DeliveryCharge: rule.ShippingFee,
		PlatformFee:    PlatformFee,
		TotalPaid:      subtotal + rule.ShippingFee + PlatformFee,
		CurrencySymbol: rule.Symbol,
		Currency:       rule.Currency,
		ConversionRate: rule.ConversionRate,
		Address:        address,
		CreatedAt:      now,
	}

	return draft, nil
}

func validateAddress(address domain.ShippingAddress, rule countries.Rule) error {
	if !rule.PostcodePattern.MatchString(address.Postcode) {
		return fmt.Errorf("%w: %s", ErrInvalidPostcode, rule.Name)
	}

	digits := nonDigitPattern.ReplaceAllString(address.Phone, "")
	if len(digits) < rule.MinPhoneDigits {
		return fmt.Errorf("%w: need at least %d digits", ErrInvalidPhone, rule.MinPhoneDigits)
	}

	if !emailPattern.MatchString(address.Email) {
		return ErrInvalidEmail
	}

	return nil
}

// DisplayAmount renders a canonical amount in the draft's display currency.
func (d *Draft) DisplayAmount(pence int64) float64 {
	return float64(pence) / 100 * d.ConversionRate
}

// Order materializes the draft into a domain order once the checkout session
// is known. Initial states per the lifecycle contract: PENDING / pending.
func (d *Draft) Order(orderID, sessionID string) *domain.Order {
	return &domain.Order{
		ID:                orderID,
		BuyerID:           d.BuyerID,
		ProductID:         d.ProductID,
		SellerID:          d.SellerID,
		UnitPrice:         d.UnitPrice,
		Quantity:          d.Quantity,
		Subtotal:          d.Subtotal,
		DeliveryCharge:    d.DeliveryCharge,
		PlatformFee:       d.PlatformFee,
		TotalPaid:         d.TotalPaid,
		CurrencySymbol:    d.CurrencySymbol,
		Address:           d.Address,
		PaymentStatus:     domain.PaymentStatusPending,
		OrderStatus:       domain.OrderStatusPending,
		CheckoutSessionID: sessionID,
		CreatedAt:         d.CreatedAt,
	}
}
