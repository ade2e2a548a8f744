package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusApproved        OrderStatus = "APPROVED"
	OrderStatusPacked          OrderStatus = "PACKED"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusNotPlaced       OrderStatus = "NOT_PLACED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ShippingAddress is the address snapshot embedded in an order at checkout.
// The buyer's profile address may change later without affecting past orders.
type ShippingAddress struct {
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	SecondaryPhone string `json:"secondary_phone,omitempty"`
	Email          string `json:"email"`
	AddressLine1   string `json:"address_line_1"`
	AddressLine2   string `json:"address_line_2,omitempty"`
	Landmark       string `json:"landmark,omitempty"`
	City           string `json:"city"`
	Postcode       string `json:"postcode"`
	Country        string `json:"country"`
}

type StatusChange struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
}

// Order is the aggregate root. All monetary amounts are canonical GBP pence;
// conversion rates apply only when rendering a country-local view.
type Order struct {
	ID                string          `json:"order_id"`
	BuyerID           string          `json:"buyer_id"`
	ProductID         string          `json:"product_id"`
	SellerID          string          `json:"seller_id"`
	UnitPrice         int64           `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	Subtotal          int64           `json:"subtotal"`
	DeliveryCharge    int64           `json:"delivery_charge"`
	PlatformFee       int64           `json:"platform_fee"`
	TotalPaid         int64           `json:"total_paid"`
	CurrencySymbol    string          `json:"currency_symbol"`
	Address           ShippingAddress `json:"address"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	OrderStatus       OrderStatus     `json:"order_status"`
	StatusHistory     []StatusChange  `json:"status_history"`
	CheckoutSessionID string          `json:"checkout_session_id"`
	CreatedAt         time.Time       `json:"created_at"`
	DeliveryDate      *time.Time      `json:"delivery_date,omitempty"`
	CancelledDate     *time.Time      `json:"cancelled_date,omitempty"`
}

// EverHadStatus reports whether the order has ever been in the given status,
// answered from the append-only history rather than re-derived from state.
func (o *Order) EverHadStatus(s OrderStatus) bool {
	if o.OrderStatus == s {
		return true
	}
	for _, h := range o.StatusHistory {
		if h.Status == s {
			return true
		}
	}
	return false
}
