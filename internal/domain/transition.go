package domain

import (
	"errors"
	"fmt"
	"time"
)

// Transition is a requested change to an order's fulfillment status.
type Transition string

const (
	TransitionPaymentSucceeded Transition = "payment_succeeded"
	TransitionPaymentFailed    Transition = "payment_failed"
	TransitionApprove          Transition = "approve"
	TransitionReject           Transition = "reject"
	TransitionPack             Transition = "pack"
	TransitionShip             Transition = "ship"
	TransitionDeliver          Transition = "deliver"
	TransitionBuyerCancel      Transition = "buyer_cancel"
	TransitionRequestReturn    Transition = "request_return"
)

var (
	ErrIllegalTransition         = errors.New("illegal order status transition")
	ErrUnknownTransition         = errors.New("unknown transition")
	ErrCancellationWindowExpired = errors.New("cancellation window expired")
	ErrReturnWindowExpired       = errors.New("return window expired")
)

// CancellationWindow and ReturnWindow bound the buyer-initiated branches,
// measured from booking time and delivery time respectively.
const (
	CancellationWindow = 24 * time.Hour
	ReturnWindow       = 24 * time.Hour
)

type transitionRule struct {
	from   []OrderStatus
	target OrderStatus
}

var transitionRules = map[Transition]transitionRule{
	TransitionPaymentSucceeded: {from: []OrderStatus{OrderStatusPending}, target: OrderStatusProcessing},
	TransitionPaymentFailed:    {from: []OrderStatus{OrderStatusPending}, target: OrderStatusNotPlaced},
	TransitionApprove:          {from: []OrderStatus{OrderStatusProcessing}, target: OrderStatusApproved},
	TransitionReject:           {from: []OrderStatus{OrderStatusPending, OrderStatusProcessing}, target: OrderStatusCancelled},
	TransitionPack:             {from: []OrderStatus{OrderStatusApproved}, target: OrderStatusPacked},
	TransitionShip:             {from: []OrderStatus{OrderStatusPacked}, target: OrderStatusShipped},
	TransitionDeliver:          {from: []OrderStatus{OrderStatusShipped}, target: OrderStatusDelivered},
	TransitionBuyerCancel:      {from: []OrderStatus{OrderStatusProcessing, OrderStatusPacked}, target: OrderStatusCancelled},
	TransitionRequestReturn:    {from: []OrderStatus{OrderStatusDelivered}, target: OrderStatusReturnRequested},
}

// Apply drives the order through the declared state machine. It either
// mutates the order (new status, one history entry, date stamps) or returns
// an error leaving the order untouched. Re-applying a transition whose target
// is already the current status is a successful no-op with no history append,
// which is what makes webhook redelivery safe.
func Apply(o *Order, t Transition, now time.Time, note string) error {
	rule, ok := transitionRules[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransition, t)
	}

	if o.OrderStatus == rule.target {
		return nil
	}

	legal := false
	for _, from := range rule.from {
		if o.OrderStatus == from {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: %s -> %s via %s", ErrIllegalTransition, o.OrderStatus, rule.target, t)
	}

	switch t {
	case TransitionBuyerCancel:
		if now.Sub(o.CreatedAt) > CancellationWindow {
			return ErrCancellationWindowExpired
		}
	case TransitionRequestReturn:
		if o.DeliveryDate == nil || now.Sub(*o.DeliveryDate) > ReturnWindow {
			return ErrReturnWindowExpired
		}
	}

	o.OrderStatus = rule.target
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status:    rule.target,
		Timestamp: now,
		Note:      note,
	})

	// Stamped exactly once, on first entry into the terminal-ish states.
	switch rule.target {
	case OrderStatusDelivered:
		if o.DeliveryDate == nil {
			d := now
			o.DeliveryDate = &d
		}
	case OrderStatusCancelled:
		if o.CancelledDate == nil {
			d := now
			o.CancelledDate = &d
		}
	}

	return nil
}
