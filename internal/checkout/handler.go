package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/beauzead/order-engine/internal/domain"
	"github.com/beauzead/order-engine/internal/payments"
)

type CartSnapshotter interface {
	Snapshot(ctx context.Context, buyerID string) ([]CartLine, error)
}

type ProductFinder interface {
	Product(ctx context.Context, productID string) (*Product, error)
}

type SessionGateway interface {
	CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*payments.SessionDetails, error)
}

type OrderCreator interface {
	Create(ctx context.Context, order *domain.Order) error
}

type Handler struct {
	cart    CartSnapshotter
	catalog ProductFinder
	gateway SessionGateway
	store   OrderCreator
	logger  *slog.Logger
}

func NewHandler(cart CartSnapshotter, catalog ProductFinder, gateway SessionGateway, store OrderCreator, logger *slog.Logger) *Handler {
	return &Handler{
		cart:    cart,
		catalog: catalog,
		gateway: gateway,
		store:   store,
		logger:  logger,
	}
}

type checkoutRequest struct {
	BuyerID string                 `json:"buyer_id"`
	Address domain.ShippingAddress `json:"address"`
	Country string                 `json:"country"`
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// HandleCheckout drives the full checkout: snapshot the cart, freeze a
// draft, create the provider session, persist the PENDING order, and only
// then return the redirect URL. Persist-before-redirect is load-bearing: a
// webhook arriving before the buyer returns must find an order to attach to.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BuyerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing buyer_id")
		return
	}

	ctx := r.Context()

	lines, err := h.cart.Snapshot(ctx, req.BuyerID)
	if err != nil {
		h.logger.Error("failed to snapshot cart", "error", err, "buyer_id", req.BuyerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(lines) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrEmptyCart.Error())
		return
	}

	catalog := make(map[string]Product, len(lines))
	for _, line := range lines {
		product, err := h.catalog.Product(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, ErrUnknownProduct) {
				h.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.logger.Error("failed to resolve product", "error", err, "product_id", line.ProductID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		catalog[line.ProductID] = *product
	}

	draft, err := BuildDraft(req.BuyerID, lines, catalog, req.Address, req.Country, time.Now().UTC())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.gateway.CreateSession(ctx, payments.SessionRequest{
		ProductID:  draft.ProductID,
		Quantity:   draft.Quantity,
		Currency:   draft.Currency,
		Amount:     displayMinorUnits(draft),
		BuyerEmail: draft.Address.Email,
		Address:    draft.Address,
		Metadata: map[string]string{
			"product_title": draft.ProductTitle,
			"customer_name": draft.Address.FullName,
		},
	})
	if err != nil {
		// No order exists yet; the draft is simply dropped and the buyer
		// retries from the cart.
		switch {
		case errors.Is(err, payments.ErrGatewayRejected), errors.Is(err, payments.ErrMissingFields):
			h.logger.Error("gateway rejected checkout session", "error", err, "buyer_id", req.BuyerID)
			h.writeError(w, http.StatusUnprocessableEntity, "payment provider rejected the checkout")
		default:
			h.logger.Error("gateway unavailable", "error", err, "buyer_id", req.BuyerID)
			h.writeError(w, http.StatusBadGateway, "payment provider unavailable")
		}
		return
	}

	order := draft.Order(uuid.New().String(), session.ID)
	if err := h.store.Create(ctx, order); err != nil {
		h.logger.Error("failed to persist order", "error", err, "session_id", session.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order created",
		"order_id", order.ID,
		"buyer_id", order.BuyerID,
		"session_id", session.ID,
		"total_paid", order.TotalPaid,
	)

	h.writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
	})
}

// HandleRetrieveSession serves the post-redirect confirmation display.
func (h *Handler) HandleRetrieveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	details, err := h.gateway.RetrieveSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrGatewayRejected) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to retrieve session", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, details)
}

// displayMinorUnits is what the provider charges: the canonical total
// rendered in the buyer's display currency, rounded once.
func displayMinorUnits(d *Draft) int64 {
	return int64(math.Round(float64(d.TotalPaid) * d.ConversionRate))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
