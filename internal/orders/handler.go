package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/beauzead/order-engine/internal/domain"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleList serves the buyer / seller / admin read projections. Role and
// actor arrive as query parameters; reads carry no business rules.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	actor := r.URL.Query().Get("actor")

	if (role == "buyer" || role == "seller") && actor == "" {
		h.writeError(w, http.StatusBadRequest, "actor is required for buyer and seller listings")
		return
	}

	orders, err := h.store.ListFor(r.Context(), actor, role)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "role", role)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListShipping(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListShipping(r.Context())
	if err != nil {
		h.logger.Error("failed to list shipping orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type transitionRequest struct {
	Transition domain.Transition `json:"transition"`
	Note       string            `json:"note"`
	ActorRole  string            `json:"actor_role"`
}

// Transitions a buyer may request; everything else is operator-only.
var buyerTransitions = map[domain.Transition]bool{
	domain.TransitionBuyerCancel:   true,
	domain.TransitionRequestReturn: true,
}

var operatorTransitions = map[domain.Transition]bool{
	domain.TransitionApprove: true,
	domain.TransitionReject:  true,
	domain.TransitionPack:    true,
	domain.TransitionShip:    true,
	domain.TransitionDeliver: true,
}

// HandleTransition applies an operator or buyer transition. The store takes
// the per-order lock; this layer only maps roles and error categories.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.roleAllowed(req.ActorRole, req.Transition) {
		h.writeError(w, http.StatusForbidden, "transition not permitted for role")
		return
	}

	order, err := h.store.Transition(r.Context(), id, req.Transition, req.Note, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrUnknownTransition):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrCancellationWindowExpired),
			errors.Is(err, domain.ErrReturnWindowExpired),
			errors.Is(err, domain.ErrIllegalTransition):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to apply transition", "error", err, "order_id", id, "transition", req.Transition)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("order transition applied",
		"order_id", order.ID,
		"transition", req.Transition,
		"status", order.OrderStatus,
	)

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) roleAllowed(role string, t domain.Transition) bool {
	switch role {
	case "buyer":
		return buyerTransitions[t]
	case "seller", "admin":
		return operatorTransitions[t]
	default:
		return false
	}
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
