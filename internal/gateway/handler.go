// Package gateway is the public edge: it forwards storefront traffic and
// provider webhooks to the orders service without interpreting either.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

type Handler struct {
	ordersProxy *ServiceProxy
	logger      *slog.Logger
}

func NewHandler(ordersProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		ordersProxy: ordersProxy,
		logger:      logger,
	}
}

// HandleStorefront forwards checkout and order traffic unchanged.
func (h *Handler) HandleStorefront(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, r.URL.Path)
}

// HandleWebhook forwards provider notifications. The body and signature
// header pass through untouched; the orders service does the verification.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, path string) {
	resp, err := h.ordersProxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
