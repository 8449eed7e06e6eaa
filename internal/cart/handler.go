package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopflow/shopflow/internal/apperr"
	"github.com/shopflow/shopflow/internal/middleware"
	"github.com/shopflow/shopflow/internal/pricing"
	"github.com/shopflow/shopflow/internal/telemetry"
)

type Handler struct {
	svc     *Service
	metrics *telemetry.DomainMetrics
	logger  *slog.Logger
}

func NewHandler(svc *Service, metrics *telemetry.DomainMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	cart, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to get cart", "user_id", userID)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type upsertItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleUpsertItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	var req upsertItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, created, err := h.svc.UpsertItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err, "failed to upsert cart item", "user_id", userID, "product_id", req.ProductID)
		return
	}

	h.metrics.RecordCartMutation(r.Context(), "upsert")
	h.logger.Info("cart item upserted", "user_id", userID, "product_id", req.ProductID, "quantity", req.Quantity, "created", created)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, cart)
}

type changeQuantityRequest struct {
	Direction Direction `json:"direction"`
}

type clearedResponse struct {
	Cleared bool `json:"cleared"`
}

func (h *Handler) HandleChangeQuantity(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req changeQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, cleared, err := h.svc.ChangeQuantity(r.Context(), userID, productID, req.Direction)
	if err != nil {
		h.writeDomainError(w, err, "failed to change quantity", "user_id", userID, "product_id", productID)
		return
	}

	h.metrics.RecordCartMutation(r.Context(), "change_quantity")
	h.logger.Info("cart quantity changed", "user_id", userID, "product_id", productID, "direction", req.Direction, "cleared", cleared)

	if cleared {
		h.writeJSON(w, http.StatusOK, clearedResponse{Cleared: true})
		return
	}
	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	cart, cleared, err := h.svc.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		h.writeDomainError(w, err, "failed to remove cart item", "user_id", userID, "product_id", productID)
		return
	}

	h.metrics.RecordCartMutation(r.Context(), "remove")
	h.logger.Info("cart item removed", "user_id", userID, "product_id", productID, "cleared", cleared)

	if cleared {
		h.writeJSON(w, http.StatusOK, clearedResponse{Cleared: true})
		return
	}
	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case apperr.IsValidation(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pricing.ErrInvalidProduct):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
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
