package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopflow/shopflow/internal/apperr"
	"github.com/shopflow/shopflow/internal/domain"
	"github.com/shopflow/shopflow/internal/middleware"
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

type createOrderRequest struct {
	ProductID       string                 `json:"product_id"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	TotalPrice      int64                  `json:"total_price"`
	Tax             int64                  `json:"tax"`
	ShippingCost    int64                  `json:"shipping_cost"`
	Discount        int64                  `json:"discount"`
	OrderNotes      string                 `json:"order_notes"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.Create(r.Context(), CreateParams{
		UserID:          userID,
		ProductID:       req.ProductID,
		ShippingAddress: req.ShippingAddress,
		TotalPrice:      req.TotalPrice,
		Tax:             req.Tax,
		ShippingCost:    req.ShippingCost,
		Discount:        req.Discount,
		OrderNotes:      req.OrderNotes,
	})
	if err != nil {
		h.writeDomainError(w, err, "failed to create order", "user_id", userID, "product_id", req.ProductID)
		return
	}

	h.metrics.RecordOrderPlaced(r.Context())
	h.logger.Info("order created", "order_id", order.ID, "user_id", userID, "product_id", order.ProductID)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	orders, err := h.svc.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to list orders", "user_id", userID)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.svc.GetForUser(r.Context(), orderID, userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to get order", "order_id", orderID, "user_id", userID)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.svc.CancelByOwner(r.Context(), orderID, userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to cancel order", "order_id", orderID, "user_id", userID)
		return
	}

	h.metrics.RecordOrderTransition(r.Context(), string(order.Status))
	h.logger.Info("order cancelled by owner", "order_id", order.ID, "user_id", userID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.OrderStatus(s))
		}
	}

	orders, err := h.svc.ListAll(r.Context(), statuses)
	if err != nil {
		h.writeDomainError(w, err, "failed to list all orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status         domain.OrderStatus `json:"status"`
	TrackingNumber string             `json:"tracking_number"`
}

func (h *Handler) HandleAdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.Transition(r.Context(), orderID, req.Status, req.TrackingNumber)
	if err != nil {
		h.writeDomainError(w, err, "failed to update order status", "order_id", orderID, "status", req.Status)
		return
	}

	h.metrics.RecordOrderTransition(r.Context(), string(order.Status))
	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case apperr.IsValidation(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
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
