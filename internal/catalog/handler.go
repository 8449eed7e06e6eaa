package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/shopflow/internal/domain"
)

// ProductStore is what the handler needs from storage.
type ProductStore interface {
	Create(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

type Handler struct {
	store  ProductStore
	logger *slog.Logger
}

func NewHandler(store ProductStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type createProductRequest struct {
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Stock            int    `json:"stock"`
	Price            int64  `json:"price"`
	SalePrice        int64  `json:"sale_price"`
	FeatureImage     string `json:"feature_image"`
	BestSelling      bool   `json:"best_selling"`
	NewArrival       bool   `json:"new_arrival"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.ShortDescription == "" {
		h.writeError(w, http.StatusBadRequest, "name and short description are required")
		return
	}
	if req.Price <= 0 {
		h.writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if req.Stock < 0 {
		h.writeError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}

	product := &domain.Product{
		ID:               uuid.NewString(),
		Name:             req.Name,
		ShortDescription: req.ShortDescription,
		Description:      req.Description,
		Stock:            req.Stock,
		Price:            req.Price,
		SalePrice:        req.SalePrice,
		FeatureImage:     req.FeatureImage,
		BestSelling:      req.BestSelling,
		NewArrival:       req.NewArrival,
		CreatedAt:        time.Now().UTC(),
	}

	if err := h.store.Create(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err, "name", req.Name)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "name", product.Name)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, products)
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
