package orders

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/shopflow/internal/apperr"
	"github.com/shopflow/shopflow/internal/domain"
)

type CatalogProvider interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type IdentityProvider interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	// GetByID returns (nil, nil) when the order does not exist.
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// UpdateStatus persists the status and every status-derived field in one
	// update.
	UpdateStatus(ctx context.Context, order *domain.Order) error
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context, statuses []domain.OrderStatus) ([]domain.Order, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service drives orders through their lifecycle. Order facts (snapshots,
// address, pricing) are immutable after Create; only the status and its
// derived fields change, and only through legal transitions.
type Service struct {
	repo     Repository
	catalog  CatalogProvider
	identity IdentityProvider
	events   EventPublisher // nil disables publishing
	logger   *slog.Logger
}

func NewService(repo Repository, catalog CatalogProvider, identity IdentityProvider, events EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		catalog:  catalog,
		identity: identity,
		events:   events,
		logger:   logger,
	}
}

type CreateParams struct {
	UserID          string
	ProductID       string
	ShippingAddress domain.ShippingAddress
	TotalPrice      int64
	Tax             int64
	ShippingCost    int64
	Discount        int64
	OrderNotes      string
}

// Create places an order in pending state, freezing the current user and
// product records as snapshots. Tax, shipping and discount are opaque inputs
// here; nothing is recomputed from them.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.Order, error) {
	if err := validateCreate(p); err != nil {
		return nil, err
	}

	user, err := s.identity.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFoundf("user %s", p.UserID)
	}

	product, err := s.catalog.GetProduct(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, apperr.NotFoundf("product %s", p.ProductID)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		ProductID:       p.ProductID,
		User:            domain.SnapshotUser(*user),
		Product:         domain.SnapshotProduct(*product, now),
		ShippingAddress: p.ShippingAddress,
		Status:          domain.OrderStatusPending,
		TotalPrice:      p.TotalPrice,
		Tax:             p.Tax,
		ShippingCost:    p.ShippingCost,
		Discount:        p.Discount,
		OrderNotes:      p.OrderNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	s.publish(ctx, order.ID, domain.OrderCreatedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		ProductID:     order.ProductID,
		ProductName:   order.Product.Name,
		CustomerEmail: order.User.Email,
		TotalPrice:    order.TotalPrice,
		Timestamp:     now,
	})

	return order, nil
}

// Transition moves the order to newStatus, applying the status-keyed side
// effects together with the status write.
func (s *Service) Transition(ctx context.Context, orderID string, newStatus domain.OrderStatus, trackingNumber string) (*domain.Order, error) {
	order, err := s.getExisting(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, order, newStatus, trackingNumber)
}

// GetForUser returns a single order, visible only to the user who placed it.
func (s *Service) GetForUser(ctx context.Context, orderID, requestingUserID string) (*domain.Order, error) {
	order, err := s.getExisting(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requestingUserID {
		return nil, fmt.Errorf("order %s does not belong to user %s: %w", orderID, requestingUserID, apperr.ErrForbidden)
	}
	return order, nil
}

// CancelByOwner cancels the order on behalf of the user who placed it.
// Ownership is compared on the raw identifiers.
func (s *Service) CancelByOwner(ctx context.Context, orderID, requestingUserID string) (*domain.Order, error) {
	order, err := s.getExisting(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requestingUserID {
		return nil, fmt.Errorf("order %s does not belong to user %s: %w", orderID, requestingUserID, apperr.ErrForbidden)
	}
	return s.transition(ctx, order, domain.OrderStatusCancelled, "")
}

func (s *Service) transition(ctx context.Context, order *domain.Order, newStatus domain.OrderStatus, trackingNumber string) (*domain.Order, error) {
	if !newStatus.Valid() {
		return nil, apperr.Validationf("unknown order status %q", newStatus)
	}
	if !CanTransition(order.Status, newStatus) {
		return nil, apperr.Validationf("illegal transition from %q to %q", order.Status, newStatus)
	}

	now := time.Now().UTC()
	oldStatus := order.Status
	order.Status = newStatus

	switch newStatus {
	case domain.OrderStatusShipped:
		// Tracking number is optional; stored as supplied, possibly empty.
		order.TrackingNumber = trackingNumber
	case domain.OrderStatusDelivered:
		order.IsDelivered = true
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.IsPaid = false
		order.IsDelivered = false
	}
	order.UpdatedAt = now

	if err := s.repo.UpdateStatus(ctx, order); err != nil {
		return nil, err
	}

	s.publish(ctx, order.ID, domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		CustomerEmail:  order.User.Email,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		TrackingNumber: order.TrackingNumber,
		Timestamp:      now,
	})

	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, apperr.Validationf("user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context, statuses []domain.OrderStatus) ([]domain.Order, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, apperr.Validationf("unknown order status %q", status)
		}
	}
	return s.repo.ListAll(ctx, statuses)
}

func (s *Service) getExisting(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, apperr.Validationf("order id is required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFoundf("order %s", orderID)
	}
	return order, nil
}

// publish is best effort: a lost event never fails the persisted mutation.
func (s *Service) publish(ctx context.Context, key string, event any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, event); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "order_id", key)
	}
}

func validateCreate(p CreateParams) error {
	if p.UserID == "" {
		return apperr.Validationf("user id is required")
	}
	if p.ProductID == "" {
		return apperr.Validationf("product id is required")
	}

	addr := p.ShippingAddress
	for _, f := range []struct {
		name, value string
	}{
		{"full_name", addr.FullName},
		{"address", addr.Address},
		{"city", addr.City},
		{"state", addr.State},
		{"postal_code", addr.PostalCode},
		{"phone", addr.Phone},
		{"email", addr.Email},
	} {
		if f.value == "" {
			return apperr.Validationf("shipping address field %s is required", f.name)
		}
	}
	if _, err := mail.ParseAddress(addr.Email); err != nil {
		return apperr.Validationf("shipping address email %q is not a valid address", addr.Email)
	}

	if p.TotalPrice < 0 {
		return apperr.Validationf("total price must not be negative, got %d", p.TotalPrice)
	}
	if p.Tax < 0 || p.ShippingCost < 0 || p.Discount < 0 {
		return apperr.Validationf("tax, shipping cost and discount must not be negative")
	}

	return nil
}
