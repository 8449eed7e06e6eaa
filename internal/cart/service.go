package cart

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shopflow/shopflow/internal/apperr"
	"github.com/shopflow/shopflow/internal/domain"
	"github.com/shopflow/shopflow/internal/pricing"
)

// CatalogProvider supplies product lookups. A nil product with a nil error
// means the product does not exist.
type CatalogProvider interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Repository interface {
	// Get returns (nil, nil) when the user has no cart.
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	// Save upserts the aggregate and replaces its lines in one transaction.
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

type Cache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

type Direction string

const (
	DirectionIncrement Direction = "increment"
	DirectionDecrement Direction = "decrement"
)

// Service owns the per-user cart aggregate. Totals are always recomputed by
// full reduction over the lines, using each line's stored snapshot price.
// Concurrent mutations of the same user's cart are last-write-wins; each
// write is a single transaction so the persisted aggregate stays internally
// consistent.
type Service struct {
	repo    Repository
	cache   Cache // nil disables caching
	catalog CatalogProvider
	logger  *slog.Logger
	sfg     singleflight.Group
}

func NewService(repo Repository, cache Cache, catalog CatalogProvider, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		logger:  logger,
	}
}

// Get returns the user's cart, or an empty (unpersisted) aggregate when the
// user has none.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperr.Validationf("user id is required")
	}

	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		if cached := s.cacheGet(ctx, userID); cached != nil {
			return cached, nil
		}

		cart, err := s.repo.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if cart == nil {
			now := time.Now().UTC()
			return &domain.Cart{
				UserID:    userID,
				Items:     []domain.CartLine{},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}

		s.cacheSet(ctx, userID, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// UpsertItem creates the cart on first add and otherwise applies set
// semantics: an existing line for the product gets its quantity and snapshot
// replaced, not incremented. The bool result reports whether the cart was
// newly created.
func (s *Service) UpsertItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, bool, error) {
	if userID == "" {
		return nil, false, apperr.Validationf("user id is required")
	}
	if productID == "" {
		return nil, false, apperr.Validationf("product id is required")
	}
	if quantity < 1 {
		return nil, false, apperr.Validationf("quantity must be a positive integer, got %d", quantity)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, false, err
	}
	if product == nil {
		return nil, false, apperr.NotFoundf("product %s", productID)
	}

	now := time.Now().UTC()
	snapshot := domain.SnapshotProduct(*product, now)
	if _, err := pricing.EffectiveUnitPrice(snapshot); err != nil {
		return nil, false, err
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	created := false
	line := domain.CartLine{ProductID: productID, Quantity: quantity, Snapshot: snapshot}

	if cart == nil {
		created = true
		cart = &domain.Cart{
			UserID:    userID,
			Items:     []domain.CartLine{line},
			CreatedAt: now,
		}
	} else if i := cart.FindLine(productID); i >= 0 {
		cart.Items[i] = line
	} else {
		cart.Items = append(cart.Items, line)
	}

	if err := s.persist(ctx, cart, now); err != nil {
		return nil, false, err
	}

	return cart, created, nil
}

// ChangeQuantity increments or decrements a line's quantity by one. A
// decrement that reaches zero removes the line; removing the last line
// deletes the aggregate, reported by the bool result.
func (s *Service) ChangeQuantity(ctx context.Context, userID, productID string, direction Direction) (*domain.Cart, bool, error) {
	if direction != DirectionIncrement && direction != DirectionDecrement {
		return nil, false, apperr.Validationf("direction must be %q or %q, got %q", DirectionIncrement, DirectionDecrement, direction)
	}

	cart, i, err := s.loadLine(ctx, userID, productID)
	if err != nil {
		return nil, false, err
	}

	if direction == DirectionIncrement {
		cart.Items[i].Quantity++
	} else {
		cart.Items[i].Quantity--
	}
	cart.Items = dropEmptyLines(cart.Items)

	return s.finishMutation(ctx, cart)
}

// RemoveItem removes the product's line entirely, deleting the aggregate
// when it was the last one.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, bool, error) {
	cart, i, err := s.loadLine(ctx, userID, productID)
	if err != nil {
		return nil, false, err
	}

	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)

	return s.finishMutation(ctx, cart)
}

func (s *Service) loadLine(ctx context.Context, userID, productID string) (*domain.Cart, int, error) {
	if userID == "" {
		return nil, 0, apperr.Validationf("user id is required")
	}
	if productID == "" {
		return nil, 0, apperr.Validationf("product id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if cart == nil {
		return nil, 0, apperr.NotFoundf("cart for user %s", userID)
	}

	i := cart.FindLine(productID)
	if i < 0 {
		return nil, 0, apperr.NotFoundf("cart line for product %s", productID)
	}

	return cart, i, nil
}

// finishMutation deletes an emptied aggregate or recomputes and persists it.
func (s *Service) finishMutation(ctx context.Context, cart *domain.Cart) (*domain.Cart, bool, error) {
	if len(cart.Items) == 0 {
		if err := s.repo.Delete(ctx, cart.UserID); err != nil {
			return nil, false, err
		}
		s.invalidate(ctx, cart.UserID)
		return nil, true, nil
	}

	if err := s.persist(ctx, cart, time.Now().UTC()); err != nil {
		return nil, false, err
	}

	return cart, false, nil
}

func (s *Service) persist(ctx context.Context, cart *domain.Cart, now time.Time) error {
	items, total, err := recomputeTotals(cart.Items)
	if err != nil {
		return err
	}
	cart.TotalItems = items
	cart.TotalPrice = total
	cart.UpdatedAt = now

	if err := s.repo.Save(ctx, cart); err != nil {
		return err
	}

	s.invalidate(ctx, cart.UserID)
	return nil
}

// recomputeTotals reduces over the full line list rather than adjusting
// totals incrementally, so derived fields can never drift from the lines.
func recomputeTotals(lines []domain.CartLine) (totalItems int, totalPrice int64, err error) {
	for _, l := range lines {
		unit, err := pricing.EffectiveUnitPrice(l.Snapshot)
		if err != nil {
			return 0, 0, err
		}
		totalItems += l.Quantity
		totalPrice += int64(l.Quantity) * unit
	}
	return totalItems, totalPrice, nil
}

// dropEmptyLines filters out lines whose quantity fell to zero or below.
func dropEmptyLines(lines []domain.CartLine) []domain.CartLine {
	kept := lines[:0]
	for _, l := range lines {
		if l.Quantity >= 1 {
			kept = append(kept, l)
		}
	}
	return kept
}

func (s *Service) cacheGet(ctx context.Context, userID string) *domain.Cart {
	if s.cache == nil {
		return nil
	}
	cart, err := s.cache.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cart cache get failed", "error", err, "user_id", userID)
		}
		return nil
	}
	return cart
}

func (s *Service) cacheSet(ctx context.Context, userID string, cart *domain.Cart) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.logger.Warn("cart cache set failed", "error", err, "user_id", userID)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart cache invalidate failed", "error", err, "user_id", userID)
	}
}
