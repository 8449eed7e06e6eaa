//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	segkafka "github.com/segmentio/kafka-go"

	"github.com/shopflow/shopflow/internal/apperr"
	"github.com/shopflow/shopflow/internal/cart"
	"github.com/shopflow/shopflow/internal/catalog"
	"github.com/shopflow/shopflow/internal/domain"
	"github.com/shopflow/shopflow/internal/identity"
	"github.com/shopflow/shopflow/internal/messaging"
	"github.com/shopflow/shopflow/internal/notifier"
	"github.com/shopflow/shopflow/internal/orders"
)

func seedUser(ctx context.Context, t *testing.T, repo *identity.PostgresRepository) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         "Test Customer",
		Email:        uuid.NewString() + "@example.com",
		Phone:        "555-0100",
		PasswordHash: "not-a-real-hash",
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func seedProduct(ctx context.Context, t *testing.T, repo *catalog.PostgresRepository, price, salePrice int64) *domain.Product {
	t.Helper()

	product := &domain.Product{
		ID:               uuid.NewString(),
		Name:             "Test Product",
		ShortDescription: "A product for testing",
		Stock:            100,
		Price:            price,
		SalePrice:        salePrice,
		CreatedAt:        time.Now().UTC(),
	}
	if err := repo.Create(ctx, product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return product
}

func testAddress(email string) domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   "Test Customer",
		Address:    "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Phone:      "555-0100",
		Email:      email,
	}
}

func TestCartLifecycleFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	productRepo := catalog.NewPostgresRepository(db)
	cartRepo := cart.NewPostgresRepository(db)
	svc := cart.NewService(cartRepo, nil, productRepo, logger)

	product := seedProduct(ctx, t, productRepo, 1000, 800)
	userID := uuid.NewString()

	created, wasNew, err := svc.UpsertItem(ctx, userID, product.ID, 2)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if !wasNew {
		t.Fatal("expected cart to be created on first add")
	}
	if created.TotalItems != 2 {
		t.Fatalf("expected 2 total items, got %d", created.TotalItems)
	}
	if created.TotalPrice != 2*800 {
		t.Fatalf("expected total price %d, got %d", 2*800, created.TotalPrice)
	}

	// Re-adding the same product replaces the quantity rather than adding
	// to it.
	updated, wasNew, err := svc.UpsertItem(ctx, userID, product.ID, 5)
	if err != nil {
		t.Fatalf("failed to re-add item: %v", err)
	}
	if wasNew {
		t.Fatal("expected existing cart to be reused")
	}
	if len(updated.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(updated.Items))
	}
	if updated.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", updated.Items[0].Quantity)
	}
	if updated.TotalPrice != 5*800 {
		t.Fatalf("expected total price %d, got %d", 5*800, updated.TotalPrice)
	}

	fetched, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if fetched.TotalItems != 5 {
		t.Fatalf("expected 5 total items from DB, got %d", fetched.TotalItems)
	}

	_, cleared, err := svc.RemoveItem(ctx, userID, product.ID)
	if err != nil {
		t.Fatalf("failed to remove item: %v", err)
	}
	if !cleared {
		t.Fatal("expected cart to be deleted when its last line is removed")
	}

	row, err := cartRepo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("failed to query cart: %v", err)
	}
	if row != nil {
		t.Fatal("expected no cart row after clearing")
	}
}

func TestCartDecrementToRemoval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	productRepo := catalog.NewPostgresRepository(db)
	cartRepo := cart.NewPostgresRepository(db)
	svc := cart.NewService(cartRepo, nil, productRepo, logger)

	keep := seedProduct(ctx, t, productRepo, 500, 0)
	drop := seedProduct(ctx, t, productRepo, 300, 0)
	userID := uuid.NewString()

	if _, _, err := svc.UpsertItem(ctx, userID, keep.ID, 1); err != nil {
		t.Fatalf("failed to add keep item: %v", err)
	}
	if _, _, err := svc.UpsertItem(ctx, userID, drop.ID, 1); err != nil {
		t.Fatalf("failed to add drop item: %v", err)
	}

	updated, cleared, err := svc.ChangeQuantity(ctx, userID, drop.ID, cart.DirectionDecrement)
	if err != nil {
		t.Fatalf("failed to decrement: %v", err)
	}
	if cleared {
		t.Fatal("expected cart to survive while another line remains")
	}
	if len(updated.Items) != 1 {
		t.Fatalf("expected 1 line after decrement to zero, got %d", len(updated.Items))
	}
	if updated.Items[0].ProductID != keep.ID {
		t.Fatalf("expected remaining line for %s, got %s", keep.ID, updated.Items[0].ProductID)
	}
	if updated.TotalPrice != 500 {
		t.Fatalf("expected total price 500, got %d", updated.TotalPrice)
	}
}

func TestCartSnapshotFreezesPrice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	productRepo := catalog.NewPostgresRepository(db)
	cartRepo := cart.NewPostgresRepository(db)
	svc := cart.NewService(cartRepo, nil, productRepo, logger)

	product := seedProduct(ctx, t, productRepo, 1000, 0)
	userID := uuid.NewString()

	if _, _, err := svc.UpsertItem(ctx, userID, product.ID, 3); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	if err := productRepo.UpdatePrice(ctx, product.ID, 9999, 0); err != nil {
		t.Fatalf("failed to update price: %v", err)
	}

	fetched, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if fetched.TotalPrice != 3*1000 {
		t.Fatalf("expected total frozen at %d, got %d", 3*1000, fetched.TotalPrice)
	}
	if fetched.Items[0].Snapshot.Price != 1000 {
		t.Fatalf("expected snapshot price 1000, got %d", fetched.Items[0].Snapshot.Price)
	}

	// Touching the line refreshes the snapshot to the current catalog row.
	refreshed, _, err := svc.UpsertItem(ctx, userID, product.ID, 3)
	if err != nil {
		t.Fatalf("failed to re-add item: %v", err)
	}
	if refreshed.TotalPrice != 3*9999 {
		t.Fatalf("expected total %d after refresh, got %d", 3*9999, refreshed.TotalPrice)
	}
}

func TestCartWithRedisCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	redisClient, redisCleanup := SetupRedis(ctx, t)
	defer redisCleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	productRepo := catalog.NewPostgresRepository(db)
	cartRepo := cart.NewPostgresRepository(db)
	cache := cart.NewRedisCache(redisClient)
	svc := cart.NewService(cartRepo, cache, productRepo, logger)

	product := seedProduct(ctx, t, productRepo, 1000, 0)
	userID := uuid.NewString()

	if _, _, err := svc.UpsertItem(ctx, userID, product.ID, 2); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	first, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if first.TotalItems != 2 {
		t.Fatalf("expected 2 total items, got %d", first.TotalItems)
	}

	cached, err := cache.Get(ctx, userID)
	if err != nil {
		t.Fatalf("expected cart to be cached after read: %v", err)
	}
	if cached.TotalItems != 2 {
		t.Fatalf("expected cached cart with 2 items, got %d", cached.TotalItems)
	}

	// A mutation invalidates the cached aggregate so the next read sees the
	// new totals.
	if _, _, err := svc.UpsertItem(ctx, userID, product.ID, 7); err != nil {
		t.Fatalf("failed to re-add item: %v", err)
	}

	if _, err := cache.Get(ctx, userID); !errors.Is(err, cart.ErrCacheMiss) {
		t.Fatalf("expected cache miss after mutation, got %v", err)
	}

	second, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if second.TotalItems != 7 {
		t.Fatalf("expected 7 total items after mutation, got %d", second.TotalItems)
	}
}

func TestOrderLifecycleFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userRepo := identity.NewPostgresRepository(db)
	productRepo := catalog.NewPostgresRepository(db)
	orderRepo := orders.NewPostgresRepository(db)
	svc := orders.NewService(orderRepo, productRepo, userRepo, nil, logger)

	user := seedUser(ctx, t, userRepo)
	product := seedProduct(ctx, t, productRepo, 2500, 0)

	order, err := svc.Create(ctx, orders.CreateParams{
		UserID:          user.ID,
		ProductID:       product.ID,
		ShippingAddress: testAddress(user.Email),
		TotalPrice:      2500,
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pending, got %s", order.Status)
	}
	if order.User.Email != user.Email {
		t.Fatalf("expected user snapshot email %s, got %s", user.Email, order.User.Email)
	}
	if order.Product.Price != 2500 {
		t.Fatalf("expected product snapshot price 2500, got %d", order.Product.Price)
	}

	if _, err := svc.Transition(ctx, order.ID, domain.OrderStatusConfirmed, ""); err != nil {
		t.Fatalf("failed to confirm order: %v", err)
	}

	shipped, err := svc.Transition(ctx, order.ID, domain.OrderStatusShipped, "TRACK-42")
	if err != nil {
		t.Fatalf("failed to ship order: %v", err)
	}
	if shipped.TrackingNumber != "TRACK-42" {
		t.Fatalf("expected tracking number TRACK-42, got %q", shipped.TrackingNumber)
	}

	delivered, err := svc.Transition(ctx, order.ID, domain.OrderStatusDelivered, "")
	if err != nil {
		t.Fatalf("failed to deliver order: %v", err)
	}
	if !delivered.IsDelivered {
		t.Fatal("expected is_delivered to be set")
	}
	if delivered.DeliveredAt == nil {
		t.Fatal("expected delivered_at to be set")
	}

	stored, err := orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if stored.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected stored status delivered, got %s", stored.Status)
	}
	if stored.TrackingNumber != "TRACK-42" {
		t.Fatalf("expected stored tracking number TRACK-42, got %q", stored.TrackingNumber)
	}

	// Delivered is terminal.
	if _, err := svc.Transition(ctx, order.ID, domain.OrderStatusConfirmed, ""); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for transition out of delivered, got %v", err)
	}
}

func TestOrderCancellationByOwner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userRepo := identity.NewPostgresRepository(db)
	productRepo := catalog.NewPostgresRepository(db)
	orderRepo := orders.NewPostgresRepository(db)
	svc := orders.NewService(orderRepo, productRepo, userRepo, nil, logger)

	user := seedUser(ctx, t, userRepo)
	product := seedProduct(ctx, t, productRepo, 2500, 0)

	order, err := svc.Create(ctx, orders.CreateParams{
		UserID:          user.ID,
		ProductID:       product.ID,
		ShippingAddress: testAddress(user.Email),
		TotalPrice:      2500,
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if _, err := svc.CancelByOwner(ctx, order.ID, "someone-else"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	stored, err := orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("expected status unchanged after forbidden cancel, got %s", stored.Status)
	}

	cancelled, err := svc.CancelByOwner(ctx, order.ID, user.ID)
	if err != nil {
		t.Fatalf("failed to cancel as owner: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected status cancelled, got %s", cancelled.Status)
	}
}

func TestKafkaOrderEventRoundtrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderCreated)
	defer func() { _ = producer.Close() }()

	event := domain.OrderCreatedEvent{
		OrderID:       "order-1",
		UserID:        "user-1",
		ProductID:     "product-1",
		ProductName:   "Test Product",
		CustomerEmail: "customer@example.com",
		TotalPrice:    2500,
		Timestamp:     time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderID, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderCreated, "test-consumer",
		messaging.WithStartOffset(segkafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()

	received := make(chan []byte, 1)
	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
			received <- payload
			return nil
		})
	}()

	select {
	case payload := <-received:
		var got domain.OrderCreatedEvent
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if got.OrderID != event.OrderID {
			t.Fatalf("expected order ID %s, got %s", event.OrderID, got.OrderID)
		}
		if got.CustomerEmail != event.CustomerEmail {
			t.Fatalf("expected customer email %s, got %s", event.CustomerEmail, got.CustomerEmail)
		}
	case <-time.After(60 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

type emailCapture struct {
	mu     sync.Mutex
	emails []map[string]string
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, req)
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (e *emailCapture) getEmails() []map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]map[string]string, len(e.emails))
	copy(result, e.emails)
	return result
}

func TestNotificationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	emailCap := &emailCapture{}
	emailMux := http.NewServeMux()
	emailMux.HandleFunc("POST /send", emailCap.handler)
	emailServer := httptest.NewServer(emailMux)
	defer emailServer.Close()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	handler := notifier.NewHandler(emailServer.URL, httpClient, logger)

	created := domain.OrderCreatedEvent{
		OrderID:       "order-1",
		UserID:        "user-1",
		ProductID:     "product-1",
		ProductName:   "Test Product",
		CustomerEmail: "customer@example.com",
		TotalPrice:    2500,
		Timestamp:     time.Now().UTC(),
	}
	createdPayload, err := json.Marshal(created)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	if err := handler.HandleOrderCreated(ctx, createdPayload); err != nil {
		t.Fatalf("order created handler failed: %v", err)
	}

	shipped := domain.OrderStatusChangedEvent{
		OrderID:        "order-1",
		UserID:         "user-1",
		CustomerEmail:  "customer@example.com",
		OldStatus:      domain.OrderStatusConfirmed,
		NewStatus:      domain.OrderStatusShipped,
		TrackingNumber: "TRACK-42",
		Timestamp:      time.Now().UTC(),
	}
	shippedPayload, err := json.Marshal(shipped)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	if err := handler.HandleStatusChanged(ctx, shippedPayload); err != nil {
		t.Fatalf("status changed handler failed: %v", err)
	}

	emails := emailCap.getEmails()
	if len(emails) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(emails))
	}

	if !strings.Contains(emails[0]["subject"], "Order received") {
		t.Fatalf("expected order received email, got subject: %s", emails[0]["subject"])
	}
	if emails[0]["to"] != "customer@example.com" {
		t.Fatalf("unexpected recipient: %s", emails[0]["to"])
	}

	if !strings.Contains(emails[1]["subject"], "Order shipped") {
		t.Fatalf("expected order shipped email, got subject: %s", emails[1]["subject"])
	}
	if !strings.Contains(emails[1]["body"], "TRACK-42") {
		t.Fatalf("expected body to mention tracking number, got: %s", emails[1]["body"])
	}
}
