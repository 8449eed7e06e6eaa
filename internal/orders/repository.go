package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/shopflow/shopflow/internal/domain"
)

// PostgresRepository persists orders as single rows; the user and product
// snapshots are JSONB columns frozen at creation time.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `
	id, user_id, product_id, user_snapshot, product_snapshot,
	full_name, address, city, state, postal_code, phone, email,
	status, is_paid, paid_at, is_delivered, delivered_at,
	total_price, tax, shipping_cost, discount, order_notes, tracking_number,
	created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, o *domain.Order) error {
	userSnapshot, err := json.Marshal(o.User)
	if err != nil {
		return fmt.Errorf("marshal user snapshot: %w", err)
	}
	productSnapshot, err := json.Marshal(o.Product)
	if err != nil {
		return fmt.Errorf("marshal product snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23,
		        $24, $25)
	`,
		o.ID, o.UserID, o.ProductID, userSnapshot, productSnapshot,
		o.ShippingAddress.FullName, o.ShippingAddress.Address, o.ShippingAddress.City,
		o.ShippingAddress.State, o.ShippingAddress.PostalCode, o.ShippingAddress.Phone,
		o.ShippingAddress.Email,
		o.Status, o.IsPaid, o.PaidAt, o.IsDelivered, o.DeliveredAt,
		o.TotalPrice, o.Tax, o.ShippingCost, o.Discount, o.OrderNotes, o.TrackingNumber,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return order, nil
}

// UpdateStatus writes the status and all status-derived fields in one
// statement, so an order row never shows a half-applied transition.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, o *domain.Order) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, is_paid = $2, paid_at = $3, is_delivered = $4,
		    delivered_at = $5, tracking_number = $6, updated_at = $7
		WHERE id = $8
	`, o.Status, o.IsPaid, o.PaidAt, o.IsDelivered, o.DeliveredAt, o.TrackingNumber, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order %s vanished during update", o.ID)
	}

	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

// ListAll returns every order, optionally filtered to a status set, newest
// first.
func (r *PostgresRepository) ListAll(ctx context.Context, statuses []domain.OrderStatus) ([]domain.Order, error) {
	if len(statuses) == 0 {
		return r.list(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			ORDER BY created_at DESC
		`)
	}

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = ANY($1)
		ORDER BY created_at DESC
	`, pq.Array(names))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                             domain.Order
		userSnapshot, productSnapshot []byte
	)

	err := row.Scan(
		&o.ID, &o.UserID, &o.ProductID, &userSnapshot, &productSnapshot,
		&o.ShippingAddress.FullName, &o.ShippingAddress.Address, &o.ShippingAddress.City,
		&o.ShippingAddress.State, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Phone,
		&o.ShippingAddress.Email,
		&o.Status, &o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt,
		&o.TotalPrice, &o.Tax, &o.ShippingCost, &o.Discount, &o.OrderNotes, &o.TrackingNumber,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(userSnapshot, &o.User); err != nil {
		return nil, fmt.Errorf("unmarshal user snapshot: %w", err)
	}
	if err := json.Unmarshal(productSnapshot, &o.Product); err != nil {
		return nil, fmt.Errorf("unmarshal product snapshot: %w", err)
	}

	return &o, nil
}
