package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopflow/shopflow/internal/domain"
)

// PostgresRepository persists one cart row per user plus one cart_items row
// per line, with each line's product snapshot as JSONB.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID}

	err := r.db.QueryRowContext(ctx, `
		SELECT total_items, total_price, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&cart.TotalItems, &cart.TotalPrice, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, snapshot
		FROM cart_items
		WHERE user_id = $1
		ORDER BY line_no
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.CartLine
		var snapshot []byte
		if err := rows.Scan(&line.ProductID, &line.Quantity, &snapshot); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if err := json.Unmarshal(snapshot, &line.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal product snapshot: %w", err)
		}
		cart.Items = append(cart.Items, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// Save upserts the aggregate row and replaces all lines in one transaction,
// so a concurrently read cart is always a consistent lines/totals pair.
func (r *PostgresRepository) Save(ctx context.Context, cart *domain.Cart) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (user_id, total_items, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET total_items = EXCLUDED.total_items,
		    total_price = EXCLUDED.total_price,
		    updated_at = EXCLUDED.updated_at
	`, cart.UserID, cart.TotalItems, cart.TotalPrice, cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, cart.UserID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}

	for i, line := range cart.Items {
		snapshot, err := json.Marshal(line.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal product snapshot: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity, snapshot, line_no)
			VALUES ($1, $2, $3, $4, $5)
		`, cart.UserID, line.ProductID, line.Quantity, snapshot, i)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	// cart_items rows go with the cart via ON DELETE CASCADE.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
