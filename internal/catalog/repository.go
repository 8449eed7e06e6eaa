package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopflow/shopflow/internal/domain"
)

// PostgresRepository is the product side of the catalog provider consumed by
// the cart and order services.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, short_description, description, stock, price,
		                      sale_price, feature_image, best_selling, new_arrival, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.Name, p.ShortDescription, p.Description, p.Stock, p.Price,
		p.SalePrice, p.FeatureImage, p.BestSelling, p.NewArrival, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProduct returns (nil, nil) when the product does not exist.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, short_description, description, stock, price,
		       sale_price, feature_image, best_selling, new_arrival, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.ShortDescription, &p.Description, &p.Stock, &p.Price,
		&p.SalePrice, &p.FeatureImage, &p.BestSelling, &p.NewArrival, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, short_description, description, stock, price,
		       sale_price, feature_image, best_selling, new_arrival, created_at
		FROM products
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.ShortDescription, &p.Description, &p.Stock, &p.Price,
			&p.SalePrice, &p.FeatureImage, &p.BestSelling, &p.NewArrival, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// UpdatePrice is used by catalog maintenance; existing cart lines and orders
// keep their snapshotted prices untouched.
func (r *PostgresRepository) UpdatePrice(ctx context.Context, id string, price, salePrice int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET price = $1, sale_price = $2 WHERE id = $3
	`, price, salePrice, id)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
