package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cart-sync-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductsByCategory retrieves catalog candidates for one category,
// newest first. Implements the cross-sell product lookup.
func (s *Store) ProductsByCategory(ctx context.Context, category string, limit int) ([]models.CrossSellCandidate, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE category = $1 AND stock > 0 ORDER BY created_at DESC LIMIT $2",
		category, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.CrossSellCandidate, 0, len(products))
	for i := range products {
		candidates = append(candidates, models.CrossSellCandidate{
			ProductID: products[i].ID,
			Title:     products[i].Title,
			Image:     products[i].Image,
			Price:     products[i].Price,
			Category:  products[i].Category,
		})
	}
	return candidates, nil
}

// GetDiscountByCode retrieves a discount code, matching case-insensitively.
// Returns nil when the code does not exist.
func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var discount models.DiscountCode
	err := s.db.GetContext(ctx, &discount,
		"SELECT code, kind, amount, stackable, exclusion_group FROM discount_codes WHERE LOWER(code) = $1",
		strings.ToLower(strings.TrimSpace(code)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}
