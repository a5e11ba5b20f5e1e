package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inventory-service/internal/models"

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

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetSKUByID retrieves a SKU by ID
func (s *Store) GetSKUByID(ctx context.Context, id int64) (*models.SKU, error) {
	var sku models.SKU
	err := s.db.GetContext(ctx, &sku, "SELECT * FROM skus WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

// ProductSKUExists reports whether the (product, SKU) pair resolves to an
// existing, non-deleted catalog entry. The SKU must belong to the product:
// a valid SKU id paired with the wrong product does not count.
func (s *Store) ProductSKUExists(ctx context.Context, productID, skuID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM products p
			JOIN skus sk ON sk.id = $2 AND sk.spu_id = p.id
			WHERE p.id = $1
			  AND p.status <> $3
			  AND sk.status <> $4
		)`, productID, skuID, models.ProductStatusDeleted, models.SKUStatusDeleted)
	return exists, err
}

// GetSKUAttributeSets retrieves the attribute sets of every SKU under the
// given (spuID, modelSlug) product model.
func (s *Store) GetSKUAttributeSets(ctx context.Context, spuID int64, modelSlug string) ([]models.AttributeSet, error) {
	var rows []struct {
		ID         int64               `db:"id"`
		Attributes models.AttributeSet `db:"attributes"`
	}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, attributes FROM skus WHERE spu_id = $1 AND spu_model_slug = $2 AND status <> $3",
		spuID, modelSlug, models.SKUStatusDeleted)
	if err != nil {
		return nil, err
	}

	sets := make([]models.AttributeSet, 0, len(rows))
	for _, r := range rows {
		sets = append(sets, r.Attributes)
	}
	return sets, nil
}
