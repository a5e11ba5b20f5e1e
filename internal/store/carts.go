package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"inventory-service/internal/models"
)

type cartRow struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	Products  []byte       `db:"products"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

// GetCartByUserID retrieves a user's cart document; nil when the user has
// never had a cart.
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var row cartRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cart := &models.Cart{ID: row.ID, UserID: row.UserID}
	if row.UpdatedAt.Valid {
		cart.UpdatedAt = row.UpdatedAt.Time
	}
	if len(row.Products) > 0 {
		if err := json.Unmarshal(row.Products, &cart.Lines); err != nil {
			return nil, fmt.Errorf("failed to decode cart lines for user %d: %w", userID, err)
		}
	}
	return cart, nil
}

// SaveCart persists the full line list of a user's cart, creating the
// document on first write. The unique constraint on user_id guarantees at
// most one cart per user even if two first writes race.
func (s *Store) SaveCart(ctx context.Context, cart *models.Cart) error {
	lines := cart.Lines
	if lines == nil {
		lines = []models.CartLine{}
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart lines: %w", err)
	}

	query := `
		INSERT INTO carts (user_id, products)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET products = $2, updated_at = NOW()
		RETURNING id, updated_at`

	return s.db.QueryRowxContext(ctx, query, cart.UserID, payload).
		Scan(&cart.ID, &cart.UpdatedAt)
}
