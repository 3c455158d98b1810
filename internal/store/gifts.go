package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront/internal/models"
)

// CreateGift stores a gift code; repeating an (order, product, unit) is a no-op
func (s *Store) CreateGift(ctx context.Context, g *models.GiftCode) (bool, error) {
	query := `
		INSERT INTO gifts (code, from_customer, to_customer, product_id, unit, price, order_id, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		g.Code, g.From, g.To, g.ProductID, g.Unit, g.Price, g.OrderID, g.PurchasedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetGift retrieves a gift by code, nil when absent
func (s *Store) GetGift(ctx context.Context, code string) (*models.GiftCode, error) {
	var g models.GiftCode
	err := s.db.GetContext(ctx, &g, "SELECT * FROM gifts WHERE code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ClaimGift redeems an unredeemed gift for its recipient in a single conditional
// update. It reports false when another claim got there first. A nil expiresAt
// never expires.
func (s *Store) ClaimGift(ctx context.Context, code, to string, expiresAt *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE gifts SET redeemed = TRUE, expires_at = $1 WHERE code = $2 AND to_customer = $3 AND redeemed = FALSE",
		expiresAt, code, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListGiftsFor retrieves gifts addressed to a recipient, newest first
func (s *Store) ListGiftsFor(ctx context.Context, to string) ([]models.GiftCode, error) {
	var gifts []models.GiftCode
	err := s.db.SelectContext(ctx, &gifts,
		"SELECT * FROM gifts WHERE to_customer = $1 ORDER BY purchased_at DESC", to)
	return gifts, err
}
