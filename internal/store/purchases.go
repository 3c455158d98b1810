package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"
)

// InsertPurchase records a purchase once; it reports false when the id already exists
func (s *Store) InsertPurchase(ctx context.Context, p *models.PurchaseRecord) (bool, error) {
	query := `
		INSERT INTO purchases (id, customer_id, type, items, discounts, is_gift, gift_for, purchase_time, gateway, subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.CustomerID, p.Type, p.Items, p.Discounts, p.IsGift, p.GiftFor,
		p.PurchaseTime, p.Gateway, p.SubscriptionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetPurchase retrieves a purchase by gateway invoice or order id, nil when absent
func (s *Store) GetPurchase(ctx context.Context, id string) (*models.PurchaseRecord, error) {
	var p models.PurchaseRecord
	err := s.db.GetContext(ctx, &p, "SELECT * FROM purchases WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPurchasesByCustomer retrieves a customer's purchases, newest first
func (s *Store) ListPurchasesByCustomer(ctx context.Context, customerID string) ([]models.PurchaseRecord, error) {
	var purchases []models.PurchaseRecord
	err := s.db.SelectContext(ctx, &purchases,
		"SELECT * FROM purchases WHERE customer_id = $1 ORDER BY purchase_time DESC", customerID)
	return purchases, err
}

// LinkRefund attaches a refund case to a purchase
func (s *Store) LinkRefund(ctx context.Context, purchaseID, refundID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE purchases SET refund_id = $1 WHERE id = $2 AND refund_id IS NULL", refundID, purchaseID)
	return err
}
