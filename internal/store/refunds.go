package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"
)

// CreateRefund inserts a refund case; it reports false when the order already has one
func (s *Store) CreateRefund(ctx context.Context, r *models.RefundRequest) (bool, error) {
	query := `
		INSERT INTO refunds (id, order_id, gateway, purchased_by, emails, purchase_type, subscription_id, reason, content, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		r.ID, r.Order, r.Gateway, r.PurchasedBy, r.Emails, r.PurchaseType,
		r.SubscriptionID, r.Reason, r.Content, r.Status,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRefundByOrder retrieves the refund case of an order, nil when absent
func (s *Store) GetRefundByOrder(ctx context.Context, orderID string) (*models.RefundRequest, error) {
	var r models.RefundRequest
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM refunds WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRefund retrieves a refund case by id, nil when absent
func (s *Store) GetRefund(ctx context.Context, id string) (*models.RefundRequest, error) {
	var r models.RefundRequest
	err := s.db.GetContext(ctx, &r, "SELECT * FROM refunds WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRefundsByStatus retrieves refund cases in a status, oldest first
func (s *Store) ListRefundsByStatus(ctx context.Context, status models.RefundStatus) ([]models.RefundRequest, error) {
	var refunds []models.RefundRequest
	err := s.db.SelectContext(ctx, &refunds,
		"SELECT * FROM refunds WHERE status = $1 ORDER BY created_at", status)
	return refunds, err
}

// TransitionRefund moves a refund from one status to another; false when it was not in from
func (s *Store) TransitionRefund(ctx context.Context, id string, from, to models.RefundStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE refunds SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
