package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"
)

// GetCustomer retrieves a customer by id, returning nil when absent
func (s *Store) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.GetContext(ctx, &c, "SELECT * FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCustomer creates or refreshes a customer record
func (s *Store) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (id, email, name, stripe_customer_id, paypal_payer_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = CASE WHEN EXCLUDED.name = '' THEN customers.name ELSE EXCLUDED.name END,
			stripe_customer_id = CASE WHEN EXCLUDED.stripe_customer_id = '' THEN customers.stripe_customer_id ELSE EXCLUDED.stripe_customer_id END,
			paypal_payer_id = CASE WHEN EXCLUDED.paypal_payer_id = '' THEN customers.paypal_payer_id ELSE EXCLUDED.paypal_payer_id END
		RETURNING created_at`

	return s.db.GetContext(ctx, &c.CreatedAt, query,
		c.ID, c.Email, c.Name, c.StripeCustomerID, c.PayPalPayerID)
}

// SetCustomerName stores the display name if none is set yet
func (s *Store) SetCustomerName(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE customers SET name = $1 WHERE id = $2 AND name = ''", name, id)
	return err
}
