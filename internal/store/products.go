package store

import (
	"context"

	"storefront/internal/models"
)

// UpsertProduct mirrors a gateway product locally
func (s *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, image, type, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			type = EXCLUDED.type,
			active = EXCLUDED.active,
			updated_at = NOW()
		RETURNING updated_at`

	return s.db.GetContext(ctx, &p.UpdatedAt, query, p.ID, p.Name, p.Image, p.Type, p.Active)
}

// GetProducts retrieves all mirrored products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY name")
	return products, err
}
