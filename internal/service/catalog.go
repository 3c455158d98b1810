package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Shape selects the normalized form a product is rendered into
type Shape string

// Product shapes
const (
	ShapeCart    Shape = "cart"
	ShapeListing Shape = "listing"
)

const catalogListingKey = "active"

// AnnualQuote is the yearly charge shown for a subscription
type AnnualQuote struct {
	Value  int64                `json:"value"`
	Source pricing.AnnualSource `json:"source"`
}

// NormalizedProduct is a gateway product reshaped for the storefront
type NormalizedProduct struct {
	models.CartItem
	Hidden bool         `json:"hidden,omitempty"`
	Annual *AnnualQuote `json:"annual,omitempty"`
}

// CatalogService resolves gateway products into cart-ready form
type CatalogService struct {
	gateway  CatalogGateway
	products ProductRepository
	cache    Cache
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(gw CatalogGateway, products ProductRepository, cache Cache) *CatalogService {
	return &CatalogService{
		gateway:  gw,
		products: products,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

func formatKey(productID string, shape Shape) string {
	return productID + ":" + string(shape)
}

// Format returns the normalized product, reading through the price cache
func (s *CatalogService) Format(ctx context.Context, productID string, shape Shape) (*NormalizedProduct, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Format", "product_id", productID)
	defer span.End()

	if strings.TrimSpace(productID) == "" {
		return nil, apperr.Validation("A product id is required")
	}

	key := formatKey(productID, shape)
	var cached NormalizedProduct
	if s.cacheGet(ctx, redisclient.ClassPrices, key, &cached) {
		return &cached, nil
	}

	p, err := s.gateway.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Error("Failed to fetch product",
			zap.String("product_id", productID),
			zap.Error(err))
		util.FailSpan(span, err)
		return nil, gatewayFailure(err, apperr.New(apperr.ErrProductNotFound, "Product %s was not found", productID))
	}

	normalized, err := normalize(p, shape)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, redisclient.ClassPrices, key, normalized)
	return normalized, nil
}

// normalize sorts prices ascending and defaults the selection to the cheapest
func normalize(p *gateway.Product, shape Shape) (*NormalizedProduct, error) {
	if len(p.Prices) == 0 {
		return nil, apperr.New(apperr.ErrNoPricesAvailable, "%s has no prices available", p.Name)
	}

	prices := make([]models.PriceOption, len(p.Prices))
	copy(prices, p.Prices)
	gateway.SortPrices(prices)

	n := &NormalizedProduct{
		CartItem: models.CartItem{
			ID:            p.ID,
			Name:          p.Name,
			Type:          p.Type,
			Image:         p.Image,
			Quantity:      1,
			Prices:        prices,
			SelectedPrice: prices[0].ID,
		},
		Hidden: p.Hidden,
	}

	if shape == ShapeListing && p.Type == models.ProductTypeSubscription {
		if value, source, ok := pricing.AnnualPrice(prices); ok {
			n.Annual = &AnnualQuote{Value: value, Source: source}
		}
	}
	return n, nil
}

// ListCatalog returns every visible product with prices, through the catalog cache
func (s *CatalogService) ListCatalog(ctx context.Context) ([]NormalizedProduct, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCatalog")
	defer span.End()

	var cached []NormalizedProduct
	if s.cacheGet(ctx, redisclient.ClassCatalog, catalogListingKey, &cached) {
		return cached, nil
	}

	products, err := s.gateway.ListProducts(ctx)
	if err != nil {
		s.logger.Error("Failed to list products", zap.Error(err))
		util.FailSpan(span, err)
		return nil, gatewayFailure(err, nil)
	}

	listing := make([]NormalizedProduct, 0, len(products))
	for _, p := range products {
		if p.Hidden {
			continue
		}
		n, err := s.Format(ctx, p.ID, ShapeListing)
		if errors.Is(err, apperr.ErrNoPricesAvailable) {
			s.logger.Warn("Skipping product without prices", zap.String("product_id", p.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		listing = append(listing, *n)
	}

	s.cacheSet(ctx, redisclient.ClassCatalog, catalogListingKey, listing)
	return listing, nil
}

// ProductRequest is a staff create or update of a product
type ProductRequest struct {
	Name   string               `json:"name"`
	Image  string               `json:"image"`
	Type   models.ProductType   `json:"type"`
	Hidden bool                 `json:"hidden"`
	Active *bool                `json:"active,omitempty"`
	Prices []models.PriceOption `json:"prices"`
}

// CreateProduct creates a gateway product, mirrors it and drops stale listings
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*NormalizedProduct, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("A product name is required")
	}
	if !req.Type.Valid() {
		return nil, apperr.Validation("Product type must be single, subscription or giftable")
	}
	if len(req.Prices) == 0 {
		return nil, apperr.Validation("At least one price is required")
	}
	for _, p := range req.Prices {
		if p.Value <= 0 {
			return nil, apperr.Validation("Prices must be positive")
		}
	}

	p, err := s.gateway.CreateProduct(ctx, gateway.ProductInput{
		Name:   req.Name,
		Image:  req.Image,
		Type:   req.Type,
		Hidden: req.Hidden,
		Prices: req.Prices,
	})
	if err != nil {
		s.logger.Error("Failed to create product", zap.String("name", req.Name), zap.Error(err))
		util.FailSpan(span, err)
		return nil, gatewayFailure(err, nil)
	}

	if err := s.afterProductChange(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.String("product_id", p.ID))
	return normalize(p, ShapeListing)
}

// UpdateProduct changes a gateway product, mirrors it and drops stale listings
func (s *CatalogService) UpdateProduct(ctx context.Context, productID string, req *ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct", "product_id", productID)
	defer span.End()

	if req.Type != "" && !req.Type.Valid() {
		return nil, apperr.Validation("Product type must be single, subscription or giftable")
	}

	p, err := s.gateway.UpdateProduct(ctx, productID, gateway.ProductInput{
		Name:   req.Name,
		Image:  req.Image,
		Type:   req.Type,
		Hidden: req.Hidden,
		Active: req.Active,
	})
	if err != nil {
		s.logger.Error("Failed to update product", zap.String("product_id", productID), zap.Error(err))
		util.FailSpan(span, err)
		return nil, gatewayFailure(err, apperr.New(apperr.ErrProductNotFound, "Product %s was not found", productID))
	}

	if err := s.afterProductChange(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.String("product_id", p.ID))
	return toLocalProduct(p), nil
}

// ListMirrored returns the local product mirror, including hidden and inactive products
func (s *CatalogService) ListMirrored(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListMirrored")
	defer span.End()

	products, err := s.products.GetProducts(ctx)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// afterProductChange mirrors p locally and invalidates every cache it appears in.
// Invalidation must succeed before the change is reported.
func (s *CatalogService) afterProductChange(ctx context.Context, p *gateway.Product) error {
	if err := s.products.UpsertProduct(ctx, toLocalProduct(p)); err != nil {
		return fmt.Errorf("failed to mirror product: %w", err)
	}

	if err := s.cache.CacheDelete(ctx, redisclient.ClassPrices,
		formatKey(p.ID, ShapeCart), formatKey(p.ID, ShapeListing)); err != nil {
		return fmt.Errorf("failed to invalidate product cache: %w", err)
	}
	if _, err := s.cache.InvalidateClass(ctx, redisclient.ClassCatalog); err != nil {
		return fmt.Errorf("failed to invalidate catalog cache: %w", err)
	}
	return nil
}

func toLocalProduct(p *gateway.Product) *models.Product {
	return &models.Product{
		ID:     p.ID,
		Name:   p.Name,
		Image:  p.Image,
		Type:   p.Type,
		Active: p.Active,
	}
}

// cacheGet is advisory: errors are logged and read as a miss
func (s *CatalogService) cacheGet(ctx context.Context, class redisclient.CacheClass, key string, dst interface{}) bool {
	found, err := s.cache.CacheGet(ctx, class, key, dst)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("class", class.Name), zap.String("key", key), zap.Error(err))
		util.CatalogCacheTotal.WithLabelValues(class.Name, "error").Inc()
		return false
	}
	if found {
		util.CatalogCacheTotal.WithLabelValues(class.Name, "hit").Inc()
	} else {
		util.CatalogCacheTotal.WithLabelValues(class.Name, "miss").Inc()
	}
	return found
}

func (s *CatalogService) cacheSet(ctx context.Context, class redisclient.CacheClass, key string, value interface{}) {
	if err := s.cache.CacheSet(ctx, class, key, value); err != nil {
		s.logger.Warn("Cache write failed", zap.String("class", class.Name), zap.String("key", key), zap.Error(err))
	}
}
