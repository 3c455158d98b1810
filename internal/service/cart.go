package service

import (
	"context"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ProductResolver turns a product id into its normalized form
type ProductResolver interface {
	Format(ctx context.Context, productID string, shape Shape) (*NormalizedProduct, error)
}

// CartService enforces cart composition rules on the session cart
type CartService struct {
	catalog ProductResolver
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(catalog ProductResolver) *CartService {
	return &CartService{
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// GetCart returns the session cart
func (s *CartService) GetCart(sess *session.Session) []models.CartItem {
	return sess.Cart()
}

// AddItem adds one unit of a product to the cart. A single-purchase item already
// present has its quantity incremented; re-adding a subscription changes nothing.
func (s *CartService) AddItem(ctx context.Context, sess *session.Session, productID string) ([]models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem", "product_id", productID)
	defer span.End()

	cart, err := s.addItem(ctx, sess.Cart(), productID)
	if err != nil {
		util.CartMutationsTotal.WithLabelValues("add", outcome(err)).Inc()
		util.FailSpan(span, err)
		return nil, err
	}

	sess.SetCart(cart)
	util.CartMutationsTotal.WithLabelValues("add", "ok").Inc()
	return cart, nil
}

func (s *CartService) addItem(ctx context.Context, cart []models.CartItem, productID string) ([]models.CartItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperr.Validation("A product id is required")
	}

	for i := range cart {
		if cart[i].ID != productID {
			continue
		}
		if cart[i].Type != models.ProductTypeSubscription {
			cart[i].Quantity++
		}
		return cart, nil
	}

	product, err := s.catalog.Format(ctx, productID, ShapeCart)
	if err != nil {
		return nil, err
	}

	if err := checkComposition(cart, product.CartItem); err != nil {
		return nil, err
	}
	return append(cart, product.CartItem), nil
}

// checkComposition rejects an item that would mix subscriptions with one-time
// purchases or add a second subscription
func checkComposition(cart []models.CartItem, item models.CartItem) error {
	isSub := item.Type == models.ProductTypeSubscription
	for _, existing := range cart {
		existingSub := existing.Type == models.ProductTypeSubscription
		switch {
		case isSub && existingSub:
			return apperr.New(apperr.ErrDuplicateSubscription,
				"Your cart already has a subscription, only one subscription can be purchased at a time")
		case isSub && !existingSub:
			return apperr.New(apperr.ErrCartConflict,
				"Subscriptions cannot be purchased together with one-time items, check out or clear your cart first")
		case !isSub && existingSub:
			return apperr.New(apperr.ErrCartConflict,
				"One-time items cannot be purchased together with a subscription, check out or clear your cart first")
		}
	}
	return nil
}

// SetCart replaces the cart. Each item is re-resolved against the catalog so only
// quantity and the chosen price are taken from the caller.
func (s *CartService) SetCart(ctx context.Context, sess *session.Session, items []models.CartItem) ([]models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SetCart")
	defer span.End()

	cart, err := s.setCart(ctx, items)
	if err != nil {
		util.CartMutationsTotal.WithLabelValues("set", outcome(err)).Inc()
		util.FailSpan(span, err)
		return nil, err
	}

	sess.SetCart(cart)
	util.CartMutationsTotal.WithLabelValues("set", "ok").Inc()
	return cart, nil
}

func (s *CartService) setCart(ctx context.Context, items []models.CartItem) ([]models.CartItem, error) {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return nil, apperr.Validation("Every cart item needs a product id")
		}
		if seen[item.ID] {
			return nil, apperr.Validation("Product %s appears more than once", item.ID)
		}
		seen[item.ID] = true
		if item.Quantity < 1 {
			return nil, apperr.Validation("Quantity must be at least 1")
		}
	}

	cart := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		product, err := s.catalog.Format(ctx, item.ID, ShapeCart)
		if err != nil {
			return nil, err
		}

		resolved := product.CartItem
		resolved.Quantity = item.Quantity
		if resolved.Type == models.ProductTypeSubscription {
			resolved.Quantity = 1
		}
		if item.SelectedPrice != "" {
			resolved.SelectedPrice = item.SelectedPrice
			if _, ok := resolved.Selected(); !ok {
				return nil, apperr.Validation("Price %s is not available for %s", item.SelectedPrice, resolved.Name)
			}
		}

		if err := checkComposition(cart, resolved); err != nil {
			return nil, err
		}
		cart = append(cart, resolved)
	}
	return cart, nil
}

// outcome labels an error for metrics
func outcome(err error) string {
	if e, ok := apperr.As(err); ok {
		return string(e.Code)
	}
	return "error"
}
