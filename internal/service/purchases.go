package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// OrderView is a purchase record with display totals
type OrderView struct {
	ID            string                    `json:"id"`
	Type          models.ProductType        `json:"type"`
	Gateway       string                    `json:"gateway"`
	Items         []models.PurchaseItem     `json:"items"`
	Discounts     []models.PurchaseDiscount `json:"discounts"`
	Subtotal      int64                     `json:"subtotal"`
	Tax           int64                     `json:"tax"`
	DiscountTotal int64                     `json:"discountTotal"`
	Total         int64                     `json:"total"`
	IsGift        bool                      `json:"isGift"`
	GiftFor       string                    `json:"giftFor,omitempty"`
	PurchaseTime  time.Time                 `json:"purchaseTime"`
	RefundID      *string                   `json:"refundId,omitempty"`
}

// PurchaseService builds order history views from purchase records
type PurchaseService struct {
	purchases PurchaseRepository
	logger    *zap.Logger
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(purchases PurchaseRepository) *PurchaseService {
	return &PurchaseService{
		purchases: purchases,
		logger:    util.GetLogger(),
	}
}

// NewOrderView aggregates one purchase record
func NewOrderView(p models.PurchaseRecord) OrderView {
	totals := pricing.PurchaseTotals(p)
	return OrderView{
		ID:            p.ID,
		Type:          p.Type,
		Gateway:       p.Gateway,
		Items:         p.Items,
		Discounts:     p.Discounts,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		DiscountTotal: totals.Discount,
		Total:         totals.Total,
		IsGift:        p.IsGift,
		GiftFor:       p.GiftFor,
		PurchaseTime:  p.PurchaseTime,
		RefundID:      p.RefundID,
	}
}

// ListOrders returns the customer's orders, newest first
func (s *PurchaseService) ListOrders(ctx context.Context, customerID string) ([]OrderView, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.ListOrders", "customer_id", customerID)
	defer span.End()

	records, err := s.purchases.ListPurchasesByCustomer(ctx, customerID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	views := make([]OrderView, 0, len(records))
	for _, r := range records {
		views = append(views, NewOrderView(r))
	}
	return views, nil
}

// GetOrder returns one order owned by the customer
func (s *PurchaseService) GetOrder(ctx context.Context, customerID, orderID string) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.GetOrder", "order_id", orderID)
	defer span.End()

	record, err := s.purchases.GetPurchase(ctx, orderID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if record == nil || record.CustomerID != customerID {
		return nil, apperr.New(apperr.ErrOrderNotFound, "Order %s was not found", orderID)
	}

	view := NewOrderView(*record)
	return &view, nil
}
