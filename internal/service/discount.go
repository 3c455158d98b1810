package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// DiscountService validates promotion codes and prices the cart against them
type DiscountService struct {
	gateway PromotionGateway
	now     func() time.Time
	logger  *zap.Logger
}

// NewDiscountService creates a new discount service
func NewDiscountService(gw PromotionGateway) *DiscountService {
	return &DiscountService{
		gateway: gw,
		now:     time.Now,
		logger:  util.GetLogger(),
	}
}

// Apply validates code against the live gateway state and makes it the session's
// only active discount
func (s *DiscountService) Apply(ctx context.Context, sess *session.Session, code string) (*models.DiscountCode, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Apply")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		util.DiscountApplicationsTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.Validation("A discount code is required")
	}

	promo, err := s.gateway.LookupPromotion(ctx, code)
	if errors.Is(err, gateway.ErrNotFound) {
		util.DiscountApplicationsTotal.WithLabelValues("unknown").Inc()
		return nil, apperr.New(apperr.ErrDiscountInvalid, "Discount code %s is not valid", code)
	}
	if err != nil {
		s.logger.Error("Failed to look up promotion code", zap.String("code", code), zap.Error(err))
		util.FailSpan(span, err)
		util.DiscountApplicationsTotal.WithLabelValues("error").Inc()
		return nil, gatewayFailure(err, nil)
	}

	if err := s.usable(promo); err != nil {
		util.DiscountApplicationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	discount := promo.Discount
	sess.SetDiscount(discount)
	util.DiscountApplicationsTotal.WithLabelValues("applied").Inc()
	s.logger.Info("Discount applied", zap.String("code", discount.Code), zap.String("session_id", sess.ID()))
	return &discount, nil
}

// usable checks the promotion is active, unexpired, under its redemption limit
// and carries exactly one kind of amount
func (s *DiscountService) usable(promo *gateway.Promotion) error {
	d := promo.Discount
	if !promo.Active {
		return apperr.New(apperr.ErrDiscountInvalid, "Discount code %s is no longer active", d.Code)
	}
	if d.Expires != nil && !d.Expires.After(s.now()) {
		return apperr.New(apperr.ErrDiscountInvalid, "Discount code %s has expired", d.Code)
	}
	if promo.MaxRedemptions > 0 && d.Redemptions >= promo.MaxRedemptions {
		return apperr.New(apperr.ErrDiscountInvalid, "Discount code %s has been fully redeemed", d.Code)
	}
	if (d.Amount.Percent == nil) == (d.Amount.Dollars == nil) {
		return apperr.New(apperr.ErrDiscountInvalid, "Discount code %s cannot be applied", d.Code)
	}
	return nil
}

// Remove drops the active discount
func (s *DiscountService) Remove(sess *session.Session) {
	sess.UnsetDiscount()
}

// Get returns the active discount or DiscountNotActive
func (s *DiscountService) Get(sess *session.Session) (*models.DiscountCode, error) {
	d, ok := sess.Discount()
	if !ok {
		return nil, apperr.New(apperr.ErrDiscountNotActive, "No discount is active")
	}
	return &d, nil
}

// Quote prices the session cart with tax and the active discount
func (s *DiscountService) Quote(sess *session.Session) (*pricing.Quote, error) {
	var discount *models.DiscountCode
	if d, ok := sess.Discount(); ok {
		discount = &d
	}

	q, err := pricing.QuoteCart(sess.Cart(), discount)
	if err != nil {
		return nil, apperr.Validation("Your cart has an item without a price, please re-add it")
	}
	return &q, nil
}
