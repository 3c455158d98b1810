package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// GiftService redeems gift codes
type GiftService struct {
	gifts  GiftRepository
	events EventPublisher
	now    func() time.Time
	logger *zap.Logger
}

// NewGiftService creates a new gift service
func NewGiftService(gifts GiftRepository, events EventPublisher) *GiftService {
	return &GiftService{
		gifts:  gifts,
		events: events,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Claim redeems code for userID. The guards run in order: the code must exist,
// must not be redeemed, and must be addressed to the caller. Redemption itself is
// a conditional write so only one concurrent claim can win.
func (s *GiftService) Claim(ctx context.Context, code, userID string) (*models.GiftCode, error) {
	ctx, span := util.StartSpan(ctx, "GiftService.Claim", "code", code)
	defer span.End()

	gift, err := s.claim(ctx, strings.TrimSpace(code), userID)
	if err != nil {
		util.GiftClaimsTotal.WithLabelValues(outcome(err)).Inc()
		util.FailSpan(span, err)
		return nil, err
	}
	util.GiftClaimsTotal.WithLabelValues("ok").Inc()
	return gift, nil
}

func (s *GiftService) claim(ctx context.Context, code, userID string) (*models.GiftCode, error) {
	if code == "" {
		return nil, apperr.Validation("A gift code is required")
	}

	gift, err := s.gifts.GetGift(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get gift: %w", err)
	}
	if gift == nil {
		return nil, apperr.New(apperr.ErrGiftNotFound, "Gift code %s was not found", code)
	}
	if gift.Redeemed {
		return nil, apperr.New(apperr.ErrAlreadyRedeemed, "This gift has already been redeemed")
	}
	if gift.To != userID {
		return nil, apperr.New(apperr.ErrRecipientMismatch, "This gift was sent to a different account")
	}

	expiresAt := GiftExpiry(s.now(), gift.Price.PriceOption)

	ok, err := s.gifts.ClaimGift(ctx, code, userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to claim gift: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.ErrAlreadyRedeemed, "This gift has already been redeemed")
	}

	gift.Redeemed = true
	gift.ExpiresAt = expiresAt

	event := &models.GiftClaimedEvent{Code: gift.Code, To: userID, ExpiresAt: expiresAt}
	if err := s.events.PublishGiftClaimed(ctx, event); err != nil {
		s.logger.Warn("Failed to publish GiftClaimed event", zap.String("code", code), zap.Error(err))
	}

	s.logger.Info("Gift claimed", zap.String("code", code), zap.String("customer_id", userID))
	return gift, nil
}

// GiftExpiry is now plus the price interval. One-time prices never expire.
func GiftExpiry(now time.Time, price models.PriceOption) *time.Time {
	if price.Interval == nil {
		return nil
	}
	count := price.Interval.Count
	if count < 1 {
		count = 1
	}

	var t time.Time
	switch price.Interval.Period {
	case models.PeriodDay:
		t = now.AddDate(0, 0, count)
	case models.PeriodWeek:
		t = now.AddDate(0, 0, 7*count)
	case models.PeriodMonth:
		t = now.AddDate(0, count, 0)
	case models.PeriodYear:
		t = now.AddDate(count, 0, 0)
	default:
		return nil
	}
	return &t
}

// ListGifts returns gifts addressed to userID
func (s *GiftService) ListGifts(ctx context.Context, userID string) ([]models.GiftCode, error) {
	ctx, span := util.StartSpan(ctx, "GiftService.ListGifts")
	defer span.End()

	gifts, err := s.gifts.ListGiftsFor(ctx, userID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	return gifts, nil
}
