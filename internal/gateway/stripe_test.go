package gateway

import (
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

func TestToPriceOptionRecurring(t *testing.T) {
	opt := toPriceOption(&stripe.Price{
		ID:         "price_m",
		UnitAmount: 200,
		Recurring: &stripe.PriceRecurring{
			Interval:      stripe.PriceRecurringIntervalMonth,
			IntervalCount: 1,
		},
		Metadata: map[string]string{"plan": "P-123"},
	})

	assert.Equal(t, int64(200), opt.Value)
	require.NotNil(t, opt.Interval)
	assert.Equal(t, models.PeriodMonth, opt.Interval.Period)
	assert.True(t, opt.IsMonthly())
	assert.Equal(t, "P-123", opt.Plan)
}

func TestToProductFallsBackOnBadMetadata(t *testing.T) {
	p := toProduct(&stripe.Product{
		ID:       "prod_A",
		Name:     "Pro",
		Images:   []string{"https://img/a.png"},
		Metadata: map[string]string{"type": "bundle"},
	}, zap.NewNop())

	assert.Equal(t, models.ProductTypeSingle, p.Type)
	assert.Equal(t, "https://img/a.png", p.Image)

	p = toProduct(&stripe.Product{ID: "prod_S", Metadata: map[string]string{"type": "subscription"}}, zap.NewNop())
	assert.Equal(t, models.ProductTypeSubscription, p.Type)
}

func TestToPromotion(t *testing.T) {
	expires := time.Now().Add(time.Hour).Unix()
	promo := toPromotion(&stripe.PromotionCode{
		ID:            "promo_1",
		Code:          "TEN",
		Active:        true,
		ExpiresAt:     expires,
		TimesRedeemed: 3,
		Coupon: &stripe.Coupon{
			Name:             "Ten off",
			PercentOff:       10,
			Duration:         stripe.CouponDurationRepeating,
			DurationInMonths: 3,
			Valid:            true,
			AppliesTo:        &stripe.CouponAppliesTo{Products: []string{"prod_A"}},
		},
	})

	assert.True(t, promo.Active)
	require.NotNil(t, promo.Discount.Amount.Percent)
	assert.Equal(t, 10.0, *promo.Discount.Amount.Percent)
	assert.Nil(t, promo.Discount.Amount.Dollars)
	require.NotNil(t, promo.Discount.Duration.Months)
	assert.Equal(t, 3, *promo.Discount.Duration.Months)
	assert.Equal(t, []string{"prod_A"}, promo.Discount.AppliesTo)
	assert.Equal(t, int64(3), promo.Discount.Redemptions)

	promo = toPromotion(&stripe.PromotionCode{Active: true, Coupon: &stripe.Coupon{Valid: false, AmountOff: 500}})
	assert.False(t, promo.Active)
}

func TestToInvoiceMapsLinesAndDiscounts(t *testing.T) {
	discount := &stripe.Discount{
		ID:     "di_1",
		Coupon: &stripe.Coupon{Name: "Ten off", PercentOff: 10},
	}
	inv := toInvoice(&stripe.Invoice{
		ID:            "in_1",
		CustomerEmail: "a@example.com",
		Customer:      &stripe.Customer{ID: "cus_1"},
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
		Paid:          true,
		Created:       1700000000,
		Discounts:     []*stripe.Discount{discount},
		Lines: &stripe.InvoiceLineItemList{
			Data: []*stripe.InvoiceLineItem{{
				Amount:   1000,
				Quantity: 2,
				Price: &stripe.Price{
					ID:         "price_1",
					UnitAmount: 500,
					Product:    &stripe.Product{ID: "prod_A", Name: "Stickers", Metadata: map[string]string{"type": "single"}},
				},
				DiscountAmounts: []*stripe.InvoiceLineItemDiscountAmount{{Amount: 100, Discount: discount}},
			}},
		},
	}, zap.NewNop())

	assert.Equal(t, "cus_1", inv.CustomerID)
	assert.Equal(t, "pi_1", inv.PaymentIntentID)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "prod_A", inv.Lines[0].ProductID)
	assert.Equal(t, "Stickers", inv.Lines[0].Name)
	assert.Equal(t, 2, inv.Lines[0].Quantity)
	require.Len(t, inv.Discounts, 1)
	assert.Equal(t, []string{"prod_A"}, inv.Discounts[0].AppliesTo)
	assert.InDelta(t, 0.10, inv.Discounts[0].Decimal, 1e-9)
	assert.False(t, inv.Discounts[0].Ignore)
}

func TestSortPrices(t *testing.T) {
	prices := []models.PriceOption{{ID: "b", Value: 900}, {ID: "a", Value: 100}, {ID: "c", Value: 500}}
	SortPrices(prices)
	assert.Equal(t, "a", prices[0].ID)
	assert.Equal(t, "c", prices[1].ID)
	assert.Equal(t, "b", prices[2].ID)
}
