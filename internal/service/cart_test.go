package service

import (
	"context"
	"math/rand"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartFixtures() []*gateway.Product {
	return []*gateway.Product{
		{ID: "single_1", Name: "Pack", Type: models.ProductTypeSingle, Prices: []models.PriceOption{oneTime("ps1", 500)}},
		{ID: "single_2", Name: "Bundle", Type: models.ProductTypeSingle, Prices: []models.PriceOption{oneTime("ps2", 1500)}},
		{ID: "gift_1", Name: "Gift Card", Type: models.ProductTypeGiftable, Prices: []models.PriceOption{oneTime("pg1", 2500)}},
		{ID: "sub_1", Name: "Monthly", Type: models.ProductTypeSubscription, Prices: []models.PriceOption{monthly("pm1", 200)}},
		{ID: "sub_2", Name: "Pro", Type: models.ProductTypeSubscription, Prices: []models.PriceOption{monthly("pm2", 900)}},
	}
}

func newTestCart() *CartService {
	catalog, _, _, _ := newTestCatalog(cartFixtures()...)
	return NewCartService(catalog)
}

func TestAddItem_SameSingleIncrementsQuantity(t *testing.T) {
	svc := newTestCart()
	sess := session.New()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, sess, "single_1")
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, sess, "single_1")
	require.NoError(t, err)

	require.Len(t, cart, 1)
	assert.Equal(t, 2, cart[0].Quantity)
	assert.Equal(t, cart, svc.GetCart(sess))
}

func TestAddItem_SubscriptionReAddIsNoop(t *testing.T) {
	svc := newTestCart()
	sess := session.New()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, sess, "sub_1")
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, sess, "sub_1")
	require.NoError(t, err)

	require.Len(t, cart, 1)
	assert.Equal(t, 1, cart[0].Quantity)
}

func TestAddItem_CompositionRules(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		first string
		then  string
		want  *apperr.Error
	}{
		{"subscription after single", "single_1", "sub_1", apperr.ErrCartConflict},
		{"single after subscription", "sub_1", "single_1", apperr.ErrCartConflict},
		{"giftable after subscription", "sub_1", "gift_1", apperr.ErrCartConflict},
		{"second subscription", "sub_1", "sub_2", apperr.ErrDuplicateSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCart()
			sess := session.New()

			_, err := svc.AddItem(ctx, sess, tt.first)
			require.NoError(t, err)

			_, err = svc.AddItem(ctx, sess, tt.then)
			assert.ErrorIs(t, err, tt.want)
			assert.NotEmpty(t, apperr.PublicMessage(err))
			assert.Len(t, sess.Cart(), 1)
		})
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	svc := newTestCart()

	_, err := svc.AddItem(context.Background(), session.New(), "prod_nope")
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, err = svc.AddItem(context.Background(), session.New(), " ")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAddItem_NeverMixesSubscriptionAndSingle(t *testing.T) {
	ids := []string{"single_1", "single_2", "gift_1", "sub_1", "sub_2", "missing"}
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()
	svc := newTestCart()

	for run := 0; run < 200; run++ {
		sess := session.New()
		for step := 0; step < 12; step++ {
			_, _ = svc.AddItem(ctx, sess, ids[rng.Intn(len(ids))])

			var subs, others int
			seen := make(map[string]bool)
			for _, item := range sess.Cart() {
				require.False(t, seen[item.ID], "duplicate line for %s", item.ID)
				seen[item.ID] = true
				if item.Type == models.ProductTypeSubscription {
					subs++
					assert.Equal(t, 1, item.Quantity)
				} else {
					others++
				}
			}
			require.LessOrEqual(t, subs, 1)
			require.False(t, subs > 0 && others > 0, "cart mixes subscription and one-time items")
		}
	}
}

func TestSetCart_ResolvesAgainstCatalog(t *testing.T) {
	svc := newTestCart()
	sess := session.New()

	cart, err := svc.SetCart(context.Background(), sess, []models.CartItem{
		{ID: "single_1", Name: "Tampered", Quantity: 3, Prices: []models.PriceOption{oneTime("ps1", 1)}},
		{ID: "single_2", Quantity: 1, SelectedPrice: "ps2"},
	})
	require.NoError(t, err)

	require.Len(t, cart, 2)
	assert.Equal(t, "Pack", cart[0].Name)
	assert.Equal(t, 3, cart[0].Quantity)
	assert.Equal(t, int64(500), cart[0].Prices[0].Value)
	assert.Equal(t, cart, sess.Cart())
}

func TestSetCart_Rejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		items []models.CartItem
		kind  apperr.Kind
	}{
		{"duplicate ids", []models.CartItem{{ID: "single_1", Quantity: 1}, {ID: "single_1", Quantity: 1}}, apperr.KindValidation},
		{"zero quantity", []models.CartItem{{ID: "single_1"}}, apperr.KindValidation},
		{"unknown price", []models.CartItem{{ID: "single_1", Quantity: 1, SelectedPrice: "price_x"}}, apperr.KindValidation},
		{"mixed", []models.CartItem{{ID: "single_1", Quantity: 1}, {ID: "sub_1", Quantity: 1}}, apperr.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCart()
			sess := session.New()

			_, err := svc.SetCart(ctx, sess, tt.items)
			assert.True(t, apperr.IsKind(err, tt.kind), "got %v", err)
			assert.Empty(t, sess.Cart())
		})
	}
}

func TestSetCart_EmptyClears(t *testing.T) {
	svc := newTestCart()
	sess := session.New()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, sess, "single_1")
	require.NoError(t, err)

	cart, err := svc.SetCart(ctx, sess, nil)
	require.NoError(t, err)
	assert.Empty(t, cart)
	assert.Empty(t, sess.Cart())
}
