package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	svc      *CheckoutService
	store    *memoryStore
	invoices *fakeInvoices
	billing  *fakeBilling
	locker   *memoryLocker
	events   *recordingEvents
}

func newCheckoutFixture(invoices ...*gateway.Invoice) *checkoutFixture {
	f := &checkoutFixture{
		store:    newMemoryStore(),
		invoices: newFakeInvoices(invoices...),
		billing:  newFakeBilling(),
		locker:   newMemoryLocker(),
		events:   &recordingEvents{},
	}
	f.store.addCustomer(&models.Customer{ID: "cust_1", Email: "buyer@example.com", StripeCustomerID: "cus_1"})
	f.svc = NewCheckoutService(
		f.store, f.store, f.store,
		map[string]InvoiceGateway{models.GatewayStripe: f.invoices},
		f.billing, f.locker, f.events, time.Minute,
	)
	return f
}

func paidInvoice(id string) *gateway.Invoice {
	return &gateway.Invoice{
		ID:              id,
		Gateway:         models.GatewayStripe,
		CustomerID:      "cus_1",
		CustomerEmail:   "buyer@example.com",
		PaymentIntentID: "pi_" + id,
		Status:          "paid",
		Paid:            true,
		Created:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Lines: []gateway.InvoiceLine{{
			ProductID: "prod_A",
			Name:      "Pack",
			Type:      models.ProductTypeSingle,
			Amount:    500,
			Quantity:  1,
			Price:     oneTime("price_1", 500),
		}},
	}
}

func sessionWithCart() *session.Session {
	sess := session.New()
	sess.SetCart([]models.CartItem{{ID: "prod_A", Quantity: 1, Prices: []models.PriceOption{oneTime("price_1", 500)}, SelectedPrice: "price_1"}})
	pct := 10.0
	sess.SetDiscount(models.DiscountCode{Code: "TEN", Amount: models.DiscountAmount{Percent: &pct}})
	return sess
}

func TestFinalize_RecordsPurchase(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	sess := sessionWithCart()

	res, err := f.svc.Finalize(context.Background(), sess, "cust_1", "in_1", &FinalizeRequest{CustomerName: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, "in_1", res.InvoiceID)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.AlreadyFinalized)

	assert.Empty(t, sess.Cart())
	_, ok := sess.Discount()
	assert.False(t, ok)

	record := f.store.purchases["in_1"]
	require.NotNil(t, record)
	assert.Equal(t, "cust_1", record.CustomerID)
	assert.Equal(t, models.ProductTypeSingle, record.Type)
	require.Len(t, record.Items, 1)
	assert.Equal(t, int64(500), record.Items[0].Price)

	assert.Equal(t, "Ada", f.billing.names["cus_1"])
	assert.Equal(t, "Ada", f.store.customers["cust_1"].Name)
	assert.False(t, f.billing.metadata["pi_in_1"].IsGift)
	assert.Equal(t, "cust_1", f.billing.metadata["pi_in_1"].CustomerID)

	require.Len(t, f.events.purchaseFinalized, 1)
	assert.Equal(t, int64(534), f.events.purchaseFinalized[0].Total)
}

func TestFinalize_Idempotent(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	require.NoError(t, err)

	res, err := f.svc.Finalize(ctx, sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinalized)
	assert.Equal(t, "in_1", res.InvoiceID)

	assert.Len(t, f.store.purchases, 1)
	assert.Len(t, f.events.purchaseFinalized, 1)
}

func TestFinalize_InFlightIsNoop(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	_, err := f.locker.AcquireLock(context.Background(), "finalize:in_1", "other-worker", time.Minute)
	require.NoError(t, err)

	res, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinalized)
	assert.Zero(t, f.invoices.calls)
	assert.Empty(t, f.store.purchases)
}

func TestFinalize_MissingInvoiceKeepsCart(t *testing.T) {
	f := newCheckoutFixture()
	sess := sessionWithCart()

	_, err := f.svc.Finalize(context.Background(), sess, "cust_1", "  ", &FinalizeRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Len(t, sess.Cart(), 1)
}

func TestFinalize_CustomerNotFoundCarriesInvoice(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	sess := sessionWithCart()

	_, err := f.svc.Finalize(context.Background(), sess, "cust_unknown", "in_1", &FinalizeRequest{})
	require.ErrorIs(t, err, apperr.ErrCustomerNotFound)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "in_1", e.InvoiceID)
	assert.Empty(t, sess.Cart(), "cart is cleared before the customer lookup")
	assert.Zero(t, f.invoices.calls)
}

func TestFinalize_UnknownInvoice(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_missing", &FinalizeRequest{})
	require.ErrorIs(t, err, apperr.ErrOrderNotFound)

	e, _ := apperr.As(err)
	assert.Equal(t, "in_missing", e.InvoiceID)
}

func TestFinalize_ForeignInvoice(t *testing.T) {
	inv := paidInvoice("in_1")
	inv.CustomerID = "cus_someone_else"
	f := newCheckoutFixture(inv)

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.Empty(t, f.store.purchases)
}

func TestFinalize_MetadataFailuresAreWarnings(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	f.billing.nameErr = errors.New("rate limited")
	f.billing.metaErr = errors.New("rate limited")

	res, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{CustomerName: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, "in_1", res.InvoiceID)
	assert.Len(t, res.Warnings, 2)
	assert.Contains(t, f.store.purchases, "in_1")
}

func TestFinalize_RecordFailureIsWarning(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	f.store.insertErr = errors.New("connection refused")

	res, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
}

func TestFinalize_GiftFromSessionConfig(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	sess := sessionWithCart()
	require.NoError(t, f.svc.SetCheckoutConfig(sess, session.CheckoutConfig{IsGift: true, GiftFor: "cust_2"}))

	_, err := f.svc.Finalize(context.Background(), sess, "cust_1", "in_1", &FinalizeRequest{})
	require.NoError(t, err)

	record := f.store.purchases["in_1"]
	assert.True(t, record.IsGift)
	assert.Equal(t, "cust_2", record.GiftFor)
	assert.Equal(t, models.ProductTypeGiftable, record.Type)
	assert.True(t, f.billing.metadata["pi_in_1"].IsGift)

	gifts, err := f.store.ListGiftsFor(context.Background(), "cust_2")
	require.NoError(t, err)
	require.Len(t, gifts, 1)
	assert.Equal(t, "cust_1", gifts[0].From)
	assert.Equal(t, "prod_A", gifts[0].ProductID)
	assert.False(t, gifts[0].Redeemed)
	assert.Len(t, f.events.giftPurchased, 1)

	_, ok := sess.CheckoutConfig()
	assert.False(t, ok)
}

func TestFinalize_GiftWithoutRecipientRejected(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	sess := sessionWithCart()
	isGift := true

	_, err := f.svc.Finalize(context.Background(), sess, "cust_1", "in_1", &FinalizeRequest{IsGift: &isGift})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Zero(t, f.invoices.calls)
}

func TestFinalize_UnknownGateway(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{Gateway: "bitcoin"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSetCheckoutConfig_Validates(t *testing.T) {
	f := newCheckoutFixture()
	sess := session.New()

	err := f.svc.SetCheckoutConfig(sess, session.CheckoutConfig{IsGift: true})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = f.svc.SetCheckoutConfig(sess, session.CheckoutConfig{GiftFor: "cust_2"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, ok := sess.CheckoutConfig()
	assert.False(t, ok)
}

func TestFinalize_UnpaidInvoiceRejected(t *testing.T) {
	inv := paidInvoice("in_open")
	inv.Paid = false
	inv.Status = "open"
	f := newCheckoutFixture(inv)
	isGift := true

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_open",
		&FinalizeRequest{IsGift: &isGift, GiftFor: "cust_2"})
	require.ErrorIs(t, err, apperr.ErrInvoiceNotPaid)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	e, _ := apperr.As(err)
	assert.Equal(t, "in_open", e.InvoiceID)
	assert.Empty(t, f.store.purchases)
	assert.Empty(t, f.store.gifts)
	assert.Empty(t, f.events.purchaseFinalized)
}

func TestFinalize_ForeignInvoiceForUnlinkedCustomer(t *testing.T) {
	inv := paidInvoice("in_1")
	inv.CustomerID = "cus_OTHER"
	inv.CustomerEmail = "owner@example.com"
	f := newCheckoutFixture(inv)
	f.store.addCustomer(&models.Customer{ID: "cust_2", Email: "intruder@example.com"})

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_2", "in_1", &FinalizeRequest{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	e, _ := apperr.As(err)
	assert.Equal(t, "in_1", e.InvoiceID)
	assert.Empty(t, f.store.purchases)

	f.store.addCustomer(&models.Customer{ID: "cust_owner", Email: "owner@example.com", StripeCustomerID: "cus_OTHER"})
	res, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_owner", "in_1", &FinalizeRequest{})
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinalized)
	assert.Equal(t, "cust_owner", f.store.purchases["in_1"].CustomerID)
}

func TestFinalize_OwnershipByEmailWhenUnlinked(t *testing.T) {
	inv := paidInvoice("in_1")
	inv.CustomerID = "cus_9"
	inv.CustomerEmail = "Guest@Example.com"
	f := newCheckoutFixture(inv)
	f.store.addCustomer(&models.Customer{ID: "cust_3", Email: "guest@example.com"})

	res, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_3", "in_1", &FinalizeRequest{})
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinalized)
	assert.Equal(t, "cust_3", f.store.purchases["in_1"].CustomerID)
}

func TestFinalize_InvoiceWithoutPurchaserIdentityRejected(t *testing.T) {
	inv := paidInvoice("in_1")
	inv.CustomerID = ""
	inv.CustomerEmail = ""
	f := newCheckoutFixture(inv)

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.Empty(t, f.store.purchases)
}

func TestFinalize_LockKeyHasSinglePrefix(t *testing.T) {
	f := newCheckoutFixture(paidInvoice("in_1"))
	locker := &keyRecordingLocker{memoryLocker: f.locker}
	f.svc.locker = locker

	_, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1", &FinalizeRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"finalize:in_1"}, locker.keys)
}

func TestFinalize_GiftPerUnit(t *testing.T) {
	inv := paidInvoice("in_1")
	inv.Lines[0].Quantity = 3
	f := newCheckoutFixture(inv)
	isGift := true

	res, err := f.svc.Finalize(context.Background(), sessionWithCart(), "cust_1", "in_1",
		&FinalizeRequest{IsGift: &isGift, GiftFor: "cust_2"})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	gifts, err := f.store.ListGiftsFor(context.Background(), "cust_2")
	require.NoError(t, err)
	require.Len(t, gifts, 3)
	units := map[int]bool{}
	for _, g := range gifts {
		units[g.Unit] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, units)
	assert.Len(t, f.events.giftPurchased, 3)
}
