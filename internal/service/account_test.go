package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccounts() (*AccountService, *memoryStore, *fakeDirectory) {
	store := newMemoryStore()
	dir := &fakeDirectory{customers: map[string]*gateway.Customer{
		"cus_1": {ID: "cus_1", Name: "Ada Lovelace", Email: "Ada@Example.com"},
	}}
	return NewAccountService(store, dir), store, dir
}

func TestSync_CreatesCustomer(t *testing.T) {
	svc, store, _ := newTestAccounts()

	c, err := svc.Sync(context.Background(), "cust_1", " Buyer@Example.com ", &AccountRequest{})
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.com", c.Email)
	assert.Empty(t, c.StripeCustomerID)
	assert.Contains(t, store.customers, "cust_1")
}

func TestSync_LinksStripeCustomerWithMatchingEmail(t *testing.T) {
	svc, _, _ := newTestAccounts()

	c, err := svc.Sync(context.Background(), "cust_1", "ada@example.com", &AccountRequest{StripeCustomerID: "cus_1"})
	require.NoError(t, err)

	assert.Equal(t, "cus_1", c.StripeCustomerID)
	assert.Equal(t, "Ada Lovelace", c.Name)
}

func TestSync_RejectsForeignStripeCustomer(t *testing.T) {
	svc, store, _ := newTestAccounts()

	_, err := svc.Sync(context.Background(), "cust_2", "mallory@example.com", &AccountRequest{StripeCustomerID: "cus_1"})

	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.NotContains(t, store.customers, "cust_2")
}

func TestSync_UnknownStripeCustomer(t *testing.T) {
	svc, _, _ := newTestAccounts()

	_, err := svc.Sync(context.Background(), "cust_1", "ada@example.com", &AccountRequest{StripeCustomerID: "cus_missing"})

	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSync_GatewayDown(t *testing.T) {
	svc, _, dir := newTestAccounts()
	dir.err = errors.New("connection reset")

	_, err := svc.Sync(context.Background(), "cust_1", "ada@example.com", &AccountRequest{StripeCustomerID: "cus_1"})

	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestSync_KeepsExistingFields(t *testing.T) {
	svc, store, _ := newTestAccounts()
	store.addCustomer(&models.Customer{ID: "cust_1", Email: "ada@example.com", Name: "Ada", StripeCustomerID: "cus_1"})

	c, err := svc.Sync(context.Background(), "cust_1", "ada@example.com", &AccountRequest{})
	require.NoError(t, err)

	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, "cus_1", c.StripeCustomerID)
}

func TestGetAccount_Missing(t *testing.T) {
	svc, _, _ := newTestAccounts()

	_, err := svc.Get(context.Background(), "cust_404")

	assert.True(t, errors.Is(err, apperr.ErrCustomerNotFound))
}
