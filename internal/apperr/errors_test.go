package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesSentinel(t *testing.T) {
	err := New(ErrCartConflict, "cannot mix subscriptions with one-time purchases")
	wrapped := fmt.Errorf("cart: %w", err)

	assert.True(t, errors.Is(wrapped, ErrCartConflict))
	assert.False(t, errors.Is(wrapped, ErrDuplicateSubscription))
	assert.True(t, IsKind(wrapped, KindConflict))
}

func TestWithInvoiceKeepsSentinelIdentity(t *testing.T) {
	err := New(ErrCustomerNotFound, "customer record missing").WithInvoice("in_123")

	assert.Equal(t, "in_123", err.InvoiceID)
	assert.True(t, errors.Is(err, ErrCustomerNotFound))
	assert.Empty(t, ErrCustomerNotFound.InvoiceID)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindValidation:   http.StatusBadRequest,
		KindUpstream:     http.StatusBadGateway,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), string(kind))
	}
}

func TestPublicMessage(t *testing.T) {
	upstream := Upstream(errors.New(`stripe: "No such invoice: 'in_x'"`), "Payment provider unavailable")
	assert.Equal(t, "Payment provider unavailable", PublicMessage(upstream))

	quoted := Validation(`field "reason" is required`)
	assert.Equal(t, "field reason is required", PublicMessage(quoted))

	assert.Equal(t, "Something went wrong, please try again", PublicMessage(errors.New("boom")))
}
