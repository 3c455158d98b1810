package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CustomerDirectory reads customers held by the payment gateway
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*gateway.Customer, error)
}

// AccountRepository creates and reads local customers
type AccountRepository interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	UpsertCustomer(ctx context.Context, c *models.Customer) error
}

// AccountRequest links the signed-in identity to gateway accounts
type AccountRequest struct {
	Name             string `json:"name"`
	StripeCustomerID string `json:"stripeCustomerId"`
	PayPalPayerID    string `json:"paypalPayerId"`
}

// AccountService keeps the local customer record in step with the identity provider
type AccountService struct {
	accounts  AccountRepository
	directory CustomerDirectory
	logger    *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(accounts AccountRepository, directory CustomerDirectory) *AccountService {
	return &AccountService{
		accounts:  accounts,
		directory: directory,
		logger:    util.GetLogger(),
	}
}

// Sync creates or refreshes the customer id with email. A Stripe customer id is
// only linked when the gateway customer has the same email. Fields already set
// locally are never cleared.
func (s *AccountService) Sync(ctx context.Context, id, email string, req *AccountRequest) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Sync", "customer_id", id)
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if id == "" || email == "" {
		return nil, apperr.Validation("The signed-in identity has no email")
	}

	customer := &models.Customer{
		ID:            id,
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		PayPalPayerID: strings.TrimSpace(req.PayPalPayerID),
	}

	if stripeID := strings.TrimSpace(req.StripeCustomerID); stripeID != "" {
		gc, err := s.directory.GetCustomer(ctx, stripeID)
		if err != nil {
			util.FailSpan(span, err)
			return nil, gatewayFailure(err, apperr.NotFound("Stripe customer %s was not found", stripeID))
		}
		if !strings.EqualFold(strings.TrimSpace(gc.Email), email) {
			return nil, apperr.New(apperr.ErrForbidden, "That payment account belongs to another email")
		}
		customer.StripeCustomerID = gc.ID
		if customer.Name == "" {
			customer.Name = gc.Name
		}
	}

	if err := s.accounts.UpsertCustomer(ctx, customer); err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	stored, err := s.accounts.GetCustomer(ctx, id)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if stored == nil {
		return customer, nil
	}

	s.logger.Info("Customer synced",
		zap.String("customer_id", id),
		zap.Bool("stripe_linked", stored.StripeCustomerID != ""))
	return stored, nil
}

// Get returns the local customer record
func (s *AccountService) Get(ctx context.Context, id string) (*models.Customer, error) {
	customer, err := s.accounts.GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return nil, apperr.New(apperr.ErrCustomerNotFound, "No account exists for this identity yet")
	}
	return customer, nil
}
