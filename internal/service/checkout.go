package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/metadata"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Finalization warning steps
const (
	stepPurchaseRecord  = "purchase_record"
	stepCustomerName    = "customer_name"
	stepPaymentMetadata = "payment_metadata"
	stepGiftCode        = "gift_code"
)

var warningMessages = map[string]string{
	stepPurchaseRecord:  "Your payment went through but your order history may take a while to update",
	stepCustomerName:    "Your payment went through but we could not save your name",
	stepPaymentMetadata: "Your payment went through but we could not save the gift details",
	stepGiftCode:        "Your payment went through but the gift code could not be created yet",
}

// FinalizeRequest carries the checkout details sent with an invoice id.
// Gift fields fall back to the session checkout config when omitted.
type FinalizeRequest struct {
	Gateway      string `json:"gateway"`
	CustomerName string `json:"customerName"`
	IsGift       *bool  `json:"isGift,omitempty"`
	GiftFor      string `json:"giftFor,omitempty"`
}

// FinalizeResult reports a completed finalization. Warnings list bookkeeping
// steps that failed after the payment itself succeeded.
type FinalizeResult struct {
	InvoiceID        string   `json:"invoiceId"`
	Warnings         []string `json:"warnings,omitempty"`
	AlreadyFinalized bool     `json:"alreadyFinalized,omitempty"`
}

func (r *FinalizeResult) warn(step string) {
	util.CheckoutWarningsTotal.WithLabelValues(step).Inc()
	r.Warnings = append(r.Warnings, warningMessages[step])
}

// CheckoutService records completed gateway invoices and reconciles their metadata
type CheckoutService struct {
	customers CustomerRepository
	purchases PurchaseRepository
	gifts     GiftRepository
	invoices  map[string]InvoiceGateway
	billing   BillingGateway
	locker    Locker
	events    EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. invoices is keyed by gateway name.
func NewCheckoutService(
	customers CustomerRepository,
	purchases PurchaseRepository,
	gifts GiftRepository,
	invoices map[string]InvoiceGateway,
	billing BillingGateway,
	locker Locker,
	events EventPublisher,
	lockTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		customers: customers,
		purchases: purchases,
		gifts:     gifts,
		invoices:  invoices,
		billing:   billing,
		locker:    locker,
		events:    events,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// SetCheckoutConfig stores the gift intent for the upcoming payment
func (s *CheckoutService) SetCheckoutConfig(sess *session.Session, cfg session.CheckoutConfig) error {
	cfg.GiftFor = strings.TrimSpace(cfg.GiftFor)
	md := metadata.Checkout{IsGift: cfg.IsGift, GiftFor: cfg.GiftFor}
	if err := md.Validate(); err != nil {
		return apperr.Validation("Invalid gift details: %v", err)
	}
	sess.SetCheckoutConfig(cfg)
	return nil
}

// Finalize records a paid invoice for customerID. The session checkout state is
// cleared as soon as the invoice id is known to be present. Failures after the
// purchase is known to the gateway carry the invoice id; bookkeeping failures
// after it is recorded only add warnings. Finalizing the same invoice again is a no-op.
func (s *CheckoutService) Finalize(ctx context.Context, sess *session.Session, customerID, invoiceID string, req *FinalizeRequest) (*FinalizeResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Finalize", "invoice_id", invoiceID)
	defer span.End()

	result, err := s.finalize(ctx, sess, customerID, invoiceID, req)
	if err != nil {
		util.CheckoutFinalizedTotal.WithLabelValues(outcome(err)).Inc()
		util.FailSpan(span, err)
		s.logger.Error("Checkout finalization failed",
			zap.String("invoice_id", invoiceID),
			zap.String("customer_id", customerID),
			zap.Error(err))
		return nil, err
	}

	switch {
	case result.AlreadyFinalized:
		util.CheckoutFinalizedTotal.WithLabelValues("duplicate").Inc()
	case len(result.Warnings) > 0:
		util.CheckoutFinalizedTotal.WithLabelValues("warnings").Inc()
	default:
		util.CheckoutFinalizedTotal.WithLabelValues("ok").Inc()
	}
	return result, nil
}

func (s *CheckoutService) finalize(ctx context.Context, sess *session.Session, customerID, invoiceID string, req *FinalizeRequest) (*FinalizeResult, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, apperr.Validation("An invoice id is required")
	}

	gatewayName := req.Gateway
	if gatewayName == "" {
		gatewayName = models.GatewayStripe
	}
	invoices, ok := s.invoices[gatewayName]
	if !ok {
		return nil, apperr.Validation("Unknown payment gateway %s", gatewayName)
	}

	checkout := s.giftIntent(sess, req)
	checkout.CustomerID = customerID
	if err := checkout.Validate(); err != nil {
		return nil, apperr.Validation("Invalid gift details: %v", err)
	}

	// Payment was already submitted client-side, so the cart goes whatever happens next.
	sess.ClearCheckout()

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return nil, apperr.New(apperr.ErrCustomerNotFound,
			"We could not find your account, please contact support with invoice %s", invoiceID).WithInvoice(invoiceID)
	}

	token := uuid.New().String()
	lockKey := "finalize:" + invoiceID
	acquired, err := s.locker.AcquireLock(ctx, lockKey, token, s.lockTTL)
	if err != nil {
		s.logger.Warn("Failed to acquire finalize lock, relying on conditional insert",
			zap.String("invoice_id", invoiceID), zap.Error(err))
		acquired = true
	}
	if !acquired {
		s.logger.Info("Finalization already in progress", zap.String("invoice_id", invoiceID))
		return &FinalizeResult{InvoiceID: invoiceID, AlreadyFinalized: true}, nil
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release finalize lock", zap.String("invoice_id", invoiceID), zap.Error(err))
		}
	}()

	invoice, err := invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		notFound := apperr.New(apperr.ErrOrderNotFound, "Invoice %s was not found", invoiceID)
		return nil, gatewayFailure(err, notFound).WithInvoice(invoiceID)
	}
	if !ownsInvoice(customer, invoice) {
		return nil, apperr.New(apperr.ErrForbidden, "Invoice %s belongs to another account", invoiceID).WithInvoice(invoiceID)
	}
	if !invoice.Paid {
		s.logger.Warn("Finalize attempted on unpaid invoice",
			zap.String("invoice_id", invoiceID),
			zap.String("status", invoice.Status))
		return nil, apperr.New(apperr.ErrInvoiceNotPaid, "Invoice %s has not been paid", invoiceID).WithInvoice(invoiceID)
	}

	record := toPurchaseRecord(invoice, customerID, checkout)
	result := &FinalizeResult{InvoiceID: invoiceID}

	inserted, err := s.purchases.InsertPurchase(ctx, record)
	if err != nil {
		s.logger.Error("Failed to record purchase",
			zap.String("invoice_id", invoiceID),
			zap.String("customer_id", customerID),
			zap.Error(err))
		result.warn(stepPurchaseRecord)
	} else if !inserted {
		s.logger.Info("Invoice already finalized", zap.String("invoice_id", invoiceID))
		result.AlreadyFinalized = true
		return result, nil
	}

	s.applyCustomerName(ctx, customer, invoice, req.CustomerName, result)

	if invoice.Gateway == models.GatewayStripe && invoice.PaymentIntentID != "" {
		if err := s.billing.SetPaymentMetadata(ctx, invoice.PaymentIntentID, checkout); err != nil {
			s.logger.Error("Failed to attach checkout metadata",
				zap.String("invoice_id", invoiceID),
				zap.String("payment_intent_id", invoice.PaymentIntentID),
				zap.Error(err))
			result.warn(stepPaymentMetadata)
		}
	}

	if checkout.IsGift {
		s.issueGifts(ctx, record, checkout.GiftFor, result)
	}

	event := &models.PurchaseFinalizedEvent{
		InvoiceID:  invoiceID,
		CustomerID: customerID,
		Gateway:    record.Gateway,
		Type:       record.Type,
		IsGift:     record.IsGift,
		ItemCount:  len(record.Items),
		Total:      pricing.PurchaseTotals(*record).Total,
	}
	if err := s.events.PublishPurchaseFinalized(ctx, event); err != nil {
		s.logger.Warn("Failed to publish PurchaseFinalized event", zap.String("invoice_id", invoiceID), zap.Error(err))
	}

	s.logger.Info("Checkout finalized",
		zap.String("invoice_id", invoiceID),
		zap.String("customer_id", customerID),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// giftIntent merges request gift fields over the session checkout config
func (s *CheckoutService) giftIntent(sess *session.Session, req *FinalizeRequest) metadata.Checkout {
	var md metadata.Checkout
	if cfg, ok := sess.CheckoutConfig(); ok {
		md.IsGift = cfg.IsGift
		md.GiftFor = cfg.GiftFor
	}
	if req.IsGift != nil {
		md.IsGift = *req.IsGift
		md.GiftFor = strings.TrimSpace(req.GiftFor)
	}
	return md
}

// ownsInvoice matches the invoice purchaser to the customer. Gateway customer ids
// decide when both sides have one; otherwise the purchaser email must match.
func ownsInvoice(c *models.Customer, inv *gateway.Invoice) bool {
	var local string
	switch inv.Gateway {
	case models.GatewayStripe:
		local = c.StripeCustomerID
	case models.GatewayPayPal:
		local = c.PayPalPayerID
	}
	if local != "" && inv.CustomerID != "" {
		return local == inv.CustomerID
	}

	email := strings.TrimSpace(inv.CustomerEmail)
	return email != "" && strings.EqualFold(email, strings.TrimSpace(c.Email))
}

// applyCustomerName sets the display name on the gateway and locally when previously unset
func (s *CheckoutService) applyCustomerName(ctx context.Context, customer *models.Customer, invoice *gateway.Invoice, name string, result *FinalizeResult) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	var failed bool
	if invoice.Gateway == models.GatewayStripe && invoice.CustomerID != "" && invoice.CustomerName == "" {
		if err := s.billing.SetCustomerName(ctx, invoice.CustomerID, name); err != nil {
			s.logger.Error("Failed to set gateway customer name",
				zap.String("invoice_id", invoice.ID),
				zap.String("gateway_customer_id", invoice.CustomerID),
				zap.Error(err))
			failed = true
		}
	}
	if customer.Name == "" {
		if err := s.customers.SetCustomerName(ctx, customer.ID, name); err != nil {
			s.logger.Error("Failed to set customer name",
				zap.String("customer_id", customer.ID),
				zap.Error(err))
			failed = true
		}
	}
	if failed {
		result.warn(stepCustomerName)
	}
}

// issueGifts creates one gift code per purchased unit for the recipient
func (s *CheckoutService) issueGifts(ctx context.Context, record *models.PurchaseRecord, to string, result *FinalizeResult) {
	var failed bool
	for _, item := range record.Items {
		units := item.Quantity
		if units < 1 {
			units = 1
		}
		for unit := 0; unit < units; unit++ {
			if !s.issueGift(ctx, record, item, unit, to) {
				failed = true
			}
		}
	}
	if failed {
		result.warn(stepGiftCode)
	}
}

// issueGift stores the gift for one unit of item. It reports false only on failure.
func (s *CheckoutService) issueGift(ctx context.Context, record *models.PurchaseRecord, item models.PurchaseItem, unit int, to string) bool {
	gift := &models.GiftCode{
		Code:        uuid.New().String(),
		From:        record.CustomerID,
		To:          to,
		ProductID:   item.ID,
		Unit:        unit,
		Price:       models.PriceJSON{PriceOption: item.PriceObject},
		OrderID:     record.ID,
		PurchasedAt: record.PurchaseTime,
	}

	created, err := s.gifts.CreateGift(ctx, gift)
	if err != nil {
		s.logger.Error("Failed to create gift code",
			zap.String("invoice_id", record.ID),
			zap.String("product_id", item.ID),
			zap.Int("unit", unit),
			zap.Error(err))
		return false
	}
	if !created {
		return true
	}

	event := &models.GiftPurchasedEvent{
		Code:      gift.Code,
		From:      gift.From,
		To:        gift.To,
		ProductID: gift.ProductID,
		OrderID:   gift.OrderID,
	}
	if err := s.events.PublishGiftPurchased(ctx, event); err != nil {
		s.logger.Warn("Failed to publish GiftPurchased event", zap.String("code", gift.Code), zap.Error(err))
	}
	return true
}

// toPurchaseRecord mirrors a gateway invoice as a local purchase document
func toPurchaseRecord(inv *gateway.Invoice, customerID string, checkout metadata.Checkout) *models.PurchaseRecord {
	record := &models.PurchaseRecord{
		ID:             inv.ID,
		CustomerID:     customerID,
		Type:           models.ProductTypeSingle,
		Discounts:      models.PurchaseDiscounts(inv.Discounts),
		IsGift:         checkout.IsGift,
		GiftFor:        checkout.GiftFor,
		PurchaseTime:   inv.Created,
		Gateway:        inv.Gateway,
		SubscriptionID: inv.SubscriptionID,
	}
	if record.PurchaseTime.IsZero() {
		record.PurchaseTime = time.Now().UTC()
	}
	if record.Discounts == nil {
		record.Discounts = models.PurchaseDiscounts{}
	}

	record.Items = make(models.PurchaseItems, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		record.Items = append(record.Items, models.PurchaseItem{
			ID:          line.ProductID,
			Name:        line.Name,
			Image:       line.Image,
			Price:       line.Price.Value,
			Quantity:    line.Quantity,
			Type:        line.Type,
			PriceObject: line.Price,
		})
		if line.Type == models.ProductTypeSubscription {
			record.Type = models.ProductTypeSubscription
		}
	}
	if record.Type != models.ProductTypeSubscription && checkout.IsGift {
		record.Type = models.ProductTypeGiftable
	}
	return record
}
