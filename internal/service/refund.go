package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundRequestInput is a customer refund submission
type RefundRequestInput struct {
	Gateway        string             `json:"gateway"`
	OrderID        string             `json:"orderId"`
	Type           models.ProductType `json:"type"`
	Reason         string             `json:"reason"`
	Content        string             `json:"content"`
	SubscriptionID string             `json:"subscriptionId,omitempty"`
}

// RefundCaseStatus is the answer to a status poll. Active is false when no
// refund exists or the case is closed.
type RefundCaseStatus struct {
	Active bool                `json:"-"`
	Status models.RefundStatus `json:"status,omitempty"`
}

// RefundService tracks refund cases through their lifecycle
type RefundService struct {
	refunds    RefundRepository
	purchases  PurchaseRepository
	customers  CustomerRepository
	invoices   map[string]InvoiceGateway
	events     EventPublisher
	minContent int
	maxContent int
	logger     *zap.Logger
}

// NewRefundService creates a new refund service
func NewRefundService(
	refunds RefundRepository,
	purchases PurchaseRepository,
	customers CustomerRepository,
	invoices map[string]InvoiceGateway,
	events EventPublisher,
	minContent, maxContent int,
) *RefundService {
	return &RefundService{
		refunds:    refunds,
		purchases:  purchases,
		customers:  customers,
		invoices:   invoices,
		events:     events,
		minContent: minContent,
		maxContent: maxContent,
		logger:     util.GetLogger(),
	}
}

// validate checks the request shape before any lookup is made
func (s *RefundService) validate(in *RefundRequestInput) (InvoiceGateway, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.Reason = strings.TrimSpace(in.Reason)

	if in.OrderID == "" {
		return nil, apperr.Validation("An order id is required")
	}
	gw, ok := s.invoices[in.Gateway]
	if !ok {
		return nil, apperr.Validation("Gateway must be stripe or paypal")
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation("Order type must be single, subscription or giftable")
	}
	if in.Reason == "" {
		return nil, apperr.Validation("A reason is required")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(in.Content))
	if n < s.minContent || n > s.maxContent {
		return nil, apperr.Validation("Please describe the problem in %d to %d characters", s.minContent, s.maxContent)
	}
	return gw, nil
}

// Create opens a refund case for an order in the customer's purchase history
func (s *RefundService) Create(ctx context.Context, customerID string, in *RefundRequestInput) (*models.RefundRequest, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Create", "order_id", in.OrderID)
	defer span.End()

	gw, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	purchase, err := s.purchases.GetPurchase(ctx, in.OrderID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if purchase == nil || purchase.CustomerID != customerID || purchase.Gateway != in.Gateway {
		return nil, apperr.New(apperr.ErrOrderNotFound, "Order %s is not in your purchase history", in.OrderID)
	}

	existing, err := s.refunds.GetRefundByOrder(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if existing != nil {
		return nil, apperr.New(apperr.ErrRefundExists, "A refund request already exists for order %s", in.OrderID)
	}

	invoice, err := gw.GetInvoice(ctx, in.OrderID)
	if err != nil {
		s.logger.Error("Failed to verify refund order",
			zap.String("order_id", in.OrderID),
			zap.String("gateway", in.Gateway),
			zap.Error(err))
		util.FailSpan(span, err)
		return nil, gatewayFailure(err, apperr.New(apperr.ErrOrderNotFound, "Order %s was not found", in.OrderID))
	}
	if !invoice.Paid {
		return nil, apperr.New(apperr.ErrInvoiceNotPaid, "Order %s has not been paid", in.OrderID).WithInvoice(in.OrderID)
	}

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return nil, apperr.New(apperr.ErrCustomerNotFound, "We could not find your account")
	}

	subscriptionID := in.SubscriptionID
	if subscriptionID == "" {
		subscriptionID = purchase.SubscriptionID
	}

	refund := &models.RefundRequest{
		ID:             uuid.New().String(),
		Order:          in.OrderID,
		Gateway:        in.Gateway,
		PurchasedBy:    customerID,
		Emails:         models.NewEmailSet(append([]string{customer.Email}, invoice.Emails()...)...),
		PurchaseType:   in.Type,
		SubscriptionID: subscriptionID,
		Reason:         in.Reason,
		Content:        strings.TrimSpace(in.Content),
		Status:         models.RefundStatusOpen,
	}

	created, err := s.refunds.CreateRefund(ctx, refund)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	if !created {
		return nil, apperr.New(apperr.ErrRefundExists, "A refund request already exists for order %s", in.OrderID)
	}
	util.RefundRequestsTotal.WithLabelValues(in.Gateway).Inc()

	if err := s.purchases.LinkRefund(ctx, purchase.ID, refund.ID); err != nil {
		s.logger.Warn("Failed to link refund to purchase",
			zap.String("order_id", in.OrderID),
			zap.String("refund_id", refund.ID),
			zap.Error(err))
	}

	// The record is the durable fact; the notification is best-effort.
	event := &models.RefundRequestedEvent{
		RefundID:     refund.ID,
		CustomerID:   customerID,
		CustomerName: customer.Name,
		Emails:       refund.Emails,
		Reason:       refund.Reason,
		OrderID:      refund.Order,
		Gateway:      refund.Gateway,
		PurchaseType: refund.PurchaseType,
	}
	if err := s.events.PublishRefundRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish RefundRequested event",
			zap.String("refund_id", refund.ID),
			zap.Error(err))
	}

	s.logger.Info("Refund requested",
		zap.String("refund_id", refund.ID),
		zap.String("order_id", refund.Order),
		zap.String("customer_id", customerID))
	return refund, nil
}

// Status reports whether the customer's order has an open refund case.
// A missing or closed case is not an error.
func (s *RefundService) Status(ctx context.Context, customerID, orderID string) (*RefundCaseStatus, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Status", "order_id", orderID)
	defer span.End()

	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.Validation("An order id is required")
	}

	refund, err := s.refunds.GetRefundByOrder(ctx, orderID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if refund == nil || refund.PurchasedBy != customerID {
		return &RefundCaseStatus{}, nil
	}
	return &RefundCaseStatus{Active: !refund.Status.Closed(), Status: refund.Status}, nil
}

// ListOpen returns cases waiting for support, oldest first
func (s *RefundService) ListOpen(ctx context.Context) ([]models.RefundRequest, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.ListOpen")
	defer span.End()

	refunds, err := s.refunds.ListRefundsByStatus(ctx, models.RefundStatusOpen)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

// Transition closes an open case. Closed cases cannot move again.
func (s *RefundService) Transition(ctx context.Context, refundID string, to models.RefundStatus) (*models.RefundRequest, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Transition", "refund_id", refundID)
	defer span.End()

	if !to.Closed() {
		return nil, apperr.Validation("Status must be CLOSED_WON or CLOSED_LOSS")
	}

	refund, err := s.refunds.GetRefund(ctx, refundID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if refund == nil {
		return nil, apperr.NotFound("Refund %s was not found", refundID)
	}

	ok, err := s.refunds.TransitionRefund(ctx, refundID, models.RefundStatusOpen, to)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to transition refund: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.ErrInvalidTransition, "Refund %s is already closed", refundID)
	}
	util.RefundTransitionsTotal.WithLabelValues(string(to)).Inc()

	refund.Status = to
	event := &models.RefundClosedEvent{RefundID: refund.ID, OrderID: refund.Order, Status: to}
	if err := s.events.PublishRefundClosed(ctx, event); err != nil {
		s.logger.Warn("Failed to publish RefundClosed event", zap.String("refund_id", refundID), zap.Error(err))
	}

	s.logger.Info("Refund closed", zap.String("refund_id", refundID), zap.String("status", string(to)))
	return refund, nil
}
