package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/pricing"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Consumer is the read side of the event stream
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventLog records which events have already been acted on
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Notifier delivers a message to a channel
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// NotificationWorker relays storefront events to the support and sales channels
type NotificationWorker struct {
	consumer     Consumer
	events       EventLog
	support      Notifier
	sales        Notifier
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer Consumer, events EventLog, support, sales Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		events:   events,
		support:  support,
		sales:    sales,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnRefundRequested(w.handleRefundRequested)
	eventHandler.OnRefundClosed(w.handleRefundClosed)
	eventHandler.OnPurchaseFinalized(w.handlePurchaseFinalized)
	eventHandler.OnGiftPurchased(w.handleGiftPurchased)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// deliver sends msg once per event id. Unconfigured channels count as skipped.
func (w *NotificationWorker) deliver(ctx context.Context, base models.BaseEvent, channel Notifier, msg notify.Message) error {
	processed, err := w.events.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", base.EventID))
		util.NotificationsTotal.WithLabelValues(base.EventType, "duplicate").Inc()
		return nil
	}

	err = channel.Send(ctx, msg)
	switch {
	case errors.Is(err, notify.ErrNotConfigured):
		util.NotificationsTotal.WithLabelValues(base.EventType, "skipped").Inc()
	case err != nil:
		util.NotificationsTotal.WithLabelValues(base.EventType, "failed").Inc()
		w.logger.Error("Failed to deliver notification",
			zap.String("event_id", base.EventID),
			zap.String("event_type", base.EventType),
			zap.Error(err))
		return err
	default:
		util.NotificationsTotal.WithLabelValues(base.EventType, "sent").Inc()
	}

	return w.events.MarkEventProcessed(ctx, base.EventID, base.EventType)
}

func (w *NotificationWorker) handleRefundRequested(ctx context.Context, e *models.RefundRequestedEvent) error {
	msg := notify.Message{
		Text: "New refund request",
		Fields: []notify.Field{
			{Title: "Customer", Value: fmt.Sprintf("%s (%s)", e.CustomerName, e.CustomerID)},
			{Title: "Emails", Value: strings.Join(e.Emails, ", ")},
			{Title: "Reason", Value: e.Reason},
			{Title: "Order", Value: e.OrderID, Short: true},
			{Title: "Gateway", Value: e.Gateway, Short: true},
			{Title: "Type", Value: string(e.PurchaseType), Short: true},
		},
	}
	return w.deliver(ctx, e.BaseEvent, w.support, msg)
}

func (w *NotificationWorker) handleRefundClosed(ctx context.Context, e *models.RefundClosedEvent) error {
	msg := notify.Message{
		Text: fmt.Sprintf("Refund for order %s closed as %s", e.OrderID, e.Status),
	}
	return w.deliver(ctx, e.BaseEvent, w.support, msg)
}

func (w *NotificationWorker) handlePurchaseFinalized(ctx context.Context, e *models.PurchaseFinalizedEvent) error {
	msg := notify.Message{
		Text: "New purchase",
		Fields: []notify.Field{
			{Title: "Invoice", Value: e.InvoiceID, Short: true},
			{Title: "Gateway", Value: e.Gateway, Short: true},
			{Title: "Type", Value: string(e.Type), Short: true},
			{Title: "Items", Value: fmt.Sprint(e.ItemCount), Short: true},
			{Title: "Total", Value: pricing.FormatUSD(e.Total), Short: true},
		},
	}
	return w.deliver(ctx, e.BaseEvent, w.sales, msg)
}

func (w *NotificationWorker) handleGiftPurchased(ctx context.Context, e *models.GiftPurchasedEvent) error {
	msg := notify.Message{
		Text: fmt.Sprintf("Gift %s purchased for %s", e.ProductID, e.To),
	}
	return w.deliver(ctx, e.BaseEvent, w.sales, msg)
}
