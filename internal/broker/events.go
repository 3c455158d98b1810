package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is the write side of the event stream
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func newBase(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishPurchaseFinalized publishes PurchaseFinalized event
func (ep *EventPublisher) PublishPurchaseFinalized(ctx context.Context, event *models.PurchaseFinalizedEvent) error {
	event.BaseEvent = newBase(models.EventTypePurchaseFinalized)
	return ep.producer.PublishEvent(ctx, "purchase-"+event.InvoiceID, event)
}

// PublishGiftPurchased publishes GiftPurchased event
func (ep *EventPublisher) PublishGiftPurchased(ctx context.Context, event *models.GiftPurchasedEvent) error {
	event.BaseEvent = newBase(models.EventTypeGiftPurchased)
	return ep.producer.PublishEvent(ctx, "gift-"+event.Code, event)
}

// PublishGiftClaimed publishes GiftClaimed event
func (ep *EventPublisher) PublishGiftClaimed(ctx context.Context, event *models.GiftClaimedEvent) error {
	event.BaseEvent = newBase(models.EventTypeGiftClaimed)
	return ep.producer.PublishEvent(ctx, "gift-"+event.Code, event)
}

// PublishRefundRequested publishes RefundRequested event
func (ep *EventPublisher) PublishRefundRequested(ctx context.Context, event *models.RefundRequestedEvent) error {
	event.BaseEvent = newBase(models.EventTypeRefundRequested)
	return ep.producer.PublishEvent(ctx, "refund-"+event.OrderID, event)
}

// PublishRefundClosed publishes RefundClosed event
func (ep *EventPublisher) PublishRefundClosed(ctx context.Context, event *models.RefundClosedEvent) error {
	event.BaseEvent = newBase(models.EventTypeRefundClosed)
	return ep.producer.PublishEvent(ctx, "refund-"+event.OrderID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPurchaseFinalized func(context.Context, *models.PurchaseFinalizedEvent) error
	onGiftPurchased     func(context.Context, *models.GiftPurchasedEvent) error
	onRefundRequested   func(context.Context, *models.RefundRequestedEvent) error
	onRefundClosed      func(context.Context, *models.RefundClosedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPurchaseFinalized registers a handler for PurchaseFinalized events
func (eh *EventHandler) OnPurchaseFinalized(handler func(context.Context, *models.PurchaseFinalizedEvent) error) {
	eh.onPurchaseFinalized = handler
}

// OnGiftPurchased registers a handler for GiftPurchased events
func (eh *EventHandler) OnGiftPurchased(handler func(context.Context, *models.GiftPurchasedEvent) error) {
	eh.onGiftPurchased = handler
}

// OnRefundRequested registers a handler for RefundRequested events
func (eh *EventHandler) OnRefundRequested(handler func(context.Context, *models.RefundRequestedEvent) error) {
	eh.onRefundRequested = handler
}

// OnRefundClosed registers a handler for RefundClosed events
func (eh *EventHandler) OnRefundClosed(handler func(context.Context, *models.RefundClosedEvent) error) {
	eh.onRefundClosed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePurchaseFinalized:
		if eh.onPurchaseFinalized != nil {
			var event models.PurchaseFinalizedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PurchaseFinalized event: %w", err)
			}
			return eh.onPurchaseFinalized(ctx, &event)
		}

	case models.EventTypeGiftPurchased:
		if eh.onGiftPurchased != nil {
			var event models.GiftPurchasedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal GiftPurchased event: %w", err)
			}
			return eh.onGiftPurchased(ctx, &event)
		}

	case models.EventTypeRefundRequested:
		if eh.onRefundRequested != nil {
			var event models.RefundRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RefundRequested event: %w", err)
			}
			return eh.onRefundRequested(ctx, &event)
		}

	case models.EventTypeRefundClosed:
		if eh.onRefundClosed != nil {
			var event models.RefundClosedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RefundClosed event: %w", err)
			}
			return eh.onRefundClosed(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
