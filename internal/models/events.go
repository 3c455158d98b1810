package models

import "time"

// Event types
const (
	EventTypePurchaseFinalized = "PURCHASE_FINALIZED"
	EventTypeGiftPurchased     = "GIFT_PURCHASED"
	EventTypeGiftClaimed       = "GIFT_CLAIMED"
	EventTypeRefundRequested   = "REFUND_REQUESTED"
	EventTypeRefundClosed      = "REFUND_CLOSED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseFinalizedEvent published when checkout finalization records a purchase
type PurchaseFinalizedEvent struct {
	BaseEvent
	InvoiceID  string      `json:"invoice_id"`
	CustomerID string      `json:"customer_id"`
	Gateway    string      `json:"gateway"`
	Type       ProductType `json:"type"`
	IsGift     bool        `json:"is_gift"`
	ItemCount  int         `json:"item_count"`
	Total      int64       `json:"total"`
}

// GiftPurchasedEvent published when a gift code is issued
type GiftPurchasedEvent struct {
	BaseEvent
	Code      string `json:"code"`
	From      string `json:"from"`
	To        string `json:"to"`
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
}

// GiftClaimedEvent published when a recipient redeems a gift
type GiftClaimedEvent struct {
	BaseEvent
	Code      string     `json:"code"`
	To        string     `json:"to"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RefundRequestedEvent carries everything support needs to pick up a new case
type RefundRequestedEvent struct {
	BaseEvent
	RefundID     string      `json:"refund_id"`
	CustomerID   string      `json:"customer_id"`
	CustomerName string      `json:"customer_name"`
	Emails       EmailSet    `json:"emails"`
	Reason       string      `json:"reason"`
	OrderID      string      `json:"order_id"`
	Gateway      string      `json:"gateway"`
	PurchaseType ProductType `json:"purchase_type"`
}

// RefundClosedEvent published when staff close a refund case
type RefundClosedEvent struct {
	BaseEvent
	RefundID string       `json:"refund_id"`
	OrderID  string       `json:"order_id"`
	Status   RefundStatus `json:"status"`
}
