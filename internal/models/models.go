package models

import (
	"time"
)

// ProductType classifies how a product is sold
type ProductType string

// Product types
const (
	ProductTypeSingle       ProductType = "single"
	ProductTypeSubscription ProductType = "subscription"
	ProductTypeGiftable     ProductType = "giftable"
)

// Valid reports whether t is a known product type
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeSingle, ProductTypeSubscription, ProductTypeGiftable:
		return true
	}
	return false
}

// Gateway names
const (
	GatewayStripe = "stripe"
	GatewayPayPal = "paypal"
)

// Interval periods
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// Interval is the billing cadence of a recurring price
type Interval struct {
	Period string `json:"period"`
	Count  int    `json:"count"`
}

// PriceOption is one purchasable price of a product, in minor currency units
type PriceOption struct {
	ID       string    `json:"id"`
	Value    int64     `json:"value"`
	Interval *Interval `json:"interval,omitempty"`
	Plan     string    `json:"plan,omitempty"`
}

// IsAnnual reports whether the price bills once per year
func (p PriceOption) IsAnnual() bool {
	return p.Interval != nil && p.Interval.Period == PeriodYear && p.Interval.Count == 1
}

// IsMonthly reports whether the price bills once per month
func (p PriceOption) IsMonthly() bool {
	return p.Interval != nil && p.Interval.Period == PeriodMonth && p.Interval.Count == 1
}

// CartItem is a line item held in the session cart
type CartItem struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          ProductType   `json:"type"`
	Image         string        `json:"image"`
	Quantity      int           `json:"quantity"`
	Prices        []PriceOption `json:"prices"`
	SelectedPrice string        `json:"selectedPrice"`
}

// Selected returns the price option referenced by SelectedPrice
func (c CartItem) Selected() (PriceOption, bool) {
	for _, p := range c.Prices {
		if p.ID == c.SelectedPrice {
			return p, true
		}
	}
	return PriceOption{}, false
}

// EffectiveQuantity is the quantity used for pricing; subscriptions always count once
func (c CartItem) EffectiveQuantity() int {
	if c.Type == ProductTypeSubscription || c.Quantity < 1 {
		return 1
	}
	return c.Quantity
}

// Product is the local mirror of a gateway product
type Product struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Image     string      `db:"image" json:"image"`
	Type      ProductType `db:"type" json:"type"`
	Active    bool        `db:"active" json:"active"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Customer links a storefront account to its gateway identities
type Customer struct {
	ID               string    `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	Name             string    `db:"name" json:"name"`
	StripeCustomerID string    `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	PayPalPayerID    string    `db:"paypal_payer_id" json:"paypal_payer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// DiscountAmount holds exactly one of Percent or Dollars
type DiscountAmount struct {
	Percent *float64 `json:"percent,omitempty"`

	// Dollars is a flat amount in minor currency units
	Dollars *int64 `json:"dollars,omitempty"`
}

// DiscountDuration describes how long a discount keeps applying to a subscription
type DiscountDuration struct {
	Label  string `json:"label"`
	Months *int   `json:"months,omitempty"`
}

// DiscountCode is a validated promotion code held in the session
type DiscountCode struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Code        string           `json:"code"`
	Amount      DiscountAmount   `json:"amount"`
	Duration    DiscountDuration `json:"duration"`
	Redemptions int64            `json:"redemptions"`
	Created     time.Time        `json:"created"`
	Expires     *time.Time       `json:"expires,omitempty"`

	// AppliesTo restricts the discount to these product ids; empty means every item
	AppliesTo []string `json:"appliesTo,omitempty"`
}

// AppliesToItem reports whether the discount covers the given product
func (d DiscountCode) AppliesToItem(productID string) bool {
	if len(d.AppliesTo) == 0 {
		return true
	}
	for _, id := range d.AppliesTo {
		if id == productID {
			return true
		}
	}
	return false
}

// PurchaseItem is a snapshot of a purchased line item
type PurchaseItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Image       string      `json:"image"`
	Price       int64       `json:"price"`
	Quantity    int         `json:"quantity"`
	Type        ProductType `json:"type"`
	PriceObject PriceOption `json:"priceObject"`
}

// PurchaseDiscount is a discount recorded against a purchase.
// Ignore marks discounts already netted into the charged total.
type PurchaseDiscount struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Percent   float64  `json:"percent"`
	Decimal   float64  `json:"decimal"`
	AmountOff int64    `json:"amountOff,omitempty"`
	AppliesTo []string `json:"appliesTo"`
	Ignore    bool     `json:"ignore"`
}

// PurchaseRecord mirrors a finalized gateway invoice or order
type PurchaseRecord struct {
	ID             string            `db:"id" json:"id"`
	CustomerID     string            `db:"customer_id" json:"customerId"`
	Type           ProductType       `db:"type" json:"type"`
	Items          PurchaseItems     `db:"items" json:"items"`
	Discounts      PurchaseDiscounts `db:"discounts" json:"discounts"`
	IsGift         bool              `db:"is_gift" json:"isGift"`
	GiftFor        string            `db:"gift_for" json:"giftFor,omitempty"`
	PurchaseTime   time.Time         `db:"purchase_time" json:"purchaseTime"`
	Gateway        string            `db:"gateway" json:"gateway"`
	SubscriptionID string            `db:"subscription_id" json:"subscriptionId,omitempty"`
	RefundID       *string           `db:"refund_id" json:"refundId,omitempty"`
}

// RefundStatus is the state of a refund request
type RefundStatus string

// Refund statuses
const (
	RefundStatusOpen       RefundStatus = "OPEN_WAITING_FOR_SUPPORT"
	RefundStatusClosedWon  RefundStatus = "CLOSED_WON"
	RefundStatusClosedLoss RefundStatus = "CLOSED_LOSS"
)

// Closed reports whether s is terminal
func (s RefundStatus) Closed() bool {
	return s == RefundStatusClosedWon || s == RefundStatusClosedLoss
}

// RefundRequest is a customer refund case
type RefundRequest struct {
	ID             string       `db:"id" json:"id"`
	Order          string       `db:"order_id" json:"order"`
	Gateway        string       `db:"gateway" json:"gateway"`
	PurchasedBy    string       `db:"purchased_by" json:"purchasedBy"`
	Emails         EmailSet     `db:"emails" json:"emails"`
	PurchaseType   ProductType  `db:"purchase_type" json:"purchaseType"`
	SubscriptionID string       `db:"subscription_id" json:"subscriptionId,omitempty"`
	Reason         string       `db:"reason" json:"reason"`
	Content        string       `db:"content" json:"content"`
	Status         RefundStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

// GiftCode is a purchased gift awaiting or past redemption
type GiftCode struct {
	Code        string     `db:"code" json:"code"`
	From        string     `db:"from_customer" json:"from"`
	To          string     `db:"to_customer" json:"to"`
	Redeemed    bool       `db:"redeemed" json:"redeemed"`
	ProductID   string     `db:"product_id" json:"productId"`
	Unit        int        `db:"unit" json:"-"`
	Price       PriceJSON  `db:"price" json:"price"`
	OrderID     string     `db:"order_id" json:"orderId"`
	PurchasedAt time.Time  `db:"purchased_at" json:"purchasedAt"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
}
