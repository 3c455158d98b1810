// Package gateway adapts the payment processors to storefront types.
package gateway

import (
	"errors"
	"time"

	"storefront/internal/models"
)

// ErrNotFound is returned when the gateway has no such object
var ErrNotFound = errors.New("gateway: not found")

// Product is a gateway product with its active prices
type Product struct {
	ID       string
	Name     string
	Image    string
	Type     models.ProductType
	Hidden   bool
	Active   bool
	Prices   []models.PriceOption
	Metadata map[string]string
}

// ProductInput describes a product create or update
type ProductInput struct {
	Name   string
	Image  string
	Type   models.ProductType
	Hidden bool
	Active *bool

	// Prices are created alongside a new product; ignored on update
	Prices []models.PriceOption
}

// Promotion is the live state of a promotion code
type Promotion struct {
	Discount       models.DiscountCode
	Active         bool
	MaxRedemptions int64
}

// Customer is the gateway view of a customer
type Customer struct {
	ID    string
	Name  string
	Email string
}

// InvoiceLine is one purchased line of an invoice or order
type InvoiceLine struct {
	ProductID string
	Name      string
	Image     string
	Type      models.ProductType
	Amount    int64
	Quantity  int
	Price     models.PriceOption
}

// Invoice is a completed gateway transaction: a Stripe invoice or a PayPal order
type Invoice struct {
	ID              string
	Gateway         string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	PaymentIntentID string
	SubscriptionID  string
	Status          string
	Paid            bool
	Lines           []InvoiceLine
	Discounts       []models.PurchaseDiscount
	Metadata        map[string]string
	Created         time.Time
}

// Emails returns every address the gateway holds for the purchaser
func (i *Invoice) Emails() []string {
	if i.CustomerEmail == "" {
		return nil
	}
	return []string{i.CustomerEmail}
}
