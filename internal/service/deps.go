package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/gateway"
	"storefront/internal/metadata"
	"storefront/internal/models"
	"storefront/internal/redisclient"
)

// CatalogGateway is the product side of the payment gateway
type CatalogGateway interface {
	GetProduct(ctx context.Context, id string) (*gateway.Product, error)
	ListProducts(ctx context.Context) ([]gateway.Product, error)
	CreateProduct(ctx context.Context, in gateway.ProductInput) (*gateway.Product, error)
	UpdateProduct(ctx context.Context, id string, in gateway.ProductInput) (*gateway.Product, error)
}

// PromotionGateway reads live promotion code state
type PromotionGateway interface {
	LookupPromotion(ctx context.Context, code string) (*gateway.Promotion, error)
}

// InvoiceGateway reads completed invoices or orders
type InvoiceGateway interface {
	GetInvoice(ctx context.Context, id string) (*gateway.Invoice, error)
}

// BillingGateway writes checkout bookkeeping back to the gateway
type BillingGateway interface {
	SetCustomerName(ctx context.Context, id, name string) error
	SetPaymentMetadata(ctx context.Context, paymentIntentID string, md metadata.Checkout) error
}

// Cache is the advisory read-through cache
type Cache interface {
	CacheGet(ctx context.Context, class redisclient.CacheClass, key string, dst interface{}) (bool, error)
	CacheSet(ctx context.Context, class redisclient.CacheClass, key string, value interface{}) error
	CacheDelete(ctx context.Context, class redisclient.CacheClass, keys ...string) error
	InvalidateClass(ctx context.Context, class redisclient.CacheClass) (int64, error)
}

// Locker guards a key across workers
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// EventPublisher emits storefront domain events
type EventPublisher interface {
	PublishPurchaseFinalized(ctx context.Context, event *models.PurchaseFinalizedEvent) error
	PublishGiftPurchased(ctx context.Context, event *models.GiftPurchasedEvent) error
	PublishGiftClaimed(ctx context.Context, event *models.GiftClaimedEvent) error
	PublishRefundRequested(ctx context.Context, event *models.RefundRequestedEvent) error
	PublishRefundClosed(ctx context.Context, event *models.RefundClosedEvent) error
}

// ProductRepository mirrors gateway products locally
type ProductRepository interface {
	UpsertProduct(ctx context.Context, p *models.Product) error
	GetProducts(ctx context.Context) ([]models.Product, error)
}

// CustomerRepository reads and updates local customers
type CustomerRepository interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	SetCustomerName(ctx context.Context, id, name string) error
}

// PurchaseRepository persists purchase records
type PurchaseRepository interface {
	InsertPurchase(ctx context.Context, p *models.PurchaseRecord) (bool, error)
	GetPurchase(ctx context.Context, id string) (*models.PurchaseRecord, error)
	ListPurchasesByCustomer(ctx context.Context, customerID string) ([]models.PurchaseRecord, error)
	LinkRefund(ctx context.Context, purchaseID, refundID string) error
}

// RefundRepository persists refund cases
type RefundRepository interface {
	CreateRefund(ctx context.Context, r *models.RefundRequest) (bool, error)
	GetRefund(ctx context.Context, id string) (*models.RefundRequest, error)
	GetRefundByOrder(ctx context.Context, orderID string) (*models.RefundRequest, error)
	ListRefundsByStatus(ctx context.Context, status models.RefundStatus) ([]models.RefundRequest, error)
	TransitionRefund(ctx context.Context, id string, from, to models.RefundStatus) (bool, error)
}

// GiftRepository persists gift codes
type GiftRepository interface {
	CreateGift(ctx context.Context, g *models.GiftCode) (bool, error)
	GetGift(ctx context.Context, code string) (*models.GiftCode, error)
	ClaimGift(ctx context.Context, code, to string, expiresAt *time.Time) (bool, error)
	ListGiftsFor(ctx context.Context, to string) ([]models.GiftCode, error)
}

const upstreamMessage = "The payment provider is unavailable, please try again"

// gatewayFailure classifies a gateway error. A missing object maps to notFound when given.
func gatewayFailure(err error, notFound *apperr.Error) *apperr.Error {
	if notFound != nil && errors.Is(err, gateway.ErrNotFound) {
		return notFound.Wrap(err)
	}
	return apperr.Upstream(err, upstreamMessage)
}
