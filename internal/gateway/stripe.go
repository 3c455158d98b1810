package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"storefront/internal/metadata"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// Stripe serves catalog, promotion and invoice lookups from the Stripe API
type Stripe struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripe creates a Stripe gateway using secretKey
func NewStripe(secretKey string) *Stripe {
	return &Stripe{
		api:    client.New(secretKey, nil),
		logger: util.GetLogger(),
	}
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		util.GatewayCallLatency.WithLabelValues(models.GatewayStripe, op).Observe(time.Since(start).Seconds())
	}
}

func translate(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, se.Msg)
	}
	return err
}

// GetProduct fetches a product and its active prices, sorted ascending by value
func (s *Stripe) GetProduct(ctx context.Context, id string) (*Product, error) {
	defer observe("product.get")()

	params := &stripe.ProductParams{}
	params.Context = ctx
	p, err := s.api.Products.Get(id, params)
	if err != nil {
		return nil, translate(err)
	}

	prices, err := s.ListPrices(ctx, id)
	if err != nil {
		return nil, err
	}

	product := toProduct(p, s.logger)
	product.Prices = prices
	return product, nil
}

// ListPrices returns the active prices of a product, cheapest first
func (s *Stripe) ListPrices(ctx context.Context, productID string) ([]models.PriceOption, error) {
	defer observe("price.list")()

	params := &stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	}
	params.Context = ctx

	var prices []models.PriceOption
	it := s.api.Prices.List(params)
	for it.Next() {
		prices = append(prices, toPriceOption(it.Price()))
	}
	if err := it.Err(); err != nil {
		return nil, translate(err)
	}

	SortPrices(prices)
	return prices, nil
}

// ListProducts returns every active product without prices
func (s *Stripe) ListProducts(ctx context.Context) ([]Product, error) {
	defer observe("product.list")()

	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.Context = ctx

	var products []Product
	it := s.api.Products.List(params)
	for it.Next() {
		products = append(products, *toProduct(it.Product(), s.logger))
	}
	if err := it.Err(); err != nil {
		return nil, translate(err)
	}
	return products, nil
}

// CreateProduct creates a product and its prices
func (s *Stripe) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	defer observe("product.create")()

	params := &stripe.ProductParams{Name: stripe.String(in.Name)}
	params.Context = ctx
	if in.Image != "" {
		params.Images = stripe.StringSlice([]string{in.Image})
	}
	for k, v := range (metadata.Product{Type: in.Type, Hidden: in.Hidden}).Encode() {
		params.AddMetadata(k, v)
	}

	p, err := s.api.Products.New(params)
	if err != nil {
		return nil, translate(err)
	}

	product := toProduct(p, s.logger)
	for _, opt := range in.Prices {
		pp := &stripe.PriceParams{
			Product:    stripe.String(p.ID),
			Currency:   stripe.String(string(stripe.CurrencyUSD)),
			UnitAmount: stripe.Int64(opt.Value),
		}
		pp.Context = ctx
		if opt.Interval != nil {
			pp.Recurring = &stripe.PriceRecurringParams{
				Interval:      stripe.String(opt.Interval.Period),
				IntervalCount: stripe.Int64(int64(opt.Interval.Count)),
			}
		}
		if opt.Plan != "" {
			pp.AddMetadata("plan", opt.Plan)
		}
		price, err := s.api.Prices.New(pp)
		if err != nil {
			return nil, fmt.Errorf("create price for %s: %w", p.ID, translate(err))
		}
		product.Prices = append(product.Prices, toPriceOption(price))
	}
	SortPrices(product.Prices)
	return product, nil
}

// UpdateProduct changes name, image, type or active flag
func (s *Stripe) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	defer observe("product.update")()

	params := &stripe.ProductParams{}
	params.Context = ctx
	if in.Name != "" {
		params.Name = stripe.String(in.Name)
	}
	if in.Image != "" {
		params.Images = stripe.StringSlice([]string{in.Image})
	}
	if in.Active != nil {
		params.Active = stripe.Bool(*in.Active)
	}
	if in.Type != "" {
		for k, v := range (metadata.Product{Type: in.Type, Hidden: in.Hidden}).Encode() {
			params.AddMetadata(k, v)
		}
	}

	p, err := s.api.Products.Update(id, params)
	if err != nil {
		return nil, translate(err)
	}
	return toProduct(p, s.logger), nil
}

// LookupPromotion reads the live state of a customer-facing promotion code
func (s *Stripe) LookupPromotion(ctx context.Context, code string) (*Promotion, error) {
	defer observe("promotion_code.list")()

	params := &stripe.PromotionCodeListParams{Code: stripe.String(code)}
	params.Context = ctx
	params.AddExpand("data.coupon.applies_to")
	params.Limit = stripe.Int64(1)

	it := s.api.PromotionCodes.List(params)
	if !it.Next() {
		if err := it.Err(); err != nil {
			return nil, translate(err)
		}
		return nil, ErrNotFound
	}
	return toPromotion(it.PromotionCode()), nil
}

// GetInvoice fetches an invoice with its lines, products and discounts
func (s *Stripe) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	defer observe("invoice.get")()

	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("customer")
	params.AddExpand("discounts")
	params.AddExpand("lines.data.price.product")

	inv, err := s.api.Invoices.Get(id, params)
	if err != nil {
		return nil, translate(err)
	}
	return toInvoice(inv, s.logger), nil
}

// GetCustomer fetches a customer
func (s *Stripe) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	defer observe("customer.get")()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := s.api.Customers.Get(id, params)
	if err != nil {
		return nil, translate(err)
	}
	return &Customer{ID: c.ID, Name: c.Name, Email: c.Email}, nil
}

// SetCustomerName sets the customer display name
func (s *Stripe) SetCustomerName(ctx context.Context, id, name string) error {
	defer observe("customer.update")()

	params := &stripe.CustomerParams{Name: stripe.String(name)}
	params.Context = ctx
	_, err := s.api.Customers.Update(id, params)
	return translate(err)
}

// SetPaymentMetadata writes checkout metadata onto a payment intent
func (s *Stripe) SetPaymentMetadata(ctx context.Context, paymentIntentID string, md metadata.Checkout) error {
	defer observe("payment_intent.update")()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	for k, v := range md.Encode() {
		params.AddMetadata(k, v)
	}
	_, err := s.api.PaymentIntents.Update(paymentIntentID, params)
	return translate(err)
}

// SortPrices orders prices ascending by value
func SortPrices(prices []models.PriceOption) {
	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].Value < prices[j].Value
	})
}

func toPriceOption(p *stripe.Price) models.PriceOption {
	opt := models.PriceOption{
		ID:    p.ID,
		Value: p.UnitAmount,
	}
	if p.Recurring != nil {
		opt.Interval = &models.Interval{
			Period: string(p.Recurring.Interval),
			Count:  int(p.Recurring.IntervalCount),
		}
	}
	if p.Metadata != nil {
		opt.Plan = p.Metadata["plan"]
	}
	return opt
}

func toProduct(p *stripe.Product, logger *zap.Logger) *Product {
	product := &Product{
		ID:       p.ID,
		Name:     p.Name,
		Active:   p.Active,
		Metadata: p.Metadata,
		Type:     models.ProductTypeSingle,
	}
	if len(p.Images) > 0 {
		product.Image = p.Images[0]
	}
	md, err := metadata.ParseProduct(p.Metadata)
	if err != nil {
		logger.Warn("Product metadata malformed, treating as single purchase",
			zap.String("product_id", p.ID),
			zap.Error(err))
		return product
	}
	product.Type = md.Type
	product.Hidden = md.Hidden
	return product
}

func toPromotion(pc *stripe.PromotionCode) *Promotion {
	promo := &Promotion{
		Active:         pc.Active,
		MaxRedemptions: pc.MaxRedemptions,
		Discount: models.DiscountCode{
			ID:          pc.ID,
			Code:        pc.Code,
			Redemptions: pc.TimesRedeemed,
			Created:     time.Unix(pc.Created, 0).UTC(),
		},
	}
	if pc.ExpiresAt > 0 {
		exp := time.Unix(pc.ExpiresAt, 0).UTC()
		promo.Discount.Expires = &exp
	}

	c := pc.Coupon
	if c == nil {
		return promo
	}
	promo.Active = promo.Active && c.Valid
	promo.Discount.Name = c.Name
	if c.PercentOff > 0 {
		pct := c.PercentOff
		promo.Discount.Amount.Percent = &pct
	}
	if c.AmountOff > 0 {
		off := c.AmountOff
		promo.Discount.Amount.Dollars = &off
	}
	promo.Discount.Duration = models.DiscountDuration{Label: string(c.Duration)}
	if c.Duration == stripe.CouponDurationRepeating {
		months := int(c.DurationInMonths)
		promo.Discount.Duration.Months = &months
	}
	if c.RedeemBy > 0 {
		redeemBy := time.Unix(c.RedeemBy, 0).UTC()
		if promo.Discount.Expires == nil || redeemBy.Before(*promo.Discount.Expires) {
			promo.Discount.Expires = &redeemBy
		}
	}
	if c.AppliesTo != nil {
		promo.Discount.AppliesTo = append([]string(nil), c.AppliesTo.Products...)
	}
	if c.MaxRedemptions > 0 && (promo.MaxRedemptions == 0 || c.MaxRedemptions < promo.MaxRedemptions) {
		promo.MaxRedemptions = c.MaxRedemptions
		promo.Discount.Redemptions = c.TimesRedeemed
	}
	return promo
}

func toInvoice(inv *stripe.Invoice, logger *zap.Logger) *Invoice {
	out := &Invoice{
		ID:            inv.ID,
		Gateway:       models.GatewayStripe,
		CustomerEmail: inv.CustomerEmail,
		CustomerName:  inv.CustomerName,
		Status:        string(inv.Status),
		Paid:          inv.Paid,
		Metadata:      inv.Metadata,
		Created:       time.Unix(inv.Created, 0).UTC(),
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
		if out.CustomerEmail == "" {
			out.CustomerEmail = inv.Customer.Email
		}
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}

	discountTargets := make(map[string][]string)
	if inv.Lines != nil {
		for _, li := range inv.Lines.Data {
			line := InvoiceLine{
				Name:     li.Description,
				Amount:   li.Amount,
				Quantity: int(li.Quantity),
				Type:     models.ProductTypeSingle,
			}
			if li.Price != nil {
				line.Price = toPriceOption(li.Price)
				if li.Price.Recurring != nil {
					line.Type = models.ProductTypeSubscription
				}
				if p := li.Price.Product; p != nil {
					product := toProduct(p, logger)
					line.ProductID = product.ID
					if product.Name != "" {
						line.Name = product.Name
					}
					line.Image = product.Image
					if product.Type == models.ProductTypeGiftable {
						line.Type = product.Type
					}
				}
			}
			for _, da := range li.DiscountAmounts {
				if da.Discount != nil && da.Amount > 0 {
					discountTargets[da.Discount.ID] = append(discountTargets[da.Discount.ID], line.ProductID)
				}
			}
			out.Lines = append(out.Lines, line)
		}
	}

	for _, d := range inv.Discounts {
		if d == nil || d.Coupon == nil {
			continue
		}
		pd := models.PurchaseDiscount{
			ID:        d.ID,
			Name:      d.Coupon.Name,
			Percent:   d.Coupon.PercentOff,
			Decimal:   d.Coupon.PercentOff / 100,
			AmountOff: d.Coupon.AmountOff,
			AppliesTo: discountTargets[d.ID],
		}
		if pd.AppliesTo == nil && d.Coupon.AppliesTo != nil {
			pd.AppliesTo = append([]string(nil), d.Coupon.AppliesTo.Products...)
		}
		out.Discounts = append(out.Discounts, pd)
	}
	return out
}
