// Package pricing holds the storefront money arithmetic: flat tax, discount
// savings and subscription interval pricing. All amounts are minor units.
package pricing

import (
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// TaxRate is the flat rate applied to every subtotal
	TaxRate = decimal.RequireFromString("0.0675")

	// AnnualMultiplier prices a year of a monthly plan (12 months less 10%)
	AnnualMultiplier = decimal.RequireFromString("10.8")

	hundred = decimal.NewFromInt(100)
)

// WithTax returns amount plus tax, rounded half-up to the cent
func WithTax(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromInt(1).Add(TaxRate)).Round(0).IntPart()
}

// Savings computes what discount takes off an applicable post-tax subtotal.
// Percent savings floor to the cent; flat savings cap at the subtotal.
func Savings(discount models.DiscountAmount, applicable int64) int64 {
	if applicable <= 0 {
		return 0
	}
	var saved int64
	switch {
	case discount.Percent != nil:
		pct := decimal.NewFromFloat(*discount.Percent)
		saved = decimal.NewFromInt(applicable).Mul(pct).Div(hundred).Floor().IntPart()
	case discount.Dollars != nil:
		saved = *discount.Dollars
	}
	return clamp(saved, applicable)
}

func clamp(saved, applicable int64) int64 {
	if saved < 0 {
		return 0
	}
	if saved > applicable {
		return applicable
	}
	return saved
}

// LineQuote is the priced form of one cart item
type LineQuote struct {
	ItemID     string `json:"itemId"`
	PriceID    string `json:"priceId"`
	UnitPrice  int64  `json:"unitPrice"`
	Quantity   int    `json:"quantity"`
	Subtotal   int64  `json:"subtotal"`
	WithTax    int64  `json:"withTax"`
	Discounted bool   `json:"discounted"`
}

// Quote is the priced form of a cart
type Quote struct {
	Lines    []LineQuote `json:"lines"`
	Subtotal int64       `json:"subtotal"`
	Tax      int64       `json:"tax"`
	WithTax  int64       `json:"withTax"`
	Discount int64       `json:"discount"`
	Total    int64       `json:"total"`
}

// QuoteCart prices items with tax and an optional discount
func QuoteCart(items []models.CartItem, discount *models.DiscountCode) (Quote, error) {
	q := Quote{Lines: make([]LineQuote, 0, len(items))}
	var applicable int64

	for _, item := range items {
		price, ok := item.Selected()
		if !ok {
			return Quote{}, fmt.Errorf("item %s has no selected price", item.ID)
		}
		qty := item.EffectiveQuantity()
		line := LineQuote{
			ItemID:    item.ID,
			PriceID:   price.ID,
			UnitPrice: price.Value,
			Quantity:  qty,
			Subtotal:  price.Value * int64(qty),
		}
		line.WithTax = WithTax(line.Subtotal)
		if discount != nil && discount.AppliesToItem(item.ID) {
			line.Discounted = true
			applicable += line.WithTax
		}
		q.Subtotal += line.Subtotal
		q.WithTax += line.WithTax
		q.Lines = append(q.Lines, line)
	}

	q.Tax = q.WithTax - q.Subtotal
	if discount != nil {
		q.Discount = Savings(discount.Amount, applicable)
	}
	q.Total = q.WithTax - q.Discount
	return q, nil
}

// Totals summarizes a recorded purchase for display
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// PurchaseTotals recomputes display totals for a purchase record.
// Discounts flagged Ignore were netted into the charge and are not applied again.
func PurchaseTotals(record models.PurchaseRecord) Totals {
	var t Totals
	taxed := make(map[string]int64, len(record.Items))
	var withTax int64
	for _, item := range record.Items {
		qty := item.Quantity
		if qty < 1 || item.Type == models.ProductTypeSubscription {
			qty = 1
		}
		sub := item.Price * int64(qty)
		t.Subtotal += sub
		taxed[item.ID] += WithTax(sub)
		withTax += WithTax(sub)
	}
	t.Tax = withTax - t.Subtotal

	remaining := withTax
	for _, d := range record.Discounts {
		if d.Ignore {
			continue
		}
		var applicable int64
		if len(d.AppliesTo) == 0 {
			applicable = withTax
		} else {
			for _, id := range d.AppliesTo {
				applicable += taxed[id]
			}
		}
		var saved int64
		if d.AmountOff > 0 {
			saved = d.AmountOff
		} else {
			saved = decimal.NewFromInt(applicable).Mul(decimal.NewFromFloat(d.Decimal)).Floor().IntPart()
		}
		saved = clamp(clamp(saved, applicable), remaining)
		t.Discount += saved
		remaining -= saved
	}
	t.Total = withTax - t.Discount
	return t
}

// AnnualSource says where an annual price came from
type AnnualSource string

// Annual price sources
const (
	AnnualStored   AnnualSource = "stored"
	AnnualComputed AnnualSource = "computed"
)

// AnnualPrice resolves the yearly charge of a subscription. A stored annual
// price from the gateway wins; the monthly multiplier is only a fallback.
func AnnualPrice(prices []models.PriceOption) (int64, AnnualSource, bool) {
	for _, p := range prices {
		if p.IsAnnual() {
			return p.Value, AnnualStored, true
		}
	}
	for _, p := range prices {
		if p.IsMonthly() {
			return AnnualFromMonthly(p.Value), AnnualComputed, true
		}
	}
	return 0, "", false
}

// AnnualFromMonthly applies the annual multiplier to a monthly price
func AnnualFromMonthly(monthly int64) int64 {
	return decimal.NewFromInt(monthly).Mul(AnnualMultiplier).Round(0).IntPart()
}

// FormatUSD renders minor units as dollars, e.g. 534 -> "$5.34"
func FormatUSD(amount int64) string {
	return "$" + decimal.New(amount, -2).StringFixed(2)
}
