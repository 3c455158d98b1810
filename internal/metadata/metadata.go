// Package metadata converts between gateway string maps and typed structs.
// Parsers reject unknown keys and malformed values instead of coercing them.
package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storefront/internal/models"
)

// Checkout metadata keys written on payment intents
const (
	KeyIsGift     = "isGift"
	KeyGiftFor    = "giftFor"
	KeyCustomerID = "customerId"
)

// Product metadata keys
const (
	KeyType   = "type"
	KeyHidden = "hidden"
)

// Checkout is the metadata attached to a payment intent at finalization
type Checkout struct {
	IsGift     bool
	GiftFor    string
	CustomerID string
}

// Encode renders the metadata map sent to the gateway
func (c Checkout) Encode() map[string]string {
	m := map[string]string{
		KeyIsGift: strconv.FormatBool(c.IsGift),
	}
	if c.GiftFor != "" {
		m[KeyGiftFor] = c.GiftFor
	}
	if c.CustomerID != "" {
		m[KeyCustomerID] = c.CustomerID
	}
	return m
}

// Validate checks the gift flag and recipient agree
func (c Checkout) Validate() error {
	if c.IsGift && strings.TrimSpace(c.GiftFor) == "" {
		return fmt.Errorf("gift checkout requires a recipient")
	}
	if !c.IsGift && c.GiftFor != "" {
		return fmt.Errorf("recipient set on a non-gift checkout")
	}
	return nil
}

// ParseCheckout decodes checkout metadata read back from the gateway
func ParseCheckout(m map[string]string) (Checkout, error) {
	if err := rejectUnknown(m, KeyIsGift, KeyGiftFor, KeyCustomerID); err != nil {
		return Checkout{}, err
	}

	var c Checkout
	if raw, ok := m[KeyIsGift]; ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Checkout{}, fmt.Errorf("metadata %s: %q is not a boolean", KeyIsGift, raw)
		}
		c.IsGift = v
	}
	c.GiftFor = m[KeyGiftFor]
	c.CustomerID = m[KeyCustomerID]

	if err := c.Validate(); err != nil {
		return Checkout{}, err
	}
	return c, nil
}

// Product is the storefront metadata carried on gateway products
type Product struct {
	Type   models.ProductType
	Hidden bool
}

// Encode renders product metadata
func (p Product) Encode() map[string]string {
	return map[string]string{
		KeyType:   string(p.Type),
		KeyHidden: strconv.FormatBool(p.Hidden),
	}
}

// ParseProduct decodes product metadata; a missing type is an error
func ParseProduct(m map[string]string) (Product, error) {
	if err := rejectUnknown(m, KeyType, KeyHidden); err != nil {
		return Product{}, err
	}

	p := Product{Type: models.ProductType(m[KeyType])}
	if !p.Type.Valid() {
		return Product{}, fmt.Errorf("metadata %s: unknown product type %q", KeyType, m[KeyType])
	}
	if raw, ok := m[KeyHidden]; ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Product{}, fmt.Errorf("metadata %s: %q is not a boolean", KeyHidden, raw)
		}
		p.Hidden = v
	}
	return p, nil
}

func rejectUnknown(m map[string]string, allowed ...string) error {
	var unknown []string
	for k := range m {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unexpected metadata keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}
