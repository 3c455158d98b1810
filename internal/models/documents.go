package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PurchaseItems is stored as a JSONB document column
type PurchaseItems []PurchaseItem

// Value implements driver.Valuer
func (p PurchaseItems) Value() (driver.Value, error) {
	if p == nil {
		p = PurchaseItems{}
	}
	return json.Marshal([]PurchaseItem(p))
}

// Scan implements sql.Scanner
func (p *PurchaseItems) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// PurchaseDiscounts is stored as a JSONB document column
type PurchaseDiscounts []PurchaseDiscount

// Value implements driver.Valuer
func (p PurchaseDiscounts) Value() (driver.Value, error) {
	if p == nil {
		p = PurchaseDiscounts{}
	}
	return json.Marshal([]PurchaseDiscount(p))
}

// Scan implements sql.Scanner
func (p *PurchaseDiscounts) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// PriceJSON stores a PriceOption as a JSONB document column.
// Its Value method shadows PriceOption.Value; read the amount through PriceOption.
type PriceJSON struct {
	PriceOption
}

// Value implements driver.Valuer
func (p PriceJSON) Value() (driver.Value, error) {
	return json.Marshal(p.PriceOption)
}

// Scan implements sql.Scanner
func (p *PriceJSON) Scan(src interface{}) error {
	return scanJSON(src, &p.PriceOption)
}

// EmailSet is a set of addresses persisted as a sorted JSON array.
// Addresses are trimmed and lower-cased; duplicates collapse on construction.
type EmailSet []string

// NewEmailSet normalizes and de-duplicates the given addresses
func NewEmailSet(emails ...string) EmailSet {
	seen := make(map[string]struct{}, len(emails))
	set := make(EmailSet, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		set = append(set, e)
	}
	sort.Strings(set)
	return set
}

// Value implements driver.Valuer; the stored array is always normalized
func (s EmailSet) Value() (driver.Value, error) {
	return json.Marshal([]string(NewEmailSet(s...)))
}

// Scan implements sql.Scanner
func (s *EmailSet) Scan(src interface{}) error {
	var raw []string
	if err := scanJSON(src, &raw); err != nil {
		return err
	}
	*s = NewEmailSet(raw...)
	return nil
}

// UnmarshalJSON normalizes sets decoded from request or event payloads
func (s *EmailSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewEmailSet(raw...)
	return nil
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported document column type %T", src)
	}
}
