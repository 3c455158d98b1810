// Package session holds per-visitor shopping state between requests.
//
// A Session is loaded once at the start of a request, mutated through typed
// accessors and persisted exactly once when the request ends, whatever the
// outcome of the handler.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// ErrAlreadySaved is returned when a session is saved twice in one request
var ErrAlreadySaved = errors.New("session already saved")

// CheckoutConfig is the gift intent chosen before payment
type CheckoutConfig struct {
	IsGift  bool   `json:"isGift"`
	GiftFor string `json:"giftFor,omitempty"`
}

type document struct {
	Cart     []models.CartItem    `json:"cart"`
	Discount *models.DiscountCode `json:"discount,omitempty"`
	Checkout *CheckoutConfig      `json:"checkout,omitempty"`
}

// Session is the state of one visitor
type Session struct {
	mu    sync.Mutex
	id    string
	isNew bool
	dirty bool
	saved bool
	doc   document
}

// New returns an empty, unsaved session with a fresh id
func New() *Session {
	return &Session{id: uuid.NewString(), isNew: true}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// IsNew reports whether the session was created during this request
func (s *Session) IsNew() bool {
	return s.isNew
}

// Dirty reports whether the session changed since it was loaded or last saved
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Cart returns a copy of the cart
func (s *Session) Cart() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CartItem, len(s.doc.Cart))
	copy(out, s.doc.Cart)
	return out
}

// SetCart replaces the cart
func (s *Session) SetCart(items []models.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Cart = append([]models.CartItem(nil), items...)
	s.dirty = true
}

// Discount returns the active discount code, if any
func (s *Session) Discount() (models.DiscountCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Discount == nil {
		return models.DiscountCode{}, false
	}
	return *s.doc.Discount, true
}

// SetDiscount replaces the active discount code
func (s *Session) SetDiscount(d models.DiscountCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Discount = &d
	s.dirty = true
}

// UnsetDiscount removes the active discount code
func (s *Session) UnsetDiscount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Discount != nil {
		s.doc.Discount = nil
		s.dirty = true
	}
}

// CheckoutConfig returns the stored gift intent
func (s *Session) CheckoutConfig() (CheckoutConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Checkout == nil {
		return CheckoutConfig{}, false
	}
	return *s.doc.Checkout, true
}

// SetCheckoutConfig stores the gift intent
func (s *Session) SetCheckoutConfig(c CheckoutConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Checkout = &c
	s.dirty = true
}

// ClearCheckout drops cart, discount and checkout config
func (s *Session) ClearCheckout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = document{}
	s.dirty = true
}

// Backend persists raw session documents
type Backend interface {
	LoadSession(ctx context.Context, id string) ([]byte, error)
	SaveSession(ctx context.Context, id string, data []byte, ttl time.Duration) error
	TouchSession(ctx context.Context, id string, ttl time.Duration) error
}

// Store loads and saves sessions
type Store struct {
	backend Backend
	ttl     time.Duration
}

// NewStore creates a session store with a sliding ttl
func NewStore(backend Backend, ttl time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl}
}

// Load returns the session for id, or a new one when id is empty or unknown
func (st *Store) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return New(), nil
	}

	data, err := st.backend.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return New(), nil
	}

	s := &Session{id: id}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// Save persists the session. Unchanged sessions only have their expiry extended.
func (st *Store) Save(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saved {
		return ErrAlreadySaved
	}
	s.saved = true

	if !s.dirty && !s.isNew {
		return st.backend.TouchSession(ctx, s.id, st.ttl)
	}
	if !s.dirty && s.isNew {
		return nil
	}

	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.id, err)
	}
	if err := st.backend.SaveSession(ctx, s.id, data, st.ttl); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
