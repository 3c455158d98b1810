package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/gateway"
	"storefront/internal/metadata"
	"storefront/internal/models"
	"storefront/internal/redisclient"
)

type fakeCatalogGateway struct {
	mu       sync.Mutex
	products map[string]*gateway.Product
	err      error
	gets     int
}

func newFakeCatalogGateway(products ...*gateway.Product) *fakeCatalogGateway {
	f := &fakeCatalogGateway{products: make(map[string]*gateway.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCatalogGateway) GetProduct(ctx context.Context, id string) (*gateway.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCatalogGateway) ListProducts(ctx context.Context) ([]gateway.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]gateway.Product, 0, len(f.products))
	for _, p := range f.products {
		cp := *p
		cp.Prices = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCatalogGateway) CreateProduct(ctx context.Context, in gateway.ProductInput) (*gateway.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &gateway.Product{
		ID:     "prod_" + strings.ToLower(strings.ReplaceAll(in.Name, " ", "_")),
		Name:   in.Name,
		Image:  in.Image,
		Type:   in.Type,
		Hidden: in.Hidden,
		Active: true,
		Prices: in.Prices,
	}
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeCatalogGateway) UpdateProduct(ctx context.Context, id string, in gateway.ProductInput) (*gateway.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	cp := *p
	return &cp, nil
}

type fakePromotions struct {
	promos map[string]*gateway.Promotion
	err    error
	calls  int
}

func (f *fakePromotions) LookupPromotion(ctx context.Context, code string) (*gateway.Promotion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.promos[code]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeInvoices struct {
	mu       sync.Mutex
	invoices map[string]*gateway.Invoice
	err      error
	calls    int
}

func newFakeInvoices(invoices ...*gateway.Invoice) *fakeInvoices {
	f := &fakeInvoices{invoices: make(map[string]*gateway.Invoice)}
	for _, inv := range invoices {
		f.invoices[inv.ID] = inv
	}
	return f
}

func (f *fakeInvoices) GetInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

type fakeBilling struct {
	mu       sync.Mutex
	nameErr  error
	metaErr  error
	names    map[string]string
	metadata map[string]metadata.Checkout
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{names: make(map[string]string), metadata: make(map[string]metadata.Checkout)}
}

func (f *fakeBilling) SetCustomerName(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameErr != nil {
		return f.nameErr
	}
	f.names[id] = name
	return nil
}

func (f *fakeBilling) SetPaymentMetadata(ctx context.Context, paymentIntentID string, md metadata.Checkout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return f.metaErr
	}
	f.metadata[paymentIntentID] = md
	return nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) CacheGet(ctx context.Context, class redisclient.CacheClass, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[class.Name+":"+key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memoryCache) CacheSet(ctx context.Context, class redisclient.CacheClass, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[class.Name+":"+key] = b
	return nil
}

func (c *memoryCache) CacheDelete(ctx context.Context, class redisclient.CacheClass, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, class.Name+":"+k)
	}
	return nil
}

func (c *memoryCache) InvalidateClass(ctx context.Context, class redisclient.CacheClass) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k := range c.data {
		if strings.HasPrefix(k, class.Name+":") {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{locks: make(map[string]string)}
}

func (l *memoryLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false, nil
	}
	l.locks[key] = token
	return true, nil
}

func (l *memoryLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] == token {
		delete(l.locks, key)
	}
	return nil
}

type recordingEvents struct {
	mu                sync.Mutex
	err               error
	purchaseFinalized []*models.PurchaseFinalizedEvent
	giftPurchased     []*models.GiftPurchasedEvent
	giftClaimed       []*models.GiftClaimedEvent
	refundRequested   []*models.RefundRequestedEvent
	refundClosed      []*models.RefundClosedEvent
}

func (r *recordingEvents) PublishPurchaseFinalized(ctx context.Context, e *models.PurchaseFinalizedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchaseFinalized = append(r.purchaseFinalized, e)
	return r.err
}

func (r *recordingEvents) PublishGiftPurchased(ctx context.Context, e *models.GiftPurchasedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.giftPurchased = append(r.giftPurchased, e)
	return r.err
}

func (r *recordingEvents) PublishGiftClaimed(ctx context.Context, e *models.GiftClaimedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.giftClaimed = append(r.giftClaimed, e)
	return r.err
}

func (r *recordingEvents) PublishRefundRequested(ctx context.Context, e *models.RefundRequestedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refundRequested = append(r.refundRequested, e)
	return r.err
}

func (r *recordingEvents) PublishRefundClosed(ctx context.Context, e *models.RefundClosedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refundClosed = append(r.refundClosed, e)
	return r.err
}

// memoryStore implements every repository with the same conditional-write
// semantics as the SQL store
type memoryStore struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	purchases map[string]*models.PurchaseRecord
	refunds   map[string]*models.RefundRequest
	gifts     map[string]*models.GiftCode
	products  map[string]*models.Product
	insertErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		customers: make(map[string]*models.Customer),
		purchases: make(map[string]*models.PurchaseRecord),
		refunds:   make(map[string]*models.RefundRequest),
		gifts:     make(map[string]*models.GiftCode),
		products:  make(map[string]*models.Product),
	}
}

func (m *memoryStore) addCustomer(c *models.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

func (m *memoryStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryStore) SetCustomerName(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[id]; ok && c.Name == "" {
		c.Name = name
	}
	return nil
}

func (m *memoryStore) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.customers[c.ID]
	if !ok {
		cp := *c
		m.customers[c.ID] = &cp
		return nil
	}
	existing.Email = c.Email
	if c.Name != "" {
		existing.Name = c.Name
	}
	if c.StripeCustomerID != "" {
		existing.StripeCustomerID = c.StripeCustomerID
	}
	if c.PayPalPayerID != "" {
		existing.PayPalPayerID = c.PayPalPayerID
	}
	return nil
}

func (m *memoryStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeDirectory struct {
	customers map[string]*gateway.Customer
	err       error
}

func (f *fakeDirectory) GetCustomer(ctx context.Context, id string) (*gateway.Customer, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.customers[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return c, nil
}

func (m *memoryStore) UpsertProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memoryStore) InsertPurchase(ctx context.Context, p *models.PurchaseRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if _, exists := m.purchases[p.ID]; exists {
		return false, nil
	}
	cp := *p
	m.purchases[p.ID] = &cp
	return true, nil
}

func (m *memoryStore) GetPurchase(ctx context.Context, id string) (*models.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memoryStore) ListPurchasesByCustomer(ctx context.Context, customerID string) ([]models.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PurchaseRecord
	for _, p := range m.purchases {
		if p.CustomerID == customerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseTime.After(out[j].PurchaseTime) })
	return out, nil
}

func (m *memoryStore) LinkRefund(ctx context.Context, purchaseID, refundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.purchases[purchaseID]; ok && p.RefundID == nil {
		id := refundID
		p.RefundID = &id
	}
	return nil
}

func (m *memoryStore) CreateRefund(ctx context.Context, r *models.RefundRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.refunds {
		if existing.Order == r.Order && existing.Gateway == r.Gateway {
			return false, nil
		}
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.refunds[r.ID] = &cp
	return true, nil
}

func (m *memoryStore) GetRefund(ctx context.Context, id string) (*models.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memoryStore) GetRefundByOrder(ctx context.Context, orderID string) (*models.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.Order == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) ListRefundsByStatus(ctx context.Context, status models.RefundStatus) ([]models.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RefundRequest
	for _, r := range m.refunds {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryStore) TransitionRefund(ctx context.Context, id string, from, to models.RefundStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *memoryStore) CreateGift(ctx context.Context, g *models.GiftCode) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.gifts {
		if existing.OrderID == g.OrderID && existing.ProductID == g.ProductID && existing.Unit == g.Unit {
			return false, nil
		}
	}
	cp := *g
	m.gifts[g.Code] = &cp
	return true, nil
}

func (m *memoryStore) GetGift(ctx context.Context, code string) (*models.GiftCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gifts[code]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *memoryStore) ClaimGift(ctx context.Context, code, to string, expiresAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gifts[code]
	if !ok || g.To != to || g.Redeemed {
		return false, nil
	}
	g.Redeemed = true
	g.ExpiresAt = expiresAt
	return true, nil
}

func (m *memoryStore) ListGiftsFor(ctx context.Context, to string) ([]models.GiftCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GiftCode
	for _, g := range m.gifts {
		if g.To == to {
			out = append(out, *g)
		}
	}
	return out, nil
}

func monthly(id string, value int64) models.PriceOption {
	return models.PriceOption{ID: id, Value: value, Interval: &models.Interval{Period: models.PeriodMonth, Count: 1}}
}

func annual(id string, value int64) models.PriceOption {
	return models.PriceOption{ID: id, Value: value, Interval: &models.Interval{Period: models.PeriodYear, Count: 1}}
}

func oneTime(id string, value int64) models.PriceOption {
	return models.PriceOption{ID: id, Value: value}
}

type keyRecordingLocker struct {
	*memoryLocker
	keys []string
}

func (l *keyRecordingLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.memoryLocker.AcquireLock(ctx, key, token, ttl)
}
