package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayPal looks up completed orders through the PayPal REST API
type PayPal struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPal creates a PayPal client against baseURL
func NewPayPal(baseURL, clientID, clientSecret string, timeout time.Duration) *PayPal {
	return &PayPal{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
		logger:       util.GetLogger(),
	}
}

type paypalToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("paypal token request: status %d: %s", resp.StatusCode, body)
	}

	var tok paypalToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}

	p.token = tok.AccessToken
	// refresh a minute early
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	p.logger.Debug("PayPal access token refreshed", zap.Int("expires_in", tok.ExpiresIn))
	return p.token, nil
}

type paypalMoney struct {
	Value string `json:"value"`
}

type paypalOrder struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreateTime string `json:"create_time"`
	Payer      struct {
		PayerID      string `json:"payer_id"`
		EmailAddress string `json:"email_address"`
		Name         struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value     string `json:"value"`
			Breakdown struct {
				Discount *paypalMoney `json:"discount"`
			} `json:"breakdown"`
		} `json:"amount"`
		Items []struct {
			Name       string      `json:"name"`
			SKU        string      `json:"sku"`
			Quantity   string      `json:"quantity"`
			UnitAmount paypalMoney `json:"unit_amount"`
			Category   string      `json:"category"`
		} `json:"items"`
	} `json:"purchase_units"`
}

// GetInvoice fetches a PayPal order in invoice form
func (p *PayPal) GetInvoice(ctx context.Context, orderID string) (*Invoice, error) {
	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues(models.GatewayPayPal, "order.get").Observe(time.Since(start).Seconds())
	}()

	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal order request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: paypal order %s", ErrNotFound, orderID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("paypal order request: status %d: %s", resp.StatusCode, body)
	}

	var order paypalOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode paypal order: %w", err)
	}
	return p.toInvoice(&order)
}

func (p *PayPal) toInvoice(order *paypalOrder) (*Invoice, error) {
	inv := &Invoice{
		ID:            order.ID,
		Gateway:       models.GatewayPayPal,
		CustomerID:    order.Payer.PayerID,
		CustomerEmail: order.Payer.EmailAddress,
		CustomerName:  strings.TrimSpace(order.Payer.Name.GivenName + " " + order.Payer.Name.Surname),
		Status:        order.Status,
		Paid:          order.Status == "COMPLETED",
	}
	if t, err := time.Parse(time.RFC3339, order.CreateTime); err == nil {
		inv.Created = t.UTC()
	}

	for _, unit := range order.PurchaseUnits {
		for _, item := range unit.Items {
			unitAmount, err := toMinorUnits(item.UnitAmount.Value)
			if err != nil {
				return nil, fmt.Errorf("paypal order %s item %s: %w", order.ID, item.SKU, err)
			}
			qty := 1
			if item.Quantity != "" {
				if _, err := fmt.Sscanf(item.Quantity, "%d", &qty); err != nil {
					return nil, fmt.Errorf("paypal order %s item %s: bad quantity %q", order.ID, item.SKU, item.Quantity)
				}
			}
			inv.Lines = append(inv.Lines, InvoiceLine{
				ProductID: item.SKU,
				Name:      item.Name,
				Type:      models.ProductTypeSingle,
				Amount:    unitAmount * int64(qty),
				Quantity:  qty,
				Price:     models.PriceOption{ID: item.SKU, Value: unitAmount},
			})
		}

		// PayPal reports discounts already netted into the captured amount
		if d := unit.Amount.Breakdown.Discount; d != nil && d.Value != "" {
			off, err := toMinorUnits(d.Value)
			if err != nil {
				return nil, fmt.Errorf("paypal order %s discount: %w", order.ID, err)
			}
			if off > 0 {
				inv.Discounts = append(inv.Discounts, models.PurchaseDiscount{
					ID:        order.ID + "-discount",
					Name:      "PayPal discount",
					AmountOff: off,
					Ignore:    true,
				})
			}
		}
	}
	return inv, nil
}

func toMinorUnits(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", value)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
