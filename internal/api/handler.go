package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CatalogAPI renders and manages gateway products
type CatalogAPI interface {
	Format(ctx context.Context, productID string, shape service.Shape) (*service.NormalizedProduct, error)
	ListCatalog(ctx context.Context) ([]service.NormalizedProduct, error)
	CreateProduct(ctx context.Context, req *service.ProductRequest) (*service.NormalizedProduct, error)
	UpdateProduct(ctx context.Context, productID string, req *service.ProductRequest) (*models.Product, error)
	ListMirrored(ctx context.Context) ([]models.Product, error)
}

// AccountAPI links the signed-in identity to a local customer
type AccountAPI interface {
	Sync(ctx context.Context, id, email string, req *service.AccountRequest) (*models.Customer, error)
	Get(ctx context.Context, id string) (*models.Customer, error)
}

// CartAPI mutates the session cart
type CartAPI interface {
	GetCart(sess *session.Session) []models.CartItem
	AddItem(ctx context.Context, sess *session.Session, productID string) ([]models.CartItem, error)
	SetCart(ctx context.Context, sess *session.Session, items []models.CartItem) ([]models.CartItem, error)
}

// DiscountAPI manages the session discount code
type DiscountAPI interface {
	Apply(ctx context.Context, sess *session.Session, code string) (*models.DiscountCode, error)
	Remove(sess *session.Session)
	Get(sess *session.Session) (*models.DiscountCode, error)
	Quote(sess *session.Session) (*pricing.Quote, error)
}

// CheckoutAPI records paid invoices
type CheckoutAPI interface {
	SetCheckoutConfig(sess *session.Session, cfg session.CheckoutConfig) error
	Finalize(ctx context.Context, sess *session.Session, customerID, invoiceID string, req *service.FinalizeRequest) (*service.FinalizeResult, error)
}

// PurchaseAPI reads a customer's order history
type PurchaseAPI interface {
	ListOrders(ctx context.Context, customerID string) ([]service.OrderView, error)
	GetOrder(ctx context.Context, customerID, orderID string) (*service.OrderView, error)
}

// RefundAPI tracks refund cases
type RefundAPI interface {
	Create(ctx context.Context, customerID string, in *service.RefundRequestInput) (*models.RefundRequest, error)
	Status(ctx context.Context, customerID, orderID string) (*service.RefundCaseStatus, error)
	ListOpen(ctx context.Context) ([]models.RefundRequest, error)
	Transition(ctx context.Context, refundID string, to models.RefundStatus) (*models.RefundRequest, error)
}

// GiftAPI redeems gift codes
type GiftAPI interface {
	Claim(ctx context.Context, code, userID string) (*models.GiftCode, error)
	ListGifts(ctx context.Context, userID string) ([]models.GiftCode, error)
}

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the storefront services served over HTTP
type Services struct {
	Accounts  AccountAPI
	Catalog   CatalogAPI
	Cart      CartAPI
	Discount  DiscountAPI
	Checkout  CheckoutAPI
	Purchases PurchaseAPI
	Refunds   RefundAPI
	Gifts     GiftAPI
}

// Handler contains HTTP handlers
type Handler struct {
	svc      Services
	sessions *session.Store
	auth     *Authenticator
	cookie   SessionConfig
	checks   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, sessions *session.Store, auth *Authenticator, cookie SessionConfig, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		auth:     auth,
		cookie:   cookie,
		checks:   checks,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.auth.Authenticate())
	v1.Use(SessionMiddleware(h.sessions, h.cookie))
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/add", h.addToCart)
		v1.PUT("/cart", h.setCart)
		v1.GET("/cart/quote", h.getQuote)

		v1.GET("/discount", h.getDiscount)
		v1.POST("/discount", h.applyDiscount)
		v1.DELETE("/discount", h.removeDiscount)
	}

	customer := v1.Group("")
	customer.Use(RequireCustomer())
	{
		customer.GET("/account", h.getAccount)
		customer.PUT("/account", h.syncAccount)

		customer.PUT("/checkout/config", h.setCheckoutConfig)
		customer.POST("/checkout/finalize/:invoiceId", h.finalizeCheckout)

		customer.GET("/purchases", h.listPurchases)
		customer.GET("/purchases/:id", h.getPurchase)

		customer.POST("/refunds", h.createRefund)
		customer.GET("/refunds/:orderId/status", h.refundStatus)

		customer.GET("/gifts", h.listGifts)
		customer.GET("/gifts/:code/claim", h.claimGift)
	}

	admin := v1.Group("/admin")
	admin.Use(RequireStaff())
	{
		admin.GET("/refunds", h.listOpenRefunds)
		admin.POST("/refunds/:id/transition", h.transitionRefund)
		admin.GET("/products", h.listMirroredProducts)
		admin.POST("/products", h.createProduct)
		admin.PATCH("/products/:id", h.updateProduct)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency the storefront cannot serve without
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failing[name] = "unavailable"
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failing,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func customerID(c *gin.Context) string {
	if claims := getClaims(c); claims != nil {
		return claims.Subject
	}
	return ""
}

// listProducts returns the active, visible catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListCatalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns one product in the requested shape
func (h *Handler) getProduct(c *gin.Context) {
	shape := service.Shape(c.DefaultQuery("shape", string(service.ShapeListing)))
	if shape != service.ShapeListing && shape != service.ShapeCart {
		respondError(c, apperr.Validation("Unknown product shape %s", shape))
		return
	}

	product, err := h.svc.Catalog.Format(c.Request.Context(), c.Param("id"), shape)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cart": h.svc.Cart.GetCart(getSession(c))})
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
}

// addToCart accepts the product id as a query parameter or in the body
func (h *Handler) addToCart(c *gin.Context) {
	productID := c.Query("productId")
	if productID == "" && c.Request.ContentLength != 0 {
		var req addToCartRequest
		if !bindJSON(c, &req) {
			return
		}
		productID = req.ProductID
	}
	if strings.TrimSpace(productID) == "" {
		respondError(c, apperr.Validation("A product id is required"))
		return
	}

	cart, err := h.svc.Cart.AddItem(c.Request.Context(), getSession(c), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

type setCartRequest struct {
	CartData []models.CartItem `json:"cartData"`
}

func (h *Handler) setCart(c *gin.Context) {
	var req setCartRequest
	if !bindJSON(c, &req) {
		return
	}

	cart, err := h.svc.Cart.SetCart(c.Request.Context(), getSession(c), req.CartData)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// getQuote prices the cart with the active discount
func (h *Handler) getQuote(c *gin.Context) {
	quote, err := h.svc.Discount.Quote(getSession(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// getDiscount answers 410 Gone when no code is applied
func (h *Handler) getDiscount(c *gin.Context) {
	discount, err := h.svc.Discount.Get(getSession(c))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			c.JSON(http.StatusGone, gin.H{
				"error": apperr.PublicMessage(err),
				"code":  apperr.CodeDiscountNotActive,
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, discount)
}

type applyDiscountRequest struct {
	Code string `json:"code"`
}

func (h *Handler) applyDiscount(c *gin.Context) {
	var req applyDiscountRequest
	if !bindJSON(c, &req) {
		return
	}

	discount, err := h.svc.Discount.Apply(c.Request.Context(), getSession(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, discount)
}

func (h *Handler) removeDiscount(c *gin.Context) {
	h.svc.Discount.Remove(getSession(c))
	c.Status(http.StatusNoContent)
}

func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.svc.Accounts.Get(c.Request.Context(), customerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// syncAccount creates or refreshes the customer for the token identity
func (h *Handler) syncAccount(c *gin.Context) {
	var req service.AccountRequest
	if !bindJSON(c, &req) {
		return
	}

	claims := getClaims(c)
	account, err := h.svc.Accounts.Sync(c.Request.Context(), claims.Subject, claims.Email, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) setCheckoutConfig(c *gin.Context) {
	var cfg session.CheckoutConfig
	if !bindJSON(c, &cfg) {
		return
	}

	if err := h.svc.Checkout.SetCheckoutConfig(getSession(c), cfg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// finalizeCheckout records a paid invoice. Once it succeeds the response is
// always 200; bookkeeping problems come back as warnings.
func (h *Handler) finalizeCheckout(c *gin.Context) {
	var req service.FinalizeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Checkout.Finalize(c.Request.Context(), getSession(c), customerID(c), c.Param("invoiceId"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listPurchases(c *gin.Context) {
	orders, err := h.svc.Purchases.ListOrders(c.Request.Context(), customerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getPurchase(c *gin.Context) {
	order, err := h.svc.Purchases.GetOrder(c.Request.Context(), customerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) createRefund(c *gin.Context) {
	var req service.RefundRequestInput
	if !bindJSON(c, &req) {
		return
	}

	refund, err := h.svc.Refunds.Create(c.Request.Context(), customerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

// refundStatus answers 200 with the status of an open case, 202 otherwise
func (h *Handler) refundStatus(c *gin.Context) {
	status, err := h.svc.Refunds.Status(c.Request.Context(), customerID(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !status.Active {
		c.JSON(http.StatusAccepted, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) listOpenRefunds(c *gin.Context) {
	refunds, err := h.svc.Refunds.ListOpen(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

type transitionRequest struct {
	Status models.RefundStatus `json:"status"`
}

func (h *Handler) transitionRefund(c *gin.Context) {
	var req transitionRequest
	if !bindJSON(c, &req) {
		return
	}

	refund, err := h.svc.Refunds.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

func (h *Handler) listMirroredProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListMirrored(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listGifts(c *gin.Context) {
	gifts, err := h.svc.Gifts.ListGifts(c.Request.Context(), customerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gifts": gifts})
}

func (h *Handler) claimGift(c *gin.Context) {
	gift, err := h.svc.Gifts.Claim(c.Request.Context(), c.Param("code"), customerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gift)
}
