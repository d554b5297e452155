package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cart-sync-service/internal/engine"
	"cart-sync-service/internal/models"
	"cart-sync-service/internal/pricing"
	"cart-sync-service/internal/store"
	"cart-sync-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientIDSource mints or looks up the durable per-browser client id for
// a session key.
type ClientIDSource interface {
	GetOrCreateClientID(ctx context.Context, sessionKey string) (string, error)
}

// Handler contains HTTP handlers
type Handler struct {
	manager *engine.Manager
	catalog *store.Store
	ids     ClientIDSource
}

// NewHandler creates a new HTTP handler
func NewHandler(manager *engine.Manager, catalog *store.Store, ids ClientIDSource) *Handler {
	return &Handler{
		manager: manager,
		catalog: catalog,
		ids:     ids,
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
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addItem)
		v1.PATCH("/cart/items/:lineId", h.updateQuantity)
		v1.DELETE("/cart/items/:lineId", h.removeItem)
		v1.POST("/cart/items/readd", h.reAddItem)
		v1.POST("/cart/clear", h.clearCart)
		v1.POST("/cart/discounts", h.applyDiscount)
		v1.DELETE("/cart/discounts/:code", h.removeDiscount)
		v1.POST("/cart/signin", h.signIn)
		v1.GET("/cart/cross-sell", h.crossSell)
		v1.POST("/cart/checkout", h.checkout)
	}
}

// session resolves the engine for the calling client. Returning browsers
// supply their stable client id; first-time visitors get one minted from
// their session cookie. The user id is present once authenticated.
func (h *Handler) session(c *gin.Context) (*engine.Engine, bool) {
	clientID := c.GetHeader("X-Client-ID")
	if clientID == "" {
		clientID = h.mintClientID(c)
		if clientID == "" {
			return nil, false
		}
	}

	e, err := h.manager.Session(c.Request.Context(), clientID, c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to open cart session",
			"details": err.Error(),
		})
		return nil, false
	}
	return e, true
}

// mintClientID resolves a durable client id from the session cookie and
// echoes it back so the browser can pin it. Writes the error response on
// failure and returns "".
func (h *Handler) mintClientID(c *gin.Context) string {
	sessionKey, _ := c.Cookie("cart_session")
	if sessionKey == "" {
		sessionKey = c.GetHeader("X-Session-Key")
	}
	if sessionKey == "" || h.ids == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing X-Client-ID header or cart_session cookie"})
		return ""
	}

	clientID, err := h.ids.GetOrCreateClientID(c.Request.Context(), sessionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to resolve client id",
			"details": err.Error(),
		})
		return ""
	}
	c.Header("X-Client-ID", clientID)
	return clientID
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getCart returns items, discounts, totals, estimate and any pending
// checkout notice.
func (h *Handler) getCart(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	notice, highlights := e.Notice()
	c.JSON(http.StatusOK, gin.H{
		"items":      e.Cart().Items(),
		"discounts":  e.Cart().Discounts(),
		"totals":     e.Cart().Totals(),
		"currency":   e.Cart().Currency(),
		"version":    e.Cart().Version(),
		"estimate":   e.LastEstimate(),
		"notice":     notice,
		"highlights": highlights,
	})
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// addItem adds a catalog product to the cart
func (h *Handler) addItem(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalog.GetProductByID(c.Request.Context(), req.ProductID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "details": err.Error()})
		return
	}

	line := e.Cart().AddItem(*product, req.VariantID, req.Quantity)
	c.JSON(http.StatusCreated, gin.H{"line": line, "totals": e.Cart().Totals()})
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// updateQuantity sets a line's quantity
func (h *Handler) updateQuantity(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := e.Cart().UpdateQuantity(c.Param("lineId"), req.Quantity); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Line not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": e.Cart().Items(), "totals": e.Cart().Totals()})
}

// removeItem removes a line and returns it so the client can offer undo
func (h *Handler) removeItem(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	removed, err := e.Cart().RemoveItem(c.Param("lineId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Line not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "totals": e.Cart().Totals()})
}

// reAddItem restores a previously removed line (undo)
func (h *Handler) reAddItem(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	var line models.LineItem
	if err := c.ShouldBindJSON(&line); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	e.Cart().ReAddItem(line)
	c.JSON(http.StatusCreated, gin.H{"items": e.Cart().Items(), "totals": e.Cart().Totals()})
}

// clearCart empties the cart
func (h *Handler) clearCart(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	e.Cart().ClearCart()
	c.JSON(http.StatusOK, gin.H{"totals": e.Cart().Totals()})
}

type applyDiscountRequest struct {
	Code string `json:"code" binding:"required"`
}

// applyDiscount validates a code against the catalog and applies it
func (h *Handler) applyDiscount(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	var req applyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	code, err := h.catalog.GetDiscountByCode(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Discount lookup failed", "details": err.Error()})
		return
	}
	if code == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Discount code not found", "code": req.Code})
		return
	}

	if err := e.Cart().ApplyDiscount(*code); err != nil {
		status := http.StatusConflict
		reason := "rejected"
		switch {
		case errors.Is(err, pricing.ErrDiscountDuplicate):
			reason = "duplicate"
		case errors.Is(err, pricing.ErrDiscountExcluded):
			reason = "excluded"
		}
		c.JSON(status, gin.H{"error": "Discount rejected", "reason": reason, "code": req.Code})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"discounts": e.Cart().Discounts(), "totals": e.Cart().Totals()})
}

// removeDiscount drops an applied code
func (h *Handler) removeDiscount(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	e.Cart().RemoveDiscount(c.Param("code"))
	c.JSON(http.StatusOK, gin.H{"discounts": e.Cart().Discounts(), "totals": e.Cart().Totals()})
}

type signInRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// signIn performs the one-shot guest-to-authenticated cart merge
func (h *Handler) signIn(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	outcome, err := e.SignIn(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Merge failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome,
		"items":   e.Cart().Items(),
		"totals":  e.Cart().Totals(),
		"version": e.Cart().Version(),
	})
}

// crossSell returns up to six recommendations for the current cart
func (h *Handler) crossSell(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	candidates, err := e.CrossSell(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cross-sell fetch failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// checkout runs validate, drift handling and order/payment-session
// creation
func (h *Handler) checkout(c *gin.Context) {
	e, ok := h.session(c)
	if !ok {
		return
	}

	var req engine.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := e.Checkout(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Checkout failed", "details": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Status == engine.CheckoutDrift {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
