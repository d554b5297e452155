package service

import (
	"context"
	"fmt"
	"math/rand"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/store"
	"cart-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutSession is the handoff to the external payment provider.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// PaymentService creates order records and payment-provider checkout
// sessions. The provider is mocked; a disconnected seller blocks checkout
// before any session is attempted.
type PaymentService struct {
	store            *store.Store
	logger           *zap.Logger
	connectedSellers map[string]bool
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store) *PaymentService {
	return &PaymentService{
		store:  store,
		logger: util.GetLogger(),
		connectedSellers: map[string]bool{
			// Sellers onboard through an external flow; this set mirrors
			// their provider connection state.
		},
	}
}

// SetSellerConnected records a seller's payment-provider connection state.
func (ps *PaymentService) SetSellerConnected(sellerUserID string, connected bool) {
	ps.connectedSellers[sellerUserID] = connected
}

// IsProviderConnected reports whether the seller's payment rail is usable.
func (ps *PaymentService) IsProviderConnected(sellerUserID string) bool {
	return ps.connectedSellers[sellerUserID]
}

// CreateOrder persists the order and its items. Idempotent on the
// idempotency key: a duplicate request returns the existing order.
func (ps *PaymentService) CreateOrder(ctx context.Context, userID, sellerUserID, siteID, currency, idempotencyKey string, items []models.LineItem, total int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateOrder")
	defer span.End()

	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	existing, err := ps.store.GetOrderByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		ps.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int64("order_id", existing.ID))
		return existing, nil
	}

	order := &models.Order{
		UserID:         userID,
		SellerUserID:   sellerUserID,
		SiteID:         siteID,
		TotalAmount:    total,
		Currency:       currency,
		Status:         models.OrderStatusCreated,
		IdempotencyKey: idempotencyKey,
	}
	if err := ps.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		item := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: items[i].ProductID,
			VariantID: items[i].VariantID,
			Quantity:  items[i].Quantity,
			UnitPrice: items[i].UnitPrice,
		}
		if err := ps.store.CreateOrderItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	ps.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total", total))
	return order, nil
}

// CreateCheckoutSession requests a payment session from the provider
// (mocked) and marks the order pending payment.
func (ps *PaymentService) CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateCheckoutSession")
	defer span.End()

	sessionID := fmt.Sprintf("cs_%s", uuid.New().String()[:13])
	session := &CheckoutSession{
		SessionID:   sessionID,
		RedirectURL: fmt.Sprintf("https://checkout.provider.example/%s?n=%d", sessionID, rand.Intn(1000)),
	}

	if err := ps.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending); err != nil {
		return nil, fmt.Errorf("failed to mark order pending: %w", err)
	}

	ps.logger.Info("Checkout session created",
		zap.Int64("order_id", order.ID),
		zap.String("session_id", sessionID))
	return session, nil
}
