package service

import (
	"context"

	"cart-sync-service/internal/models"
)

// CheckoutService fronts the validation API and the payment service as
// one checkout collaborator.
type CheckoutService struct {
	validation *ValidationClient
	payments   *PaymentService
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(validation *ValidationClient, payments *PaymentService) *CheckoutService {
	return &CheckoutService{
		validation: validation,
		payments:   payments,
	}
}

// Validate revalidates cart contents against live stock and prices.
func (cs *CheckoutService) Validate(ctx context.Context, userID string, items []models.LineItem, discounts []models.DiscountCode) (*models.ValidationResult, error) {
	return cs.validation.Validate(ctx, userID, items, discounts)
}

// IsProviderConnected reports whether the seller can accept payments.
func (cs *CheckoutService) IsProviderConnected(sellerUserID string) bool {
	return cs.payments.IsProviderConnected(sellerUserID)
}

// CreateOrder persists the order for the validated cart.
func (cs *CheckoutService) CreateOrder(ctx context.Context, userID, sellerUserID, siteID, currency, idempotencyKey string, items []models.LineItem, total int64) (*models.Order, error) {
	return cs.payments.CreateOrder(ctx, userID, sellerUserID, siteID, currency, idempotencyKey, items, total)
}

// CreateCheckoutSession opens the hosted payment session for an order.
func (cs *CheckoutService) CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	return cs.payments.CreateCheckoutSession(ctx, order)
}
