package engine

import (
	"context"
	"fmt"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/pricing"
	"cart-sync-service/internal/service"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

// Checkout statuses
const (
	CheckoutBlockedValidation = "BLOCKED_VALIDATION"
	CheckoutBlockedProvider   = "BLOCKED_PROVIDER"
	CheckoutDrift             = "DRIFT"
	CheckoutCompleted         = "COMPLETED"
)

// CheckoutBackend validates carts and creates orders/payment sessions.
type CheckoutBackend interface {
	Validate(ctx context.Context, userID string, items []models.LineItem, discounts []models.DiscountCode) (*models.ValidationResult, error)
	IsProviderConnected(sellerUserID string) bool
	CreateOrder(ctx context.Context, userID, sellerUserID, siteID, currency, idempotencyKey string, items []models.LineItem, total int64) (*models.Order, error)
	CreateCheckoutSession(ctx context.Context, order *models.Order) (*service.CheckoutSession, error)
}

// CheckoutRequest identifies the seller and site being checked out.
type CheckoutRequest struct {
	SellerUserID   string `json:"seller_user_id" binding:"required"`
	SiteID         string `json:"site_id" binding:"required"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CheckoutResult reports the checkout outcome. A DRIFT result means the
// validated state was adopted locally and the user must retry.
type CheckoutResult struct {
	Status          string                   `json:"status"`
	Notice          string                   `json:"notice,omitempty"`
	HighlightedKeys []string                 `json:"highlighted_keys,omitempty"`
	OrderID         int64                    `json:"order_id,omitempty"`
	Total           int64                    `json:"total,omitempty"`
	Session         *service.CheckoutSession `json:"session,omitempty"`
}

// Checkout sequences validate, drift handling, order creation and payment
// session handoff.
func (e *Engine) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.Checkout")
	defer span.End()

	e.buffer.Emit(models.EventCheckoutIntent, map[string]string{"seller": req.SellerUserID})

	items := e.store.Items()
	discounts := e.store.Discounts()

	result, err := e.opts.Checkout.Validate(ctx, e.UserID(), items, discounts)
	if err != nil {
		util.CheckoutsTotal.WithLabelValues("validate_failed").Inc()
		e.buffer.Emit(models.EventCheckoutBlocked, map[string]string{"reason": "validate_failed"})
		return nil, fmt.Errorf("validation unavailable: %w", err)
	}

	if !result.OK {
		util.CheckoutsTotal.WithLabelValues("rejected").Inc()
		e.buffer.Emit(models.EventCheckoutBlocked, map[string]string{"reason": "rejected"})
		return &CheckoutResult{
			Status: CheckoutBlockedValidation,
			Notice: "The order could not be validated.",
		}, nil
	}

	if !e.opts.Checkout.IsProviderConnected(req.SellerUserID) {
		util.CheckoutsTotal.WithLabelValues("provider_disconnected").Inc()
		e.buffer.Emit(models.EventCheckoutBlocked, map[string]string{"reason": "provider_disconnected"})
		return &CheckoutResult{
			Status: CheckoutBlockedProvider,
			Notice: "Payments are not set up for this seller.",
		}, nil
	}

	if result.Changed {
		return e.adoptDrift(result), nil
	}

	totals := pricing.ComputeTotals(items, discounts)
	order, err := e.opts.Checkout.CreateOrder(ctx,
		e.UserID(), req.SellerUserID, req.SiteID,
		e.store.Currency(), req.IdempotencyKey, items, totals.Total)
	if err != nil {
		util.CheckoutsTotal.WithLabelValues("order_failed").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	session, err := e.opts.Checkout.CreateCheckoutSession(ctx, order)
	if err != nil {
		util.CheckoutsTotal.WithLabelValues("session_failed").Inc()
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	util.CheckoutsTotal.WithLabelValues("completed").Inc()
	e.buffer.Emit(models.EventCheckoutCompleted, map[string]string{"order_id": fmt.Sprintf("%d", order.ID)})
	e.logger.Info("Checkout completed",
		zap.Int64("order_id", order.ID),
		zap.Int64("total", totals.Total))

	return &CheckoutResult{
		Status:  CheckoutCompleted,
		OrderID: order.ID,
		Total:   totals.Total,
		Session: session,
	}, nil
}

// adoptDrift replaces local state with the validated items/discounts,
// surfaces the pending notice and highlight set, and requires a retry. The
// last-seen version is kept; the next push establishes the new baseline.
func (e *Engine) adoptDrift(result *models.ValidationResult) *CheckoutResult {
	highlights := make([]string, 0, len(result.RemovedItemIDs)+len(result.Adjustments)+len(result.Rejected))
	highlights = append(highlights, result.RemovedItemIDs...)
	highlights = append(highlights, result.Adjustments...)
	highlights = append(highlights, result.Rejected...)

	e.store.AdoptSnapshot(models.CartSnapshot{
		Version:   e.store.Version(),
		Items:     result.Items,
		Discounts: result.Discounts,
		Currency:  e.store.Currency(),
	})

	notice := "Some items changed while you were shopping. Review your cart and try again."
	e.notices.set(notice, highlights)

	util.CheckoutsTotal.WithLabelValues("drift").Inc()
	e.buffer.Emit(models.EventCheckoutDrift, map[string]string{
		"removed":  fmt.Sprintf("%d", len(result.RemovedItemIDs)),
		"adjusted": fmt.Sprintf("%d", len(result.Adjustments)),
		"rejected": fmt.Sprintf("%d", len(result.Rejected)),
	})

	return &CheckoutResult{
		Status:          CheckoutDrift,
		Notice:          notice,
		HighlightedKeys: highlights,
	}
}
