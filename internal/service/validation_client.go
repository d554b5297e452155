package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

// ValidationClient calls the external validation service: authoritative
// re-pricing at checkout, shipping/tax estimates, and the abandoned-cart
// heartbeat.
type ValidationClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewValidationClient creates a new validation client
func NewValidationClient(baseURL string) *ValidationClient {
	return &ValidationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  util.GetLogger(),
	}
}

type validateRequest struct {
	UserID    string                `json:"user_id"`
	Items     []models.LineItem     `json:"items"`
	Discounts []models.DiscountCode `json:"discounts"`
}

// Validate asks the external service to re-price and re-stock the cart.
func (vc *ValidationClient) Validate(ctx context.Context, userID string, items []models.LineItem, discounts []models.DiscountCode) (*models.ValidationResult, error) {
	ctx, span := util.StartSpan(ctx, "ValidationClient.Validate")
	defer span.End()

	var result models.ValidationResult
	err := vc.post(ctx, "/cart/validate", validateRequest{
		UserID:    userID,
		Items:     items,
		Discounts: discounts,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("validate call failed: %w", err)
	}
	return &result, nil
}

type estimateResponse struct {
	OK       bool  `json:"ok"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
}

// Estimate fetches a shipping/tax estimate for the current totals.
func (vc *ValidationClient) Estimate(ctx context.Context, req models.EstimateRequest) (*models.Estimate, error) {
	var resp estimateResponse
	if err := vc.post(ctx, "/cart/estimate", req, &resp); err != nil {
		return nil, fmt.Errorf("estimate call failed: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("estimate rejected")
	}
	return &models.Estimate{Shipping: resp.Shipping, Tax: resp.Tax, UpdatedAt: time.Now()}, nil
}

// Heartbeat pings the abandoned-cart endpoint. Best effort; the response
// body is ignored.
func (vc *ValidationClient) Heartbeat(ctx context.Context, userID string) error {
	return vc.post(ctx, "/cart/heartbeat", map[string]string{"user_id": userID}, nil)
}

func (vc *ValidationClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := vc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
