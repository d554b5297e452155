package sync

import (
	"context"
	"fmt"
	"time"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Merge outcomes
const (
	MergeOutcomeNoop   = "noop"
	MergeOutcomeReload = "reload"
	MergeOutcomeUnion  = "union"
)

// MergeOnSignIn reconciles the guest-local cart with the server cart for
// the newly authenticated identity. Invoked exactly once per guest-to-
// authenticated transition; the merged result becomes local state and is
// pushed immediately to establish a fresh baseline version.
func (c *Coordinator) MergeOnSignIn(ctx context.Context) (string, error) {
	ctx, span := util.StartSpan(ctx, "MergeResolver.MergeOnSignIn")
	defer span.End()

	remote, err := c.docs.Fetch(ctx, c.userID)
	if err != nil {
		util.MergesTotal.WithLabelValues("fetch_failed").Inc()
		return "", fmt.Errorf("failed to fetch remote cart: %w", err)
	}

	local := c.store.Snapshot()
	if remote == nil {
		remote = &models.CartSnapshot{}
	}

	merged, outcome := ResolveMerge(local, *remote)
	util.MergesTotal.WithLabelValues(outcome).Inc()
	c.logger.Info("Sign-in merge resolved",
		zap.String("user_id", c.userID),
		zap.String("outcome", outcome),
		zap.Int("lines", len(merged.Items)))

	switch outcome {
	case MergeOutcomeNoop:
		return outcome, nil
	case MergeOutcomeReload:
		c.adopt(merged)
		return outcome, nil
	default:
		c.adopt(merged)
		if err := c.PushNow(ctx); err != nil {
			return outcome, fmt.Errorf("failed to push merged cart: %w", err)
		}
		return outcome, nil
	}
}

// ResolveMerge implements the one-shot merge algorithm. Both sides empty is
// a no-op. If both sides hold the same (productID, variantID) set with
// identical quantities the remote snapshot is adopted as-is: that is a
// page-reload echo, and summing would double quantities. Anything else is
// a union with summed quantities; price, title and image come from
// whichever side has them.
func ResolveMerge(local, remote models.CartSnapshot) (models.CartSnapshot, string) {
	if len(local.Items) == 0 && len(remote.Items) == 0 {
		return remote, MergeOutcomeNoop
	}

	if sameLines(local.Items, remote.Items) {
		return remote, MergeOutcomeReload
	}

	byKey := make(map[string]*models.LineItem)
	order := make([]string, 0, len(remote.Items)+len(local.Items))

	for i := range remote.Items {
		line := remote.Items[i]
		if line.LineID == "" {
			line.LineID = uuid.New().String()
		}
		key := line.Key()
		byKey[key] = &line
		order = append(order, key)
	}

	for i := range local.Items {
		line := local.Items[i]
		key := line.Key()
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = &line
			order = append(order, key)
			continue
		}
		existing.Quantity += line.Quantity
		// Local lineID survives the merge so undo references stay valid.
		existing.LineID = line.LineID
		if existing.Title == "" {
			existing.Title = line.Title
		}
		if existing.Image == "" {
			existing.Image = line.Image
		}
		if existing.UnitPrice == 0 {
			existing.UnitPrice = line.UnitPrice
		}
		if existing.StockCeiling == 0 {
			existing.StockCeiling = line.StockCeiling
		}
		if existing.Metadata == nil {
			existing.Metadata = line.Metadata
		}
	}

	merged := models.CartSnapshot{
		Version:   remote.Version,
		Items:     make([]models.LineItem, 0, len(order)),
		Discounts: mergeDiscounts(remote.Discounts, local.Discounts),
		Currency:  pickCurrency(remote.Currency, local.Currency),
		UpdatedAt: time.Now(),
	}
	for _, key := range order {
		line := byKey[key]
		if line.StockCeiling > 0 && line.Quantity > line.StockCeiling {
			line.Quantity = line.StockCeiling
		}
		merged.Items = append(merged.Items, *line)
	}
	return merged, MergeOutcomeUnion
}

// sameLines reports whether both sides hold the same key set with
// identical quantities (the duplicate-reload guard).
func sameLines(a, b []models.LineItem) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	qa := make(map[string]int, len(a))
	for i := range a {
		qa[a[i].Key()] += a[i].Quantity
	}
	qb := make(map[string]int, len(b))
	for i := range b {
		qb[b[i].Key()] += b[i].Quantity
	}
	if len(qa) != len(qb) {
		return false
	}
	for k, v := range qa {
		if qb[k] != v {
			return false
		}
	}
	return true
}

func mergeDiscounts(remote, local []models.DiscountCode) []models.DiscountCode {
	out := append([]models.DiscountCode(nil), remote...)
	seen := make(map[string]struct{}, len(remote))
	for i := range remote {
		seen[remote[i].NormalizedCode()] = struct{}{}
	}
	for i := range local {
		if _, ok := seen[local[i].NormalizedCode()]; ok {
			continue
		}
		out = append(out, local[i])
		seen[local[i].NormalizedCode()] = struct{}{}
	}
	return out
}

func pickCurrency(remote, local string) string {
	if remote != "" {
		return remote
	}
	return local
}
