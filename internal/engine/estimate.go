package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/schedule"
	"cart-sync-service/internal/util"
)

// estimateDebouncer schedules one shipping/tax estimate request per burst
// of relevant changes. Changes that leave subtotal, discount, currency,
// weight and tax codes untouched do not reschedule.
type estimateDebouncer struct {
	engine   *Engine
	debounce *schedule.Debouncer

	mu       sync.Mutex
	lastSig  string
	estimate *models.Estimate
}

func newEstimateDebouncer(e *Engine, delay time.Duration) *estimateDebouncer {
	return &estimateDebouncer{
		engine:   e,
		debounce: schedule.NewDebouncer(delay),
	}
}

func (ed *estimateDebouncer) onCartChange() {
	req := ed.buildRequest()
	sig := signature(req)

	ed.mu.Lock()
	changed := sig != ed.lastSig
	if changed {
		ed.lastSig = sig
	}
	ed.mu.Unlock()

	if !changed {
		return
	}
	ed.debounce.Schedule(ed.fetch)
}

func (ed *estimateDebouncer) fetch() {
	if ed.engine.opts.Estimator == nil {
		return
	}
	// Built at fire time so the request reflects the latest state.
	req := ed.buildRequest()

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	est, err := ed.engine.opts.Estimator.Estimate(ctx, req)
	if err != nil {
		// Estimate stays stale until the next relevant change.
		util.EstimateRequestsTotal.WithLabelValues("failed").Inc()
		return
	}
	util.EstimateRequestsTotal.WithLabelValues("ok").Inc()

	ed.mu.Lock()
	ed.estimate = est
	ed.mu.Unlock()

	ed.engine.buffer.Emit(models.EventEstimateUpdated, map[string]string{
		"shipping": strconv.FormatInt(est.Shipping, 10),
		"tax":      strconv.FormatInt(est.Tax, 10),
	})
}

func (ed *estimateDebouncer) last() *models.Estimate {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return ed.estimate
}

func (ed *estimateDebouncer) stop() {
	ed.debounce.Cancel()
}

func (ed *estimateDebouncer) buildRequest() models.EstimateRequest {
	items := ed.engine.store.Items()
	totals := ed.engine.store.Totals()

	var weight int
	codes := make(map[string]struct{})
	for i := range items {
		if w, err := strconv.Atoi(items[i].Metadata["weight_g"]); err == nil {
			weight += w * items[i].Quantity
		}
		if tc := items[i].Metadata["tax_code"]; tc != "" {
			codes[tc] = struct{}{}
		}
	}
	taxCodes := make([]string, 0, len(codes))
	for tc := range codes {
		taxCodes = append(taxCodes, tc)
	}
	sort.Strings(taxCodes)

	return models.EstimateRequest{
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		Currency:       ed.engine.store.Currency(),
		TotalWeightG:   weight,
		TaxCodes:       taxCodes,
	}
}

func signature(req models.EstimateRequest) string {
	return fmt.Sprintf("%d|%d|%s|%d|%s",
		req.Subtotal, req.DiscountAmount, req.Currency, req.TotalWeightG,
		strings.Join(req.TaxCodes, ","))
}
