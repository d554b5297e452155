// Package cart holds the authoritative in-memory cart state for one
// client session. Mutations are synchronous; every state change is
// mirrored to durable local storage so an offline reload cannot lose the
// cart, and each user-driven mutation enqueues exactly one analytics
// event.
package cart

import (
	"fmt"
	"sync"
	"time"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/pricing"
	"cart-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister mirrors the cart into durable local storage on every change.
type Persister interface {
	Save(snapshot models.CartSnapshot) error
	Load() (*models.CartSnapshot, error)
}

// EventSink receives one analytics event per user-driven mutation.
type EventSink interface {
	Emit(name string, payload map[string]string)
}

// Store is the local cart state container. All methods are safe for
// concurrent use; subscribers are notified after each state change with no
// locks held.
type Store struct {
	mu          sync.Mutex
	items       []models.LineItem
	discounts   []models.DiscountCode
	currency    string
	version     int64
	removedKeys map[string]struct{}
	subscribers []func()

	persister Persister
	sink      EventSink
	logger    *zap.Logger
}

// NewStore creates an empty cart store. persister and sink may be nil in
// tests.
func NewStore(currency string, persister Persister, sink EventSink) *Store {
	return &Store{
		currency:    currency,
		removedKeys: make(map[string]struct{}),
		persister:   persister,
		sink:        sink,
		logger:      util.GetLogger(),
	}
}

// Restore loads the persisted mirror, if any, into the store. Called once
// at session start, before any subscriber is registered.
func (s *Store) Restore() error {
	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("failed to load cart mirror: %w", err)
	}
	if snap == nil {
		return nil
	}

	s.mu.Lock()
	s.items = snap.Items
	s.discounts = snap.Discounts
	if snap.Currency != "" {
		s.currency = snap.Currency
	}
	s.version = snap.Version
	s.mu.Unlock()
	return nil
}

// Subscribe registers a callback invoked after every state change.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// AddItem adds a product to the cart, merging into an existing line when
// the (productID, variantID) pair matches. Quantity is clamped to the
// product's stock when known.
func (s *Store) AddItem(p models.Product, variantID string, qty int) models.LineItem {
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	key := p.ID + "|" + variantID
	var line models.LineItem
	merged := false
	for i := range s.items {
		if s.items[i].Key() == key {
			s.items[i].Quantity = clampQty(s.items[i].Quantity+qty, s.items[i].StockCeiling)
			s.items[i].LastUpdatedAt = time.Now()
			line = s.items[i]
			merged = true
			break
		}
	}
	if !merged {
		line = models.LineItem{
			LineID:        uuid.New().String(),
			ProductID:     p.ID,
			VariantID:     variantID,
			Title:         p.Title,
			Image:         p.Image,
			UnitPrice:     p.Price,
			Quantity:      clampQty(qty, p.Stock),
			StockCeiling:  p.Stock,
			LastUpdatedAt: time.Now(),
			Metadata: map[string]string{
				"category": p.Category,
				"weight_g": fmt.Sprintf("%d", p.WeightG),
				"tax_code": p.TaxCode,
			},
		}
		s.items = append(s.items, line)
	}
	delete(s.removedKeys, key)
	s.mu.Unlock()

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	s.emit(models.EventCartItemAdded, map[string]string{"product_id": p.ID, "variant_id": variantID})
	s.changed()
	return line
}

// UpdateQuantity sets the quantity of a line, clamped to [1, stockCeiling]
// when a ceiling is known.
func (s *Store) UpdateQuantity(lineID string, qty int) error {
	s.mu.Lock()
	found := false
	var productID string
	for i := range s.items {
		if s.items[i].LineID == lineID {
			s.items[i].Quantity = clampQty(qty, s.items[i].StockCeiling)
			s.items[i].LastUpdatedAt = time.Now()
			productID = s.items[i].ProductID
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("line not found: %s", lineID)
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	s.emit(models.EventCartItemUpdated, map[string]string{"product_id": productID, "line_id": lineID})
	s.changed()
	return nil
}

// RemoveItem removes a line and returns it so the caller can offer undo.
// The line's (productID, variantID) key is recorded for the next sync push.
func (s *Store) RemoveItem(lineID string) (*models.LineItem, error) {
	s.mu.Lock()
	var removed *models.LineItem
	for i := range s.items {
		if s.items[i].LineID == lineID {
			line := s.items[i]
			removed = &line
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.removedKeys[line.Key()] = struct{}{}
			break
		}
	}
	s.mu.Unlock()

	if removed == nil {
		return nil, fmt.Errorf("line not found: %s", lineID)
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	s.emit(models.EventCartItemRemoved, map[string]string{"product_id": removed.ProductID, "line_id": lineID})
	s.changed()
	return removed, nil
}

// ReAddItem restores a previously removed line with its original lineID
// (undo).
func (s *Store) ReAddItem(line models.LineItem) {
	s.mu.Lock()
	line.LastUpdatedAt = time.Now()
	s.items = append(s.items, line)
	delete(s.removedKeys, line.Key())
	s.mu.Unlock()

	util.CartMutationsTotal.WithLabelValues("readd").Inc()
	s.emit(models.EventCartItemReAdded, map[string]string{"product_id": line.ProductID, "line_id": line.LineID})
	s.changed()
}

// ClearCart removes every line and discount, recording all keys as removed.
func (s *Store) ClearCart() {
	s.mu.Lock()
	for i := range s.items {
		s.removedKeys[s.items[i].Key()] = struct{}{}
	}
	s.items = nil
	s.discounts = nil
	s.mu.Unlock()

	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	s.emit(models.EventCartCleared, nil)
	s.changed()
}

// ApplyDiscount adds a discount code after stacking validation. The caller
// resolves the code against the catalog; a nil-resolved code surfaces as
// not-found through pricing.ValidateApply before this is reached.
func (s *Store) ApplyDiscount(code models.DiscountCode) error {
	s.mu.Lock()
	if err := pricing.ValidateApply(&code, s.discounts); err != nil {
		s.mu.Unlock()
		return err
	}
	s.discounts = append(s.discounts, code)
	s.mu.Unlock()

	util.CartMutationsTotal.WithLabelValues("discount_apply").Inc()
	s.emit(models.EventDiscountApplied, map[string]string{"code": code.Code})
	s.changed()
	return nil
}

// RemoveDiscount drops an applied code. Unknown codes are a no-op.
func (s *Store) RemoveDiscount(code string) {
	norm := (&models.DiscountCode{Code: code}).NormalizedCode()

	s.mu.Lock()
	for i := range s.discounts {
		if s.discounts[i].NormalizedCode() == norm {
			s.discounts = append(s.discounts[:i], s.discounts[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	util.CartMutationsTotal.WithLabelValues("discount_remove").Inc()
	s.emit(models.EventDiscountRemoved, map[string]string{"code": code})
	s.changed()
}

// Totals recomputes pricing from current state.
func (s *Store) Totals() models.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.ComputeTotals(s.items, s.discounts)
}

// Snapshot returns a copy of current state tagged with the last-seen
// version.
func (s *Store) Snapshot() models.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CartSnapshot{
		Version:   s.version,
		Items:     append([]models.LineItem(nil), s.items...),
		Discounts: append([]models.DiscountCode(nil), s.discounts...),
		Currency:  s.currency,
		UpdatedAt: time.Now(),
	}
}

// AdoptSnapshot replaces local state with a remote snapshot (sync pull,
// merge result, or checkout drift adoption). It does not enqueue analytics
// and does not record removal keys; it persists and notifies like any
// other change.
func (s *Store) AdoptSnapshot(snap models.CartSnapshot) {
	s.mu.Lock()
	s.items = append([]models.LineItem(nil), snap.Items...)
	s.discounts = append([]models.DiscountCode(nil), snap.Discounts...)
	if snap.Currency != "" {
		s.currency = snap.Currency
	}
	s.version = snap.Version
	s.removedKeys = make(map[string]struct{})
	s.mu.Unlock()

	s.changed()
}

// Items returns a copy of the current lines.
func (s *Store) Items() []models.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LineItem(nil), s.items...)
}

// Discounts returns a copy of the applied codes.
func (s *Store) Discounts() []models.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DiscountCode(nil), s.discounts...)
}

// Currency returns the cart currency.
func (s *Store) Currency() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currency
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) == 0
}

// Version returns the last-seen snapshot version.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// SetVersion adopts a server-assigned version after a successful push.
func (s *Store) SetVersion(v int64) {
	s.mu.Lock()
	if v > s.version {
		s.version = v
	}
	s.mu.Unlock()
}

// RemovedKeys returns the pending removal keys for the next push.
func (s *Store) RemovedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.removedKeys))
	for k := range s.removedKeys {
		keys = append(keys, k)
	}
	return keys
}

// ClearRemovedKeys drops keys that a successful push has delivered. Keys
// removed again mid-flight stay queued.
func (s *Store) ClearRemovedKeys(keys []string) {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.removedKeys, k)
	}
	s.mu.Unlock()
}

func (s *Store) emit(name string, payload map[string]string) {
	if s.sink != nil {
		s.sink.Emit(name, payload)
	}
}

// changed persists the mirror and notifies subscribers. Runs without the
// state lock so subscribers can read back through the store.
func (s *Store) changed() {
	if s.persister != nil {
		if err := s.persister.Save(s.Snapshot()); err != nil {
			s.logger.Warn("Failed to persist cart mirror", zap.Error(err))
		}
	}

	s.mu.Lock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func clampQty(qty, ceiling int) int {
	if qty < 1 {
		qty = 1
	}
	if ceiling > 0 && qty > ceiling {
		qty = ceiling
	}
	return qty
}
