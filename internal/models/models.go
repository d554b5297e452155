package models

import (
	"strings"
	"time"
)

// Product represents a catalog product
type Product struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Image     string    `db:"image" json:"image"`
	Price     int64     `db:"price" json:"price"`
	Category  string    `db:"category" json:"category"`
	Stock     int       `db:"stock" json:"stock"`
	WeightG   int       `db:"weight_g" json:"weight_g"`
	TaxCode   string    `db:"tax_code" json:"tax_code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LineItem represents one line in a cart. LineID is generated locally and
// stays stable across merges; prices are in minor units (cents).
type LineItem struct {
	LineID        string            `json:"line_id"`
	ProductID     string            `json:"product_id"`
	VariantID     string            `json:"variant_id,omitempty"`
	Title         string            `json:"title"`
	Image         string            `json:"image"`
	UnitPrice     int64             `json:"unit_price"`
	Quantity      int               `json:"quantity"`
	StockCeiling  int               `json:"stock_ceiling,omitempty"` // 0 means unknown
	LastUpdatedAt time.Time         `json:"last_updated_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Key returns the (productID, variantID) identity used for line merging.
func (li *LineItem) Key() string {
	return li.ProductID + "|" + li.VariantID
}

// Discount kinds
const (
	DiscountKindPercent     = "PERCENT"
	DiscountKindFixedAmount = "FIXED_AMOUNT"
)

// DiscountCode represents an applied discount. Code is the case-insensitive
// unique key; Amount is a percent (0-100) or a minor-unit amount depending
// on Kind.
type DiscountCode struct {
	Code           string `db:"code" json:"code"`
	Kind           string `db:"kind" json:"kind"`
	Amount         int64  `db:"amount" json:"amount"`
	Stackable      bool   `db:"stackable" json:"stackable"`
	ExclusionGroup string `db:"exclusion_group" json:"exclusion_group,omitempty"`
}

// NormalizedCode returns the canonical lowercase form of the code.
func (d *DiscountCode) NormalizedCode() string {
	return strings.ToLower(strings.TrimSpace(d.Code))
}

// CartSnapshot is the unit of synchronization with the remote document
// store. Version is server-assigned and only increases; receivers drop any
// snapshot whose version is not strictly greater than their last-seen one.
type CartSnapshot struct {
	Version            int64          `json:"version"`
	Items              []LineItem     `json:"items"`
	Discounts          []DiscountCode `json:"discounts"`
	Currency           string         `json:"currency"`
	LastWriterClientID string         `json:"last_writer_client_id"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CrossSellCandidate is a recommendation sourced from the catalog.
type CrossSellCandidate struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Image     string `json:"image"`
	Price     int64  `json:"price"`
	Category  string `json:"category"`
}

// Totals is the output of the pricing engine, in minor units.
type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discount_amount"`
	Total          int64 `json:"total"`
}

// Estimate holds the last shipping/tax estimate returned by the external
// validation service.
type Estimate struct {
	Shipping  int64     `json:"shipping"`
	Tax       int64     `json:"tax"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Order represents a created order
type Order struct {
	ID             int64     `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	SellerUserID   string    `db:"seller_user_id" json:"seller_user_id"`
	SiteID         string    `db:"site_id" json:"site_id"`
	TotalAmount    int64     `db:"total_amount" json:"total_amount"`
	Currency       string    `db:"currency" json:"currency"`
	Status         string    `db:"status" json:"status"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID string `db:"product_id" json:"product_id"`
	VariantID string `db:"variant_id" json:"variant_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// Order statuses
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusPending   = "PENDING_PAYMENT"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusFailed    = "FAILED"
)

// ValidationResult is the authoritative re-pricing/re-stock answer from the
// external validation service.
type ValidationResult struct {
	OK             bool           `json:"ok"`
	Changed        bool           `json:"changed"`
	Items          []LineItem     `json:"items"`
	Discounts      []DiscountCode `json:"discounts"`
	RemovedItemIDs []string       `json:"removed_item_ids"`
	Adjustments    []string       `json:"adjustments"`
	Rejected       []string       `json:"rejected"`
}
