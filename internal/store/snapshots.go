package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cart-sync-service/internal/models"
)

// snapshotRow is the cart_snapshots table shape: one versioned document
// per user, the doc column holding items/discounts/currency as jsonb.
type snapshotRow struct {
	UserID       string    `db:"user_id"`
	Version      int64     `db:"version"`
	Doc          []byte    `db:"doc"`
	LastClientID string    `db:"last_client_id"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type snapshotDoc struct {
	Items     []models.LineItem     `json:"items"`
	Discounts []models.DiscountCode `json:"discounts"`
	Currency  string                `json:"currency"`
}

// FetchSnapshot loads the versioned cart document for a user, or nil when
// none exists yet.
func (s *Store) FetchSnapshot(ctx context.Context, userID string) (*models.CartSnapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM cart_snapshots WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToSnapshot(&row)
}

// WriteSnapshot applies a sync push: the document is replaced with the
// pushed state and the version advances atomically. This is last-writer-
// wins by design; baseVersion is informational and never rejected.
func (s *Store) WriteSnapshot(ctx context.Context, req models.SyncPushRequest) (*models.CartSnapshot, error) {
	doc, err := json.Marshal(snapshotDoc{
		Items:     req.Items,
		Discounts: req.Discounts,
		Currency:  req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot doc: %w", err)
	}

	query := `
		INSERT INTO cart_snapshots (user_id, version, doc, last_client_id, updated_at)
		VALUES ($1, 1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET version = cart_snapshots.version + 1,
		    doc = EXCLUDED.doc,
		    last_client_id = EXCLUDED.last_client_id,
		    updated_at = NOW()
		RETURNING user_id, version, doc, last_client_id, updated_at`

	var row snapshotRow
	if err := s.db.GetContext(ctx, &row, query, req.UserID, doc, req.ClientID); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return rowToSnapshot(&row)
}

func rowToSnapshot(row *snapshotRow) (*models.CartSnapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(row.Doc, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot doc: %w", err)
	}
	return &models.CartSnapshot{
		Version:            row.Version,
		Items:              doc.Items,
		Discounts:          doc.Discounts,
		Currency:           doc.Currency,
		LastWriterClientID: row.LastClientID,
		UpdatedAt:          row.UpdatedAt,
	}, nil
}
