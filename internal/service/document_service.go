package service

import (
	"context"
	"fmt"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/redisclient"
	"cart-sync-service/internal/store"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

// DocumentService is the remote versioned cart document: Postgres holds
// the authoritative snapshot, Redis pub/sub fans written snapshots out to
// realtime subscribers. Implements the sync coordinator's DocumentStore.
type DocumentService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(store *store.Store, redis *redisclient.Client) *DocumentService {
	return &DocumentService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// Fetch loads the current snapshot for a user, nil when none exists.
func (ds *DocumentService) Fetch(ctx context.Context, userID string) (*models.CartSnapshot, error) {
	return ds.store.FetchSnapshot(ctx, userID)
}

// Push writes the snapshot, advancing the version, and publishes the
// result to subscribers. A publish failure is not a push failure: the
// write landed, and pollers recover via the version gate.
func (ds *DocumentService) Push(ctx context.Context, req models.SyncPushRequest) (*models.CartSnapshot, error) {
	snap, err := ds.store.WriteSnapshot(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("snapshot write failed: %w", err)
	}

	if err := ds.redis.PublishSnapshot(ctx, req.UserID, *snap); err != nil {
		ds.logger.Warn("Failed to publish snapshot update",
			zap.String("user_id", req.UserID),
			zap.Error(err))
	}
	return snap, nil
}

// Subscribe opens the realtime pull channel for a user.
func (ds *DocumentService) Subscribe(ctx context.Context, userID string) (<-chan models.CartSnapshot, error) {
	return ds.redis.SubscribeSnapshots(ctx, userID)
}
