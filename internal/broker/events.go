package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"cart-sync-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes analytics batches to the cart analytics topic.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBatch publishes one flushed analytics batch, keyed by user so a
// user's batches stay ordered within a partition.
func (ep *EventPublisher) PublishBatch(ctx context.Context, batch models.AnalyticsBatch) error {
	key := fmt.Sprintf("cart-%s", batch.UserID)
	return ep.producer.PublishEvent(ctx, key, &batch)
}

// BatchHandler routes consumed analytics batches to a sink callback.
type BatchHandler struct {
	onBatch func(context.Context, *models.AnalyticsBatch) error
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(onBatch func(context.Context, *models.AnalyticsBatch) error) *BatchHandler {
	return &BatchHandler{onBatch: onBatch}
}

// HandleMessage decodes an analytics batch message and hands it to the
// sink.
func (bh *BatchHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var batch models.AnalyticsBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return fmt.Errorf("failed to unmarshal analytics batch: %w", err)
	}

	log.Printf("Handling analytics batch: id=%s, events=%d", batch.BatchID, batch.Count)

	if bh.onBatch != nil {
		return bh.onBatch(ctx, &batch)
	}
	return nil
}
