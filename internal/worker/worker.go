package worker

import (
	"context"
	"log"

	"cart-sync-service/internal/broker"
	"cart-sync-service/internal/models"
	"cart-sync-service/internal/store"
	"cart-sync-service/internal/util"
)

// AnalyticsWorker drains flushed analytics batches from the analytics
// topic into the warehouse table. Batches replay after a crash, so the
// sink deduplicates on batch id.
type AnalyticsWorker struct {
	consumer *broker.Consumer
	handler  *broker.BatchHandler
	store    *store.Store
}

// NewAnalyticsWorker creates a new analytics worker
func NewAnalyticsWorker(consumer *broker.Consumer, st *store.Store) *AnalyticsWorker {
	w := &AnalyticsWorker{
		consumer: consumer,
		store:    st,
	}
	w.handler = broker.NewBatchHandler(w.sinkBatch)
	return w
}

// Start starts the worker
func (w *AnalyticsWorker) Start(ctx context.Context) error {
	log.Println("Starting analytics worker...")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *AnalyticsWorker) Stop() error {
	log.Println("Stopping analytics worker...")
	return w.consumer.Close()
}

func (w *AnalyticsWorker) sinkBatch(ctx context.Context, batch *models.AnalyticsBatch) error {
	inserted, err := w.store.InsertAnalyticsBatch(ctx, batch)
	if err != nil {
		util.AnalyticsFlushTotal.WithLabelValues("sink_error").Inc()
		return err
	}
	if !inserted {
		log.Printf("Skipping duplicate analytics batch: id=%s", batch.BatchID)
		util.AnalyticsFlushTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	util.AnalyticsFlushTotal.WithLabelValues("sunk").Inc()
	return nil
}
