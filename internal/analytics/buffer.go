// Package analytics accumulates telemetry events and flushes them in
// batches. Events emitted without an authenticated identity are parked in
// a durable offline queue and re-merged the moment an identity arrives, so
// nothing is silently dropped across the anonymous-to-authenticated
// transition. Delivery is at-least-once.
package analytics

import (
	"context"
	"sync"
	"time"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/schedule"
	"cart-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher delivers one batched record per flush.
type Publisher interface {
	PublishBatch(ctx context.Context, batch models.AnalyticsBatch) error
}

// OfflineQueue is the durable local fallback used while no identity is
// available.
type OfflineQueue interface {
	Append(ctx context.Context, events []models.AnalyticsEvent) error
	Drain(ctx context.Context) ([]models.AnalyticsEvent, error)
}

// Buffer is the in-memory event accumulator for one client session.
type Buffer struct {
	publisher Publisher
	offline   OfflineQueue
	clientID  string
	flusher   *schedule.Debouncer
	logger    *zap.Logger

	mu     sync.Mutex
	userID string
	events []models.AnalyticsEvent
}

// NewBuffer creates a buffer. userID may be empty for guest sessions.
func NewBuffer(publisher Publisher, offline OfflineQueue, userID, clientID string, flushDelay time.Duration) *Buffer {
	return &Buffer{
		publisher: publisher,
		offline:   offline,
		userID:    userID,
		clientID:  clientID,
		flusher:   schedule.NewDebouncer(flushDelay),
		logger:    util.GetLogger(),
	}
}

// Emit appends an event and schedules a flush if none is pending.
func (b *Buffer) Emit(name string, payload map[string]string) {
	b.mu.Lock()
	b.events = append(b.events, models.AnalyticsEvent{
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	n := len(b.events)
	b.mu.Unlock()

	util.AnalyticsEventsBuffered.Set(float64(n))
	if !b.flusher.Pending() {
		b.flusher.Schedule(func() { b.Flush(context.Background()) })
	}
}

// SetIdentity records a newly available identity, re-merges the offline
// queue into the buffer and flushes.
func (b *Buffer) SetIdentity(ctx context.Context, userID string) error {
	b.mu.Lock()
	b.userID = userID
	b.mu.Unlock()

	if b.offline != nil {
		queued, err := b.offline.Drain(ctx)
		if err != nil {
			return err
		}
		if len(queued) > 0 {
			b.mu.Lock()
			b.events = append(queued, b.events...)
			b.mu.Unlock()
		}
	}
	return b.Flush(ctx)
}

// Flush atomically drains the buffer. With an identity the batch is
// published as one record and requeued on failure; without one the drained
// batch goes to the durable offline queue instead.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	drained := b.events
	b.events = nil
	userID := b.userID
	b.mu.Unlock()

	util.AnalyticsEventsBuffered.Set(0)
	if len(drained) == 0 {
		return nil
	}

	if userID == "" {
		if b.offline == nil {
			b.requeue(drained)
			return nil
		}
		if err := b.offline.Append(ctx, drained); err != nil {
			util.AnalyticsFlushTotal.WithLabelValues("offline_failed").Inc()
			b.requeue(drained)
			return err
		}
		util.AnalyticsFlushTotal.WithLabelValues("offline").Inc()
		return nil
	}

	if b.publisher == nil {
		b.requeue(drained)
		return nil
	}

	batch := models.AnalyticsBatch{
		BatchID:   uuid.New().String(),
		UserID:    userID,
		ClientID:  b.clientID,
		Events:    drained,
		Count:     len(drained),
		FlushedAt: time.Now(),
	}
	if err := b.publisher.PublishBatch(ctx, batch); err != nil {
		util.AnalyticsFlushTotal.WithLabelValues("failed").Inc()
		b.logger.Warn("Analytics flush failed, requeueing",
			zap.Int("events", len(drained)),
			zap.Error(err))
		b.requeue(drained)
		return err
	}

	util.AnalyticsFlushTotal.WithLabelValues("published").Inc()
	return nil
}

// Close cancels the pending flush timer and attempts a final flush.
func (b *Buffer) Close(ctx context.Context) error {
	b.flusher.Cancel()
	return b.Flush(ctx)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// requeue prepends failed events for the next flush attempt.
func (b *Buffer) requeue(events []models.AnalyticsEvent) {
	b.mu.Lock()
	b.events = append(events, b.events...)
	n := len(b.events)
	b.mu.Unlock()
	util.AnalyticsEventsBuffered.Set(float64(n))
}
