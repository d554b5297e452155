package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cart-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	err     error
	batches []models.AnalyticsBatch
}

func (f *fakePublisher) PublishBatch(ctx context.Context, batch models.AnalyticsBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeQueue struct {
	mu     sync.Mutex
	events []models.AnalyticsEvent
}

func (f *fakeQueue) Append(ctx context.Context, events []models.AnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeQueue) Drain(ctx context.Context) ([]models.AnalyticsEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out, nil
}

func TestFlushPublishesOneBatch(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBuffer(pub, &fakeQueue{}, "user-1", "client-A", time.Hour)

	b.Emit(models.EventCartItemAdded, map[string]string{"product_id": "p1"})
	b.Emit(models.EventCartItemUpdated, nil)

	require.NoError(t, b.Flush(context.Background()))

	require.Equal(t, 1, pub.count())
	batch := pub.batches[0]
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, "user-1", batch.UserID)
	assert.NotEmpty(t, batch.BatchID)
	assert.Equal(t, 0, b.Len())
}

func TestFlushFailureRequeues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	b := NewBuffer(pub, &fakeQueue{}, "user-1", "client-A", time.Hour)

	b.Emit(models.EventCartItemAdded, nil)
	assert.Error(t, b.Flush(context.Background()))
	assert.Equal(t, 1, b.Len())

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	b.Emit(models.EventCartItemRemoved, nil)
	require.NoError(t, b.Flush(context.Background()))

	require.Equal(t, 1, pub.count())
	batch := pub.batches[0]
	require.Equal(t, 2, batch.Count)
	// Requeued events are prepended, so original order is preserved.
	assert.Equal(t, models.EventCartItemAdded, batch.Events[0].Name)
	assert.Equal(t, models.EventCartItemRemoved, batch.Events[1].Name)
}

func TestGuestFlushGoesToOfflineQueue(t *testing.T) {
	pub := &fakePublisher{}
	queue := &fakeQueue{}
	b := NewBuffer(pub, queue, "", "client-A", time.Hour)

	b.Emit(models.EventCartItemAdded, nil)
	require.NoError(t, b.Flush(context.Background()))

	assert.Equal(t, 0, pub.count())
	assert.Len(t, queue.events, 1)
}

func TestSetIdentityDrainsOfflineQueue(t *testing.T) {
	pub := &fakePublisher{}
	queue := &fakeQueue{}
	b := NewBuffer(pub, queue, "", "client-A", time.Hour)

	b.Emit(models.EventCartItemAdded, nil)
	require.NoError(t, b.Flush(context.Background()))
	b.Emit(models.EventDiscountApplied, nil)

	require.NoError(t, b.SetIdentity(context.Background(), "user-9"))

	require.Equal(t, 1, pub.count())
	batch := pub.batches[0]
	assert.Equal(t, "user-9", batch.UserID)
	require.Equal(t, 2, batch.Count)
	// Offline events flush ahead of the ones buffered after them.
	assert.Equal(t, models.EventCartItemAdded, batch.Events[0].Name)
	assert.Empty(t, queue.events)
}

func TestScheduledFlushFires(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBuffer(pub, &fakeQueue{}, "user-1", "client-A", 15*time.Millisecond)

	b.Emit(models.EventCartItemAdded, nil)
	b.Emit(models.EventCartItemUpdated, nil)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, pub.count())
}
