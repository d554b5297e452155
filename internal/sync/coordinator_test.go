package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"cart-sync-service/internal/cart"
	"cart-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocStore struct {
	mu      stdsync.Mutex
	snap    *models.CartSnapshot
	ch      chan models.CartSnapshot
	pushErr error
	pushes  []models.SyncPushRequest
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{ch: make(chan models.CartSnapshot, 16)}
}

func (f *fakeDocStore) Fetch(ctx context.Context, userID string) (*models.CartSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil, nil
	}
	snap := *f.snap
	return &snap, nil
}

func (f *fakeDocStore) Push(ctx context.Context, req models.SyncPushRequest) (*models.CartSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, req)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	var version int64 = 1
	if f.snap != nil {
		version = f.snap.Version + 1
	}
	snap := models.CartSnapshot{
		Version:            version,
		Items:              req.Items,
		Discounts:          req.Discounts,
		Currency:           req.Currency,
		LastWriterClientID: req.ClientID,
		UpdatedAt:          time.Now(),
	}
	f.snap = &snap
	f.ch <- snap
	return &snap, nil
}

func (f *fakeDocStore) Subscribe(ctx context.Context, userID string) (<-chan models.CartSnapshot, error) {
	return f.ch, nil
}

func (f *fakeDocStore) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeDocStore) lastPush() models.SyncPushRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[len(f.pushes)-1]
}

func prod(id string, price int64) models.Product {
	return models.Product{ID: id, Title: id, Price: price, Category: "general"}
}

func newSession(t *testing.T, docs DocumentStore) (*cart.Store, *Coordinator) {
	t.Helper()
	store := cart.NewStore("USD", nil, nil)
	coord := NewCoordinator(store, docs, "user-1", "client-A", 20*time.Millisecond)
	store.Subscribe(coord.OnLocalChange)
	return store, coord
}

func TestDebouncedPushReflectsLatestState(t *testing.T) {
	docs := newFakeDocStore()
	store, coord := newSession(t, docs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, coord.Start(ctx))

	line := store.AddItem(prod("p1", 1000), "", 1)
	require.NoError(t, store.UpdateQuantity(line.LineID, 3))
	require.NoError(t, store.UpdateQuantity(line.LineID, 5))

	time.Sleep(100 * time.Millisecond)

	// Three mutations inside the debounce window produce one push, built
	// at fire time.
	assert.Equal(t, 1, docs.pushCount())
	push := docs.lastPush()
	require.Len(t, push.Items, 1)
	assert.Equal(t, 5, push.Items[0].Quantity)
	assert.Equal(t, int64(1), store.Version())
}

func TestEchoSuppression(t *testing.T) {
	docs := newFakeDocStore()
	store, coord := newSession(t, docs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, coord.Start(ctx))

	store.AddItem(prod("p1", 1000), "", 2)
	time.Sleep(100 * time.Millisecond)

	// The echoed pull carries our own clientID and must not re-apply or
	// schedule another push.
	assert.Equal(t, 1, docs.pushCount())
	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestStaleSnapshotDropped(t *testing.T) {
	docs := newFakeDocStore()
	store, coord := newSession(t, docs)

	store.AdoptSnapshot(models.CartSnapshot{
		Version: 5,
		Items:   []models.LineItem{{LineID: "L1", ProductID: "p1", UnitPrice: 1000, Quantity: 4}},
	})

	coord.handleSnapshot(models.CartSnapshot{
		Version:            5,
		LastWriterClientID: "client-B",
		Items:              []models.LineItem{{LineID: "L2", ProductID: "p2", UnitPrice: 500, Quantity: 1}},
	})
	coord.handleSnapshot(models.CartSnapshot{
		Version:            3,
		LastWriterClientID: "client-B",
	})

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, int64(5), store.Version())
}

func TestNewerForeignSnapshotOverwritesLocal(t *testing.T) {
	docs := newFakeDocStore()
	store, coord := newSession(t, docs)

	store.AddItem(prod("p1", 1000), "", 1)
	coord.handleSnapshot(models.CartSnapshot{
		Version:            7,
		LastWriterClientID: "client-B",
		Items:              []models.LineItem{{LineID: "L9", ProductID: "p9", UnitPrice: 900, Quantity: 2}},
		Currency:           "USD",
	})

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p9", items[0].ProductID)
	assert.Equal(t, int64(7), store.Version())
}

func TestPushFailureRetriedOnNextCycle(t *testing.T) {
	docs := newFakeDocStore()
	store, coord := newSession(t, docs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, coord.Start(ctx))

	docs.mu.Lock()
	docs.pushErr = errors.New("network down")
	docs.mu.Unlock()

	line := store.AddItem(prod("p1", 1000), "", 1)
	_, err := store.RemoveItem(line.LineID)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, docs.pushCount())
	assert.Equal(t, int64(0), store.Version())
	// Removal keys survive the failed push for the retry.
	assert.Contains(t, store.RemovedKeys(), "p1|")

	docs.mu.Lock()
	docs.pushErr = nil
	docs.mu.Unlock()

	store.AddItem(prod("p2", 500), "", 1)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, docs.pushCount())
	assert.Contains(t, docs.lastPush().RemovedKeys, "p1|")
	assert.Empty(t, store.RemovedKeys())
	assert.Equal(t, int64(1), store.Version())
}
