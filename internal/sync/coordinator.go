// Package sync reconciles the local cart store with the remote versioned
// snapshot document. Conflict resolution is deliberately last-writer-wins
// by version with self-echo suppression; there is no merge-on-conflict.
// Two tabs racing between pushes can drop one tab's intermediate quantity
// change, a known limitation carried over from the original design.
package sync

import (
	"context"
	"sync"
	"time"

	"cart-sync-service/internal/cart"
	"cart-sync-service/internal/models"
	"cart-sync-service/internal/schedule"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

// DocumentStore is the remote versioned document collaborator. Fetch
// returns nil when no snapshot exists yet; Push rejects stale baseVersions
// by assigning the next version server-side; Subscribe delivers every
// snapshot written for the user, including the subscriber's own writes.
type DocumentStore interface {
	Fetch(ctx context.Context, userID string) (*models.CartSnapshot, error)
	Push(ctx context.Context, req models.SyncPushRequest) (*models.CartSnapshot, error)
	Subscribe(ctx context.Context, userID string) (<-chan models.CartSnapshot, error)
}

// Coordinator schedules debounced pushes off local mutations and applies
// pulled snapshots that pass the version gate.
type Coordinator struct {
	store    *cart.Store
	docs     DocumentStore
	userID   string
	clientID string
	debounce *schedule.Debouncer
	logger   *zap.Logger

	mu          sync.Mutex
	echoPending bool
	applying    bool
	pushing     bool
}

// NewCoordinator creates a coordinator for one (user, client) session.
func NewCoordinator(store *cart.Store, docs DocumentStore, userID, clientID string, debounceDelay time.Duration) *Coordinator {
	return &Coordinator{
		store:    store,
		docs:     docs,
		userID:   userID,
		clientID: clientID,
		debounce: schedule.NewDebouncer(debounceDelay),
		logger:   util.GetLogger(),
	}
}

// OnLocalChange schedules a debounced push. Registered as a store
// subscriber; changes caused by applying a remote snapshot do not
// reschedule.
func (c *Coordinator) OnLocalChange() {
	c.mu.Lock()
	applying := c.applying
	c.mu.Unlock()
	if applying {
		return
	}
	c.debounce.Schedule(func() { c.push(context.Background()) })
}

// Start opens the realtime pull subscription and applies incoming
// snapshots until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	ch, err := c.docs.Subscribe(ctx, c.userID)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				c.handleSnapshot(snap)
			}
		}
	}()
	return nil
}

// Stop cancels any pending debounced push.
func (c *Coordinator) Stop() {
	c.debounce.Cancel()
}

// PushNow pushes immediately, bypassing the debounce. Used by the merge
// resolver to establish a fresh baseline version after sign-in.
func (c *Coordinator) PushNow(ctx context.Context) error {
	c.debounce.Cancel()
	return c.push(ctx)
}

// push builds the payload at send time so it always reflects the latest
// local state, marks the echo expectation, and adopts the returned
// version. Failures are silent: the next debounce cycle retries.
func (c *Coordinator) push(ctx context.Context) error {
	c.mu.Lock()
	if c.pushing {
		c.mu.Unlock()
		c.debounce.Schedule(func() { c.push(context.Background()) })
		return nil
	}
	c.pushing = true
	c.echoPending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pushing = false
		c.mu.Unlock()
	}()

	ctx, span := util.StartSpan(ctx, "SyncCoordinator.Push")
	defer span.End()

	removedKeys := c.store.RemovedKeys()
	req := models.SyncPushRequest{
		UserID:      c.userID,
		ClientID:    c.clientID,
		Items:       c.store.Items(),
		RemovedKeys: removedKeys,
		Discounts:   c.store.Discounts(),
		Currency:    c.store.Currency(),
		BaseVersion: c.store.Version(),
	}

	start := time.Now()
	snap, err := c.docs.Push(ctx, req)
	util.SyncPushLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.SyncPushFailuresTotal.Inc()
		c.mu.Lock()
		c.echoPending = false
		c.mu.Unlock()
		c.logger.Warn("Sync push failed, will retry on next debounce",
			zap.String("user_id", c.userID),
			zap.Error(err))
		return err
	}

	util.SyncPushesTotal.Inc()
	c.store.SetVersion(snap.Version)
	c.store.ClearRemovedKeys(removedKeys)
	return nil
}

// handleSnapshot applies a pulled snapshot. Stale versions are dropped
// unconditionally; the single expected self-echo is consumed without
// re-applying.
func (c *Coordinator) handleSnapshot(snap models.CartSnapshot) {
	if snap.Version <= c.store.Version() {
		util.SyncPullsDroppedTotal.WithLabelValues("stale").Inc()
		return
	}

	if snap.LastWriterClientID == c.clientID {
		c.mu.Lock()
		if c.echoPending {
			c.echoPending = false
			c.mu.Unlock()
			c.store.SetVersion(snap.Version)
			util.SyncPullsDroppedTotal.WithLabelValues("echo").Inc()
			return
		}
		c.mu.Unlock()
	}

	c.adopt(snap)
	util.SyncPullsAppliedTotal.Inc()
}

// adopt applies a remote snapshot without triggering a push back.
func (c *Coordinator) adopt(snap models.CartSnapshot) {
	c.mu.Lock()
	c.applying = true
	c.mu.Unlock()

	c.store.AdoptSnapshot(snap)

	c.mu.Lock()
	c.applying = false
	c.mu.Unlock()
}
