// Package redisclient wraps the Redis-backed durable local store: the cart
// snapshot mirror, the offline analytics queue and the per-browser client
// identifier, plus the pub/sub channel that delivers pushed snapshots to
// realtime subscribers.
package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cart-sync-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func mirrorKey(clientID string) string {
	return fmt.Sprintf("cart:mirror:%s", clientID)
}

func queueKey(clientID string) string {
	return fmt.Sprintf("cart:analytics-queue:%s", clientID)
}

func updatesChannel(userID string) string {
	return fmt.Sprintf("cart:updates:%s", userID)
}

// SaveCartMirror persists the local cart mirror for a client. Written on
// every state change so an offline reload cannot lose the cart.
func (c *Client) SaveCartMirror(ctx context.Context, clientID string, snap models.CartSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal cart mirror: %w", err)
	}
	return c.rdb.Set(ctx, mirrorKey(clientID), data, 0).Err()
}

// LoadCartMirror loads the persisted mirror, or nil when none exists.
func (c *Client) LoadCartMirror(ctx context.Context, clientID string) (*models.CartSnapshot, error) {
	data, err := c.rdb.Get(ctx, mirrorKey(clientID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap models.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart mirror: %w", err)
	}
	return &snap, nil
}

// AppendOfflineEvents appends a drained analytics batch to the durable
// offline queue for a guest client.
func (c *Client) AppendOfflineEvents(ctx context.Context, clientID string, events []models.AnalyticsEvent) error {
	pipe := c.rdb.Pipeline()
	for i := range events {
		data, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal offline event: %w", err)
		}
		pipe.RPush(ctx, queueKey(clientID), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DrainOfflineEvents removes and returns every queued offline event.
func (c *Client) DrainOfflineEvents(ctx context.Context, clientID string) ([]models.AnalyticsEvent, error) {
	pipe := c.rdb.TxPipeline()
	listCmd := pipe.LRange(ctx, queueKey(clientID), 0, -1)
	pipe.Del(ctx, queueKey(clientID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raw := listCmd.Val()
	events := make([]models.AnalyticsEvent, 0, len(raw))
	for _, item := range raw {
		var ev models.AnalyticsEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal offline event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// GetOrCreateClientID returns the stable per-browser client identifier for
// a session key, generating one on first use.
func (c *Client) GetOrCreateClientID(ctx context.Context, sessionKey string) (string, error) {
	key := fmt.Sprintf("cart:client-id:%s", sessionKey)
	id := uuid.New().String()
	set, err := c.rdb.SetNX(ctx, key, id, 0).Result()
	if err != nil {
		return "", err
	}
	if set {
		return id, nil
	}
	return c.rdb.Get(ctx, key).Result()
}

// PublishSnapshot fans a freshly written snapshot out to realtime
// subscribers for the user.
func (c *Client) PublishSnapshot(ctx context.Context, userID string, snap models.CartSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.rdb.Publish(ctx, updatesChannel(userID), data).Err()
}

// SubscribeSnapshots opens a realtime subscription for a user's snapshot
// updates. The channel closes when ctx is cancelled.
func (c *Client) SubscribeSnapshots(ctx context.Context, userID string) (<-chan models.CartSnapshot, error) {
	sub := c.rdb.Subscribe(ctx, updatesChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to cart updates: %w", err)
	}

	out := make(chan models.CartSnapshot)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var snap models.CartSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
