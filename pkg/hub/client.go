// Package hub publishes gep-a2a bundles to a Redis-backed hub.
//
// Sealed assets are stored as hashes keyed by content address, each published bundle gets an
// index hash keyed by template ID, and the publish envelope is broadcast on a Pub/Sub channel
// so other nodes can ingest it. All keys are namespaced by the publishing node's ID.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dyluth/microbundle/pkg/gep"
	"github.com/redis/go-redis/v9"
)

// Client provides node-scoped Redis operations for publishing bundles.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb    *redis.Client
	nodeID string
	now    func() time.Time
}

// NewClient creates a new hub client for the specified node.
// The client namespaces all keys and channels with the node ID.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - nodeID: gep-a2a node identifier (must not be empty)
//
// Returns an error if nodeID is empty.
func NewClient(redisOpts *redis.Options, nodeID string) (*Client, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node ID cannot be empty")
	}

	return &Client{
		rdb:    redis.NewClient(redisOpts),
		nodeID: nodeID,
		now:    time.Now,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful before starting a batch.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PublishBundle stores a bundle's assets and index, then broadcasts its envelope.
// The bundle is validated first; a half-linked triple is never written.
//
// Assets and index are written in one MULTI/EXEC transaction. Writing the same bundle twice is
// safe: asset keys are content addresses, so the second write stores identical data.
func (c *Client) PublishBundle(ctx context.Context, b *gep.Bundle) error {
	// Validate bundle
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}

	// Convert assets to Redis hashes
	assets := []gep.Asset{b.Gene, b.Capsule, b.Event}
	hashes := make([]map[string]interface{}, 0, len(assets))
	for _, a := range assets {
		hash, err := AssetToHash(a)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", a.Kind(), err)
		}
		hashes = append(hashes, hash)
	}

	envelopeJSON, err := json.Marshal(b.Envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	publishedAtMs := c.now().UnixMilli()
	idx := &BundleIndex{
		IndexEntry:    b.Index(),
		MessageID:     b.Envelope.MessageID,
		PublishedAtMs: publishedAtMs,
	}

	// Write to Redis
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, a := range assets {
			pipe.HSet(ctx, AssetKey(c.nodeID, a.Address()), hashes[i])
		}
		pipe.HSet(ctx, BundleKey(c.nodeID, b.TemplateID), BundleIndexToHash(idx))
		pipe.ZAdd(ctx, BundlesKey(c.nodeID), redis.Z{
			Score:  float64(publishedAtMs),
			Member: b.TemplateID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write bundle to Redis: %w", err)
	}

	// Publish event
	channel := PublishEventsChannel(c.nodeID)
	if err := c.rdb.Publish(ctx, channel, envelopeJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	return nil
}

// GetAsset retrieves a stored asset by content address as a generic record.
// Returns (nil, redis.Nil) if the asset doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetAsset(ctx context.Context, assetID string) (map[string]any, error) {
	// Read hash from Redis
	hashData, err := c.rdb.HGetAll(ctx, AssetKey(c.nodeID, assetID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read asset from Redis: %w", err)
	}

	// Check if key exists (HGetAll returns empty map for non-existent keys)
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	// Convert to record, re-checking the stored address
	record, err := HashToRecord(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize asset: %w", err)
	}

	return record, nil
}

// AssetExists checks if an asset exists without fetching it.
// More efficient than GetAsset when you only need to check existence.
func (c *Client) AssetExists(ctx context.Context, assetID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, AssetKey(c.nodeID, assetID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check asset existence: %w", err)
	}
	return exists > 0, nil
}

// GetBundleIndex retrieves the index of the most recent bundle published for a template.
// Returns (nil, redis.Nil) if none exists.
func (c *Client) GetBundleIndex(ctx context.Context, templateID string) (*BundleIndex, error) {
	hashData, err := c.rdb.HGetAll(ctx, BundleKey(c.nodeID, templateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle index from Redis: %w", err)
	}

	// Check if key exists
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	idx, err := HashToBundleIndex(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize bundle index: %w", err)
	}

	return idx, nil
}

// ListBundles returns published template IDs, oldest first.
func (c *Client) ListBundles(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, BundlesKey(c.nodeID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	return ids, nil
}

// ListBundlesBetween returns template IDs published within [sinceMs, untilMs], oldest first.
// A zero bound is open.
func (c *Client) ListBundlesBetween(ctx context.Context, sinceMs, untilMs int64) ([]string, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if sinceMs > 0 {
		rng.Min = strconv.FormatInt(sinceMs, 10)
	}
	if untilMs > 0 {
		rng.Max = strconv.FormatInt(untilMs, 10)
	}

	ids, err := c.rdb.ZRangeByScore(ctx, BundlesKey(c.nodeID), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	return ids, nil
}

// ReceivedEnvelope is a publish envelope as decoded by a subscriber.
// Assets are generic records so they can be verified with gep.Verify.
type ReceivedEnvelope struct {
	Protocol        string `json:"protocol"`
	ProtocolVersion string `json:"protocol_version"`
	MessageType     string `json:"message_type"`
	MessageID       string `json:"message_id"`
	SenderID        string `json:"sender_id"`
	Timestamp       string `json:"timestamp"`
	Payload         struct {
		Assets []map[string]any `json:"assets"`
	} `json:"payload"`
}

// Subscription represents an active Pub/Sub subscription to publish envelopes.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *ReceivedEnvelope
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of received envelopes.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *ReceivedEnvelope {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEnvelopes subscribes to envelopes published by this node.
// Events are delivered on a buffered channel (size 10); Redis Pub/Sub is at-most-once.
// The subscription is confirmed before returning, so envelopes published afterwards are seen.
func (c *Client) SubscribeEnvelopes(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, PublishEventsChannel(c.nodeID))

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to publish events: %w", err)
	}

	eventsChan := make(chan *ReceivedEnvelope, 10)
	errorsChan := make(chan error, 10)

	// Create cancellable context for cleanup
	subCtx, cancelFunc := context.WithCancel(ctx)

	// Start goroutine to receive messages

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				// Numbers stay json.Number so gep.Verify sees the published digits
				var env ReceivedEnvelope
				dec := json.NewDecoder(bytes.NewReader([]byte(msg.Payload)))
				dec.UseNumber()
				if err := dec.Decode(&env); err != nil {
					// Send error but continue processing
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal envelope: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
