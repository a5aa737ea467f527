package statehub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the state hub.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new state hub client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveSnapshot persists a session's ModelState snapshot.
// Validates the snapshot before writing. Overwrites any previous snapshot for
// the session - the hub only keeps the latest committed version.
func (c *Client) SaveSnapshot(ctx context.Context, s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	hash, err := SnapshotToHash(s)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	key := SessionStateKey(c.instanceName, s.SessionID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to Redis: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves a session's persisted snapshot.
// Returns (nil, redis.Nil) if no snapshot exists. Use IsNotFound() to check.
func (c *Client) LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	key := SessionStateKey(c.instanceName, sessionID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	snapshot, err := HashToSnapshot(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	return snapshot, nil
}

// DeleteSession removes a session's snapshot and all of its artifacts.
// Called on session teardown. Missing keys are not an error.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	indexKey := SessionArtifactsKey(c.instanceName, sessionID)

	artifactIDs, err := c.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list session artifacts: %w", err)
	}

	keys := []string{SessionStateKey(c.instanceName, sessionID), indexKey}
	for _, id := range artifactIDs {
		keys = append(keys,
			ArtifactKey(c.instanceName, id),
			ArtifactPayloadKey(c.instanceName, id))
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session keys: %w", err)
	}

	return nil
}

// PutArtifact stores an artifact record and its payload, then trims the
// session's artifact index to maxPerSession entries (oldest evicted first).
// The payload expires after ttl; the record is removed when the payload is
// evicted by the trim. Both bounds must be positive.
func (c *Client) PutArtifact(ctx context.Context, rec *ArtifactRecord, payload []byte, ttl time.Duration, maxPerSession int64) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid artifact record: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("artifact ttl must be positive, got %v", ttl)
	}
	if maxPerSession <= 0 {
		return fmt.Errorf("artifact cap must be positive, got %d", maxPerSession)
	}

	recKey := ArtifactKey(c.instanceName, rec.ID)
	if err := c.rdb.HSet(ctx, recKey, ArtifactRecordToHash(rec)).Err(); err != nil {
		return fmt.Errorf("failed to write artifact record: %w", err)
	}
	if err := c.rdb.Expire(ctx, recKey, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set artifact record ttl: %w", err)
	}

	payloadKey := ArtifactPayloadKey(c.instanceName, rec.ID)
	if err := c.rdb.Set(ctx, payloadKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write artifact payload: %w", err)
	}

	indexKey := SessionArtifactsKey(c.instanceName, rec.SessionID)
	z := redis.Z{Score: float64(rec.CreatedAtMs), Member: rec.ID}
	if err := c.rdb.ZAdd(ctx, indexKey, z).Err(); err != nil {
		return fmt.Errorf("failed to index artifact: %w", err)
	}

	// Evict oldest entries beyond the per-session cap
	count, err := c.rdb.ZCard(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to count session artifacts: %w", err)
	}
	if count > maxPerSession {
		evicted, err := c.rdb.ZRange(ctx, indexKey, 0, count-maxPerSession-1).Result()
		if err != nil {
			return fmt.Errorf("failed to find artifacts to evict: %w", err)
		}
		for _, id := range evicted {
			if err := c.rdb.Del(ctx, ArtifactKey(c.instanceName, id), ArtifactPayloadKey(c.instanceName, id)).Err(); err != nil {
				return fmt.Errorf("failed to evict artifact %s: %w", id, err)
			}
		}
		if err := c.rdb.ZRemRangeByRank(ctx, indexKey, 0, count-maxPerSession-1).Err(); err != nil {
			return fmt.Errorf("failed to trim artifact index: %w", err)
		}
	}

	return nil
}

// GetArtifactRecord retrieves an artifact record by ID.
// Returns (nil, redis.Nil) if the artifact doesn't exist or has expired.
func (c *Client) GetArtifactRecord(ctx context.Context, artifactID string) (*ArtifactRecord, error) {
	key := ArtifactKey(c.instanceName, artifactID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact record: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	rec, err := HashToArtifactRecord(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize artifact record: %w", err)
	}

	return rec, nil
}

// GetArtifactPayload retrieves an artifact's binary payload by ID.
// Returns (nil, redis.Nil) if the payload doesn't exist or has expired.
func (c *Client) GetArtifactPayload(ctx context.Context, artifactID string) ([]byte, error) {
	key := ArtifactPayloadKey(c.instanceName, artifactID)

	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read artifact payload: %w", err)
	}

	return payload, nil
}

// MarkArtifactDelivered flags an artifact as referenced in a response to its
// originating request.
func (c *Client) MarkArtifactDelivered(ctx context.Context, artifactID string) error {
	key := ArtifactKey(c.instanceName, artifactID)

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check artifact existence: %w", err)
	}
	if exists == 0 {
		return redis.Nil
	}

	if err := c.rdb.HSet(ctx, key, "delivered", "true").Err(); err != nil {
		return fmt.Errorf("failed to mark artifact delivered: %w", err)
	}

	return nil
}

// ListArtifacts returns a session's artifact records, newest first.
// Records whose keys have already expired are skipped.
func (c *Client) ListArtifacts(ctx context.Context, sessionID string) ([]*ArtifactRecord, error) {
	indexKey := SessionArtifactsKey(c.instanceName, sessionID)

	ids, err := c.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session artifacts: %w", err)
	}

	records := make([]*ArtifactRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := c.GetArtifactRecord(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// PublishRequest publishes an inbound chat request for the engine to consume.
// Validates the request before publishing.
func (c *Client) PublishRequest(ctx context.Context, req *ChatRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return c.publishJSON(ctx, RequestChannel(c.instanceName), req)
}

// SubscribeRequests subscribes to inbound chat requests for this instance.
// Caller must call subscription.Close() when done.
func (c *Client) SubscribeRequests(ctx context.Context) (*Subscription[ChatRequest], error) {
	return subscribeJSON[ChatRequest](ctx, c.rdb, RequestChannel(c.instanceName))
}

// PublishResponse publishes the response to a single chat request.
func (c *Client) PublishResponse(ctx context.Context, resp *ChatResponse) error {
	return c.publishJSON(ctx, ResponseChannel(c.instanceName, resp.RequestID), resp)
}

// SubscribeResponse subscribes to the response channel for one request ID.
// Must be established before the matching request is published - Redis
// Pub/Sub is at-most-once with no replay.
func (c *Client) SubscribeResponse(ctx context.Context, requestID string) (*Subscription[ChatResponse], error) {
	return subscribeJSON[ChatResponse](ctx, c.rdb, ResponseChannel(c.instanceName, requestID))
}

// PublishSync pushes an out-of-band sync event (alert or snapshot) onto a
// session's sync channel. Fire-and-forget relative to state correctness:
// callers must not roll back a committed mutation on publish failure.
func (c *Client) PublishSync(ctx context.Context, sessionID string, event *SyncEvent) error {
	if err := event.Type.Validate(); err != nil {
		return fmt.Errorf("invalid sync event: %w", err)
	}
	return c.publishJSON(ctx, SyncChannel(c.instanceName, sessionID), event)
}

// SubscribeSync subscribes to a session's out-of-band sync channel.
func (c *Client) SubscribeSync(ctx context.Context, sessionID string) (*Subscription[SyncEvent], error) {
	return subscribeJSON[SyncEvent](ctx, c.rdb, SyncChannel(c.instanceName, sessionID))
}

// PublishStateUpdate publishes a client-pushed full calculator state.
func (c *Client) PublishStateUpdate(ctx context.Context, update *StateUpdate) error {
	return c.publishJSON(ctx, StateUpdateChannel(c.instanceName), update)
}

// SubscribeStateUpdates subscribes to client-pushed state updates for this instance.
func (c *Client) SubscribeStateUpdates(ctx context.Context) (*Subscription[StateUpdate], error) {
	return subscribeJSON[StateUpdate](ctx, c.rdb, StateUpdateChannel(c.instanceName))
}

// publishJSON marshals v and publishes it on the given channel.
func (c *Client) publishJSON(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", channel, err)
	}
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription delivering decoded
// messages of type T. Caller must call Close() when done to clean up resources.
type Subscription[T any] struct {
	events <-chan *T
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded messages.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription[T]) Events() <-chan *T {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription[T]) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription[T]) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// subscribeJSON subscribes to a channel and decodes each message as T.
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, messages may be dropped by Redis Pub/Sub
// (at-most-once delivery).
func subscribeJSON[T any](ctx context.Context, rdb *redis.Client, channel string) (*Subscription[T], error) {
	pubsub := rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *T, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

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

				var event T
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal message on %s: %w", channel, err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription[T]{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check if LoadSnapshot, GetArtifactRecord, or
// GetArtifactPayload returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
