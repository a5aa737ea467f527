package statehub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testSnapshot(sessionID string, version int64) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		Version:   version,
		Inputs: map[string]float64{
			"agentCount":  40,
			"monthlyRent": 12000,
		},
		Modes: map[string]string{
			"activeBucket": "b_1",
		},
		Derived: map[string]float64{
			"peakUtilization": 95.5,
		},
		UpdatedAtMs: time.Now().UnixMilli(),
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.instanceName)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	t.Run("save and load", func(t *testing.T) {
		snap := testSnapshot(sessionID, 3)
		require.NoError(t, client.SaveSnapshot(ctx, snap))

		loaded, err := client.LoadSnapshot(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, snap.SessionID, loaded.SessionID)
		assert.Equal(t, int64(3), loaded.Version)
		assert.Equal(t, snap.Inputs, loaded.Inputs)
		assert.Equal(t, snap.Modes, loaded.Modes)
		assert.Equal(t, snap.Derived, loaded.Derived)
	})

	t.Run("overwrite keeps only latest version", func(t *testing.T) {
		require.NoError(t, client.SaveSnapshot(ctx, testSnapshot(sessionID, 4)))

		loaded, err := client.LoadSnapshot(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), loaded.Version)
	})

	t.Run("missing snapshot returns not found", func(t *testing.T) {
		_, err := client.LoadSnapshot(ctx, uuid.New().String())
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects invalid snapshot", func(t *testing.T) {
		err := client.SaveSnapshot(ctx, &Snapshot{SessionID: "not-a-uuid"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid snapshot")
	})
}

func TestArtifactLifecycle(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	newRecord := func(createdAtMs int64) *ArtifactRecord {
		return &ArtifactRecord{
			ID:          uuid.New().String(),
			SessionID:   sessionID,
			RequestID:   uuid.New().String(),
			Kind:        "roi_report",
			SizeBytes:   4,
			CreatedAtMs: createdAtMs,
		}
	}

	t.Run("put and get", func(t *testing.T) {
		rec := newRecord(1000)
		require.NoError(t, client.PutArtifact(ctx, rec, []byte("data"), time.Hour, 10))

		got, err := client.GetArtifactRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.False(t, got.Delivered)

		payload, err := client.GetArtifactPayload(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), payload)
	})

	t.Run("mark delivered", func(t *testing.T) {
		rec := newRecord(2000)
		require.NoError(t, client.PutArtifact(ctx, rec, []byte("data"), time.Hour, 10))

		require.NoError(t, client.MarkArtifactDelivered(ctx, rec.ID))

		got, err := client.GetArtifactRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, got.Delivered)
	})

	t.Run("mark delivered on missing artifact returns not found", func(t *testing.T) {
		err := client.MarkArtifactDelivered(ctx, uuid.New().String())
		assert.True(t, IsNotFound(err))
	})

	t.Run("per-session cap evicts oldest", func(t *testing.T) {
		capSession := uuid.New().String()
		var ids []string
		for i := 0; i < 4; i++ {
			rec := &ArtifactRecord{
				ID:          uuid.New().String(),
				SessionID:   capSession,
				RequestID:   uuid.New().String(),
				Kind:        "roi_report",
				SizeBytes:   1,
				CreatedAtMs: int64(1000 + i),
			}
			ids = append(ids, rec.ID)
			require.NoError(t, client.PutArtifact(ctx, rec, []byte("x"), time.Hour, 3))
		}

		records, err := client.ListArtifacts(ctx, capSession)
		require.NoError(t, err)
		require.Len(t, records, 3)
		// Newest first, oldest evicted
		assert.Equal(t, ids[3], records[0].ID)
		assert.Equal(t, ids[1], records[2].ID)

		_, err = client.GetArtifactRecord(ctx, ids[0])
		assert.True(t, IsNotFound(err))
	})

	t.Run("payload expires after ttl", func(t *testing.T) {
		rec := newRecord(5000)
		require.NoError(t, client.PutArtifact(ctx, rec, []byte("data"), time.Minute, 10))

		mr.FastForward(2 * time.Minute)

		_, err := client.GetArtifactPayload(ctx, rec.ID)
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects non-positive bounds", func(t *testing.T) {
		rec := newRecord(6000)
		assert.Error(t, client.PutArtifact(ctx, rec, []byte("x"), 0, 10))
		assert.Error(t, client.PutArtifact(ctx, rec, []byte("x"), time.Hour, 0))
	})
}

func TestDeleteSession(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	require.NoError(t, client.SaveSnapshot(ctx, testSnapshot(sessionID, 1)))

	rec := &ArtifactRecord{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		RequestID:   uuid.New().String(),
		Kind:        "roi_report",
		SizeBytes:   1,
		CreatedAtMs: 1000,
	}
	require.NoError(t, client.PutArtifact(ctx, rec, []byte("x"), time.Hour, 10))

	require.NoError(t, client.DeleteSession(ctx, sessionID))

	_, err := client.LoadSnapshot(ctx, sessionID)
	assert.True(t, IsNotFound(err))
	_, err = client.GetArtifactRecord(ctx, rec.ID)
	assert.True(t, IsNotFound(err))

	records, err := client.ListArtifacts(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPubSubChannels(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("request round trip", func(t *testing.T) {
		sub, err := client.SubscribeRequests(ctx)
		require.NoError(t, err)
		defer sub.Close()

		req := &ChatRequest{
			RequestID:     uuid.New().String(),
			SessionID:     uuid.New().String(),
			Utterance:     "what is my current ROI?",
			ClientVersion: 2,
		}
		require.NoError(t, client.PublishRequest(ctx, req))

		select {
		case got := <-sub.Events():
			assert.Equal(t, req.RequestID, got.RequestID)
			assert.Equal(t, req.Utterance, got.Utterance)
			assert.Equal(t, int64(2), got.ClientVersion)
		case <-ctx.Done():
			t.Fatal("timed out waiting for request event")
		}
	})

	t.Run("rejects invalid request", func(t *testing.T) {
		err := client.PublishRequest(ctx, &ChatRequest{RequestID: "bad"})
		assert.Error(t, err)
	})

	t.Run("sync event round trip", func(t *testing.T) {
		sessionID := uuid.New().String()
		sub, err := client.SubscribeSync(ctx, sessionID)
		require.NoError(t, err)
		defer sub.Close()

		event := &SyncEvent{
			Type: SyncEventAlert,
			Alert: &AlertEvent{
				Metric:    "peakUtilization",
				Threshold: 120,
				Direction: "above",
				Value:     125,
				Version:   7,
				Message:   "peak utilization is at 125%",
			},
		}
		require.NoError(t, client.PublishSync(ctx, sessionID, event))

		select {
		case got := <-sub.Events():
			assert.Equal(t, SyncEventAlert, got.Type)
			require.NotNil(t, got.Alert)
			assert.Equal(t, "peakUtilization", got.Alert.Metric)
			assert.Equal(t, 125.0, got.Alert.Value)
		case <-ctx.Done():
			t.Fatal("timed out waiting for sync event")
		}
	})

	t.Run("rejects sync event with unknown type", func(t *testing.T) {
		err := client.PublishSync(ctx, uuid.New().String(), &SyncEvent{Type: "bogus"})
		assert.Error(t, err)
	})

	t.Run("state update round trip", func(t *testing.T) {
		sub, err := client.SubscribeStateUpdates(ctx)
		require.NoError(t, err)
		defer sub.Close()

		update := &StateUpdate{
			SessionID: uuid.New().String(),
			Inputs:    map[string]float64{"agentCount": 42},
		}
		require.NoError(t, client.PublishStateUpdate(ctx, update))

		select {
		case got := <-sub.Events():
			assert.Equal(t, update.SessionID, got.SessionID)
			assert.Equal(t, 42.0, got.Inputs["agentCount"])
		case <-ctx.Done():
			t.Fatal("timed out waiting for state update")
		}
	})

	t.Run("malformed message surfaces on error channel", func(t *testing.T) {
		sub, err := client.SubscribeRequests(ctx)
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, client.rdb.Publish(ctx, RequestChannel("test-instance"), "not json").Err())

		select {
		case err := <-sub.Errors():
			assert.Contains(t, err.Error(), "failed to unmarshal")
		case <-ctx.Done():
			t.Fatal("timed out waiting for subscription error")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sub, err := client.SubscribeRequests(ctx)
		require.NoError(t, err)
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}
