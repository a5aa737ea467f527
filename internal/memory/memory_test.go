package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnWith(entities ...Entity) Turn {
	return Turn{
		ID:       uuid.New().String(),
		Entities: entities,
		At:       time.Now(),
	}
}

func TestResolve(t *testing.T) {
	t.Run("empty memory resolves nothing", func(t *testing.T) {
		m := New()
		_, ok := m.Resolve(EntityBucket)
		assert.False(t, ok)
	})

	t.Run("resolves most recent definition", func(t *testing.T) {
		m := New()
		m.Append(turnWith(Entity{Kind: EntityBucket, Name: "b_1"}))
		m.Append(turnWith(Entity{Kind: EntityScenario, Name: "augmentation run"}))
		m.Append(turnWith(Entity{Kind: EntityBucket, Name: "b_2"}))

		bucket, ok := m.Resolve(EntityBucket)
		require.True(t, ok)
		assert.Equal(t, "b_2", bucket.Name)

		scenario, ok := m.Resolve(EntityScenario)
		require.True(t, ok)
		assert.Equal(t, "augmentation run", scenario.Name)
	})

	t.Run("resolution is strictly causal", func(t *testing.T) {
		m := New()
		m.Append(turnWith(Entity{Kind: EntityBucket, Name: "b_1"}))

		// An entity defined later must not win over the state as of now
		bucket, ok := m.Resolve(EntityBucket)
		require.True(t, ok)
		assert.Equal(t, "b_1", bucket.Name)

		m.Append(turnWith(Entity{Kind: EntityBucket, Name: "npa"}))
		bucket, ok = m.Resolve(EntityBucket)
		require.True(t, ok)
		assert.Equal(t, "npa", bucket.Name)
	})

	t.Run("later entity within one turn wins", func(t *testing.T) {
		m := New()
		m.Append(turnWith(
			Entity{Kind: EntityBucket, Name: "b_1"},
			Entity{Kind: EntityBucket, Name: "b_2"},
		))

		bucket, ok := m.Resolve(EntityBucket)
		require.True(t, ok)
		assert.Equal(t, "b_2", bucket.Name)
	})
}

func TestResolveNamed(t *testing.T) {
	m := New()
	m.Append(turnWith(Entity{Kind: EntityScenario, Name: "baseline"}))
	m.Append(turnWith(Entity{Kind: EntityScenario, Name: "aggressive"}))

	scenario, ok := m.ResolveNamed(EntityScenario, "baseline")
	require.True(t, ok)
	assert.Equal(t, "baseline", scenario.Name)

	_, ok = m.ResolveNamed(EntityScenario, "missing")
	assert.False(t, ok)

	_, ok = m.ResolveNamed(EntityBucket, "baseline")
	assert.False(t, ok, "kind must match, not just name")
}

func TestLast(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Append(Turn{ID: uuid.New().String(), Utterance: string(rune('a' + i))})
	}

	last := m.Last(3)
	require.Len(t, last, 3)
	assert.Equal(t, "c", last[0].Utterance)
	assert.Equal(t, "e", last[2].Utterance)

	assert.Len(t, m.Last(100), 5)
	assert.Nil(t, m.Last(0))
	assert.Equal(t, 5, m.Len())
}

func TestRecentChanges(t *testing.T) {
	m := New()
	m.Append(Turn{Changes: []Change{
		{Field: "agentCount", From: 40, To: 50},
		{Field: "monthlyRent", From: 12000, To: 10800},
	}})
	m.Append(Turn{Changes: []Change{
		{Field: "recoveryRate", From: 12, To: 15},
	}})

	changes := m.RecentChanges(2)
	require.Len(t, changes, 2)
	assert.Equal(t, "recoveryRate", changes[0].Field)
	assert.Equal(t, "monthlyRent", changes[1].Field)

	assert.Len(t, m.RecentChanges(10), 3)
	assert.Nil(t, m.RecentChanges(0))
}
