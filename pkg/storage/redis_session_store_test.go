package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisSessionStore(RedisSessionStoreConfig{
		Addr: mr.Addr(),
		TTL:  30 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)

	rec := SessionRecord{
		ID:      "sess-1",
		FormID:  "f1",
		StepID:  "topic",
		Answers: map[string]string{"name": "Jane", "email": "jane@example.com"},
		State:   "running",
	}
	require.NoError(t, store.SaveSession(rec))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.FormID)
	assert.Equal(t, "topic", got.StepID)
	assert.Equal(t, rec.Answers, got.Answers)
	assert.NotZero(t, got.CreatedAt)

	_, err = store.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)

	require.NoError(t, store.SaveSession(SessionRecord{ID: "sess-1", FormID: "f1"}))
	require.NoError(t, store.DeleteSession("sess-1"))

	_, err := store.GetSession("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.DeleteSession("sess-1"), ErrSessionNotFound)
}

func TestRedisSessionStoreTTLExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.SaveSession(SessionRecord{ID: "sess-1", FormID: "f1"}))

	mr.FastForward(31 * time.Minute)

	_, err := store.GetSession("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreDeleteExpired(t *testing.T) {
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.SaveSession(SessionRecord{ID: "fresh", FormID: "f1"}))

	// Plant stale snapshots directly; SaveSession always stamps now.
	for _, id := range []string{"stale-1", "stale-2", "stale-3"} {
		stale, err := json.Marshal(SessionRecord{
			ID:        id,
			FormID:    "f1",
			UpdatedAt: time.Now().Add(-2 * time.Hour).Unix(),
		})
		require.NoError(t, err)
		require.NoError(t, mr.Set(redisSessionKeyPrefix+id, string(stale)))
	}

	removed, err := store.DeleteExpired(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = store.GetSession("stale-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetSession("fresh")
	assert.NoError(t, err)
}
